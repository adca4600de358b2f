package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config bundles the watchdog's own structured logging and the file
// destinations for output of launched programs.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// SlogConfig controls the application logger.
type SlogConfig struct {
	Level      Level
	Format     Format
	Color      bool
	TimeStamps bool
	Source     bool
}

// FileConfig describes rotating log files.
// Path is the watchdog's own log file; when empty the logger writes to stderr.
// If StdoutPath/StderrPath are empty and Dir is set, launched program output goes to
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string
	Dir        string
	StdoutPath string
	StderrPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ParseLevel maps a config string to a Level; unknown values become info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogger builds the application logger. When File.Path is set the
// output goes to a rotating file, otherwise to stderr.
func (c Config) NewSlogger() *slog.Logger {
	var w io.Writer = os.Stderr
	color := c.Slog.Color
	if c.File.Path != "" {
		w = c.File.rotating(c.File.Path)
		color = false
	}
	return slog.New(c.Slog.handler(w, color))
}

// NewSloggerTo builds the application logger on an explicit writer.
func (c Config) NewSloggerTo(w io.Writer) *slog.Logger {
	return slog.New(c.Slog.handler(w, c.Slog.Color))
}

func (s SlogConfig) handler(w io.Writer, color bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     s.Level.slogLevel(),
		AddSource: s.Source,
	}
	if !s.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	if s.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	if color {
		return NewColorTextHandler(w, opts, s.TimeStamps)
	}
	return slog.NewTextHandler(w, opts)
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// Writers returns rotating writers for the program's stdout and stderr.
// Either may be nil when no destination is configured.
func (f FileConfig) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := f.StdoutPath
	stderr := f.StderrPath
	if stdout == "" && f.Dir != "" {
		stdout = filepath.Join(f.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && f.Dir != "" {
		stderr = filepath.Join(f.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = f.rotating(stdout)
	}
	if stderr != "" {
		errW = f.rotating(stderr)
	}
	return outW, errW, nil
}

func (f FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

package launcher

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/loykin/procwatch/internal/logger"
	"github.com/loykin/procwatch/internal/registry"
)

var (
	ErrNotFound    = errors.New("executable not found")
	ErrNotRunnable = errors.New("path is not a runnable file")
)

// Launcher starts a program and returns without waiting for it to exit.
type Launcher interface {
	Start(path string) error
}

// Exec launches executables with os/exec. The working directory of the child is
// the directory that contains the executable.
type Exec struct {
	// Background suppresses console windows and detaches the child from the
	// watchdog's terminal session.
	Background bool
	// Env replaces the child environment unless nil. An empty, non-nil slice
	// starts the child with no variables at all.
	Env []string
	// Output receives the child's stdout/stderr; empty discards them.
	Output logger.FileConfig
	Logger *slog.Logger
}

func New(background bool, output logger.FileConfig, l *slog.Logger) *Exec {
	return &Exec{Background: background, Output: output, Logger: l}
}

// Detach prepares cmd to outlive the caller's terminal the same way a
// background launch does. The daemon mode of the CLI uses it on itself.
func Detach(cmd *exec.Cmd) { configureSysProcAttr(cmd, true) }

// Start spawns path. It never panics; every failure comes back as an error.
func (e *Exec) Start(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrNotFound)
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotRunnable, path)
	}

	// #nosec G204 -- path comes from the operator's program list
	cmd := exec.Command(path)
	cmd.Dir = filepath.Dir(path)
	if e.Env != nil {
		cmd.Env = e.Env
	}
	configureSysProcAttr(cmd, e.Background)

	name := registry.NameFromPath(path)
	outW, errW := e.writers(name)
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}

	if err := cmd.Start(); err != nil {
		closeAll(outW, errW)
		return fmt.Errorf("start %s: %w", path, err)
	}
	pid := cmd.Process.Pid
	e.logger().Info("program launched", "name", name, "path", path, "pid", pid, "dir", cmd.Dir)

	// reap in the background so the child never lingers as a zombie
	go func() {
		werr := cmd.Wait()
		closeAll(outW, errW)
		e.logger().Debug("program exited", "name", name, "pid", pid, "error", werr)
	}()
	return nil
}

func (e *Exec) writers(name string) (io.WriteCloser, io.WriteCloser) {
	if e.Output.Dir == "" && e.Output.StdoutPath == "" && e.Output.StderrPath == "" {
		return nil, nil
	}
	if e.Output.Dir != "" {
		if err := os.MkdirAll(e.Output.Dir, 0o750); err != nil {
			e.logger().Warn("cannot create output dir; discarding program output", "dir", e.Output.Dir, "error", err)
			return nil, nil
		}
	}
	outW, errW, err := e.Output.Writers(name)
	if err != nil {
		e.logger().Warn("cannot open program output; discarding", "name", name, "error", err)
		return nil, nil
	}
	return outW, errW
}

func (e *Exec) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func closeAll(cs ...io.Closer) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}

// Func adapts a plain function to Launcher.
type Func func(path string) error

func (f Func) Start(path string) error { return f(path) }

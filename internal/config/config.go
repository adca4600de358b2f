package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/loykin/procwatch/internal/auth"
	"github.com/loykin/procwatch/internal/env"
	"github.com/loykin/procwatch/internal/logger"
	"github.com/loykin/procwatch/internal/registry"
	tlsconfig "github.com/loykin/procwatch/internal/tls"
	"github.com/loykin/procwatch/internal/watchdog"
)

// EnvPrefix is prepended to environment overrides, e.g. PROCWATCH_SETTINGS_CHECK_CYCLE_SEC.
const EnvPrefix = "PROCWATCH"

// Config represents the top-level TOML structure.
type Config struct {
	Settings Settings        `toml:"settings" mapstructure:"settings"`
	Log      LogConfig       `toml:"log" mapstructure:"log"`
	Metrics  MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig   `toml:"history" mapstructure:"history"`
	Server   ServerConfig    `toml:"server" mapstructure:"server"`
	Programs []ProgramConfig `toml:"programs" mapstructure:"programs"`
}

type Settings struct {
	CheckCycleSec int      `toml:"check_cycle_sec" mapstructure:"check_cycle_sec"`
	StartDelaySec int      `toml:"start_delay_sec" mapstructure:"start_delay_sec"`
	Background    bool     `toml:"background" mapstructure:"background"`
	Autostart     bool     `toml:"autostart" mapstructure:"autostart"`
	UseOSEnv      bool     `toml:"use_os_env" mapstructure:"use_os_env"`
	Env           []string `toml:"env,omitempty" mapstructure:"env"`
	EnvFiles      []string `toml:"env_files,omitempty" mapstructure:"env_files"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Timestamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	File       string `toml:"file,omitempty" mapstructure:"file"`
	Dir        string `toml:"dir,omitempty" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled   bool   `toml:"enabled" mapstructure:"enabled"`
	DSN       string `toml:"dsn" mapstructure:"dsn"`
	QueueSize int    `toml:"queue_size" mapstructure:"queue_size"`

	// RetentionDays > 0 prunes older events on PruneSchedule (sqlite, postgres,
	// opensearch). ClickHouse cannot prune; retention is skipped with a warning.
	RetentionDays int    `toml:"retention_days" mapstructure:"retention_days"`
	PruneSchedule string `toml:"prune_schedule" mapstructure:"prune_schedule"`
}

type ServerConfig struct {
	Enabled  bool             `toml:"enabled" mapstructure:"enabled"`
	Listen   string           `toml:"listen" mapstructure:"listen"`
	BasePath string           `toml:"base_path" mapstructure:"base_path"`
	Engine   string           `toml:"engine" mapstructure:"engine"` // gin | echo
	TLS      tlsconfig.Config `toml:"tls" mapstructure:"tls"`
	Auth     auth.Config      `toml:"auth" mapstructure:"auth"`
}

type ProgramConfig struct {
	Name    string `toml:"name,omitempty" mapstructure:"name"`
	Path    string `toml:"path" mapstructure:"path"`
	Enabled *bool  `toml:"enabled,omitempty" mapstructure:"enabled"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		Settings: Settings{
			CheckCycleSec: int(watchdog.DefaultCheckCycle / time.Second),
			StartDelaySec: int(watchdog.DefaultStartDelay / time.Second),
			Autostart:     true,
			UseOSEnv:      true,
		},
		Log: LogConfig{
			Level:      string(logger.LevelInfo),
			Format:     string(logger.FormatText),
			Timestamps: true,
			MaxSizeMB:  logger.DefaultMaxSizeMB,
			MaxBackups: logger.DefaultMaxBackups,
			MaxAgeDays: logger.DefaultMaxAgeDays,
		},
		Metrics: MetricsConfig{Listen: ":9105"},
		History: HistoryConfig{DSN: "sqlite://procwatch-history.db", QueueSize: 256, PruneSchedule: "@daily"},
		Server:  ServerConfig{Listen: "127.0.0.1:8085", BasePath: "/api", Engine: "gin"},
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("settings.check_cycle_sec", d.Settings.CheckCycleSec)
	v.SetDefault("settings.start_delay_sec", d.Settings.StartDelaySec)
	v.SetDefault("settings.background", d.Settings.Background)
	v.SetDefault("settings.autostart", d.Settings.Autostart)
	v.SetDefault("settings.use_os_env", d.Settings.UseOSEnv)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.color", d.Log.Color)
	v.SetDefault("log.timestamps", d.Log.Timestamps)
	v.SetDefault("log.file", "")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.dsn", d.History.DSN)
	v.SetDefault("history.queue_size", d.History.QueueSize)
	v.SetDefault("history.retention_days", d.History.RetentionDays)
	v.SetDefault("history.prune_schedule", d.History.PruneSchedule)
	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.engine", d.Server.Engine)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "")
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.token_ttl", "")
	return v
}

// Load reads path. A missing file is created with defaults and the defaults are
// returned, so a first run works without any setup.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Save(path, Default()); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Settings.CheckCycleSec, c.Settings.StartDelaySec = watchdog.ClampSeconds(c.Settings.CheckCycleSec, c.Settings.StartDelaySec)
	return &c, nil
}

// Save writes cfg to path as TOML, creating parent directories. The file is
// replaced atomically.
func Save(path string, cfg *Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".procwatch-*.toml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// SavePrograms replaces the [[programs]] list in path and keeps every other section.
func SavePrograms(path string, programs []registry.Program) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	cfg.SetPrograms(programs)
	return Save(path, cfg)
}

// Update loads path, applies fn and saves the result.
func Update(path string, fn func(*Config) error) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	cfg.Settings.CheckCycleSec, cfg.Settings.StartDelaySec = watchdog.ClampSeconds(cfg.Settings.CheckCycleSec, cfg.Settings.StartDelaySec)
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch reloads path whenever it changes on disk and hands the result to fn.
// Files that fail to parse are logged and skipped.
func Watch(path string, log *slog.Logger, fn func(*Config)) error {
	if log == nil {
		log = slog.Default()
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		log.Info("config reloaded", "path", path, "programs", len(cfg.Programs))
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}

// RegistryPrograms converts [[programs]] into registry entries in file order.
// Entries without a path are skipped with a warning; missing names are derived
// from the path and a missing enabled flag means enabled.
func (c *Config) RegistryPrograms(log *slog.Logger) []registry.Program {
	if log == nil {
		log = slog.Default()
	}
	out := make([]registry.Program, 0, len(c.Programs))
	for i, pc := range c.Programs {
		enabled := pc.Enabled == nil || *pc.Enabled
		p, err := registry.New(pc.Name, pc.Path, enabled)
		if err != nil {
			log.Warn("skipping program entry", "index", i+1, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// SetPrograms replaces the program list from registry entries.
func (c *Config) SetPrograms(programs []registry.Program) {
	c.Programs = make([]ProgramConfig, 0, len(programs))
	for _, p := range programs {
		enabled := p.Enabled
		c.Programs = append(c.Programs, ProgramConfig{Name: p.Name, Path: p.Path, Enabled: &enabled})
	}
}

func (c *Config) WatchdogConfig() watchdog.Config {
	return watchdog.NewConfig(c.Settings.CheckCycleSec, c.Settings.StartDelaySec)
}

func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.ParseLevel(c.Log.Level),
			Format:     logger.Format(strings.ToLower(c.Log.Format)),
			Color:      c.Log.Color,
			TimeStamps: c.Log.Timestamps,
		},
		File: logger.FileConfig{
			Path:       c.Log.File,
			Dir:        c.Log.Dir,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// Environment composes the environment for launched programs. It returns nil
// when children should simply inherit the watchdog's environment.
func (c *Config) Environment() ([]string, error) {
	e := env.New(c.Settings.UseOSEnv)
	for _, f := range c.Settings.EnvFiles {
		if err := e.LoadFile(f); err != nil {
			return nil, fmt.Errorf("env file: %w", err)
		}
	}
	e.Apply(c.Settings.Env)
	if e.Empty() {
		return nil, nil
	}
	return e.List(), nil
}

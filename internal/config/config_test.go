package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/procwatch/internal/auth"
	"github.com/loykin/procwatch/internal/logger"
	"github.com/loykin/procwatch/internal/registry"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "procwatch.toml")
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.FileExists(t, p)
	assert.Equal(t, 60, cfg.Settings.CheckCycleSec)
	assert.Equal(t, 15, cfg.Settings.StartDelaySec)
	assert.True(t, cfg.Settings.Autostart)
	assert.Empty(t, cfg.Programs)
	assert.Equal(t, "gin", cfg.Server.Engine)

	// a second load reads the written file back
	again, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, cfg.Settings, again.Settings)
}

func TestLoadPrograms(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "procwatch.toml", `
[settings]
check_cycle_sec = 5
start_delay_sec = 2
background = true

[[programs]]
path = "/opt/agent/agent"

[[programs]]
name = "Custom.exe"
path = 'C:\Tools\custom.exe'
enabled = false

[[programs]]
name = "broken"
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.True(t, cfg.Settings.Background)
	assert.Equal(t, 5*time.Second, cfg.WatchdogConfig().CheckCycle)
	assert.Equal(t, 2*time.Second, cfg.WatchdogConfig().StartDelay)

	progs := cfg.RegistryPrograms(nil)
	require.Len(t, progs, 2, "entry without a path is skipped")
	assert.Equal(t, registry.Program{Name: "agent", Path: "/opt/agent/agent", Enabled: true}, progs[0])
	assert.Equal(t, registry.Program{Name: "Custom.exe", Path: `C:\Tools\custom.exe`, Enabled: false}, progs[1])
}

func TestLoadClampsSettings(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.toml", `
[settings]
check_cycle_sec = 0
start_delay_sec = -4
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Settings.CheckCycleSec)
	assert.Equal(t, 0, cfg.Settings.StartDelaySec)
}

func TestLoadEnvOverride(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.toml", "[settings]\ncheck_cycle_sec = 30\n")
	t.Setenv("PROCWATCH_SETTINGS_CHECK_CYCLE_SEC", "7")
	t.Setenv("PROCWATCH_SERVER_ENGINE", "echo")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Settings.CheckCycleSec)
	assert.Equal(t, "echo", cfg.Server.Engine)
}

func TestLoadInvalidTOML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.toml", "[settings\ncheck_cycle_sec = ")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestSaveProgramsKeepsOtherSections(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.toml", `
[settings]
check_cycle_sec = 9

[server]
enabled = true
listen = "127.0.0.1:9999"
`)
	progs := []registry.Program{
		{Name: "a", Path: "/bin/a", Enabled: true},
		{Name: "b", Path: "/bin/b", Enabled: false},
	}
	require.NoError(t, SavePrograms(p, progs))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Settings.CheckCycleSec)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Listen)
	assert.Equal(t, progs, cfg.RegistryPrograms(nil))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "[[programs]]")
}

func TestUpdateClampsAndSaves(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.toml")
	cfg, err := Update(p, func(c *Config) error {
		c.Settings.CheckCycleSec = -1
		c.Settings.StartDelaySec = 3
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Settings.CheckCycleSec)

	loaded, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Settings.CheckCycleSec)
	assert.Equal(t, 3, loaded.Settings.StartDelaySec)
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "DEBUG"
	cfg.Log.Format = "JSON"
	cfg.Log.File = "/var/log/procwatch.log"
	lc := cfg.LoggerConfig()
	assert.Equal(t, logger.LevelDebug, lc.Slog.Level)
	assert.Equal(t, logger.FormatJSON, lc.Slog.Format)
	assert.Equal(t, "/var/log/procwatch.log", lc.File.Path)
	assert.Equal(t, logger.DefaultMaxBackups, lc.File.MaxBackups)
}

func TestEnvironment(t *testing.T) {
	cfg := Default()
	envs, err := cfg.Environment()
	require.NoError(t, err)
	assert.Nil(t, envs, "inheriting with no additions leaves the environment alone")

	cfg.Settings.UseOSEnv = false
	envs, err = cfg.Environment()
	require.NoError(t, err)
	assert.NotNil(t, envs, "no inheritance means a clean environment, not the parent's")
	assert.Empty(t, envs)

	dir := t.TempDir()
	f := writeFile(t, dir, ".env", "FROM_FILE=1\nSHARED=file\n")
	cfg.Settings.EnvFiles = []string{f}
	cfg.Settings.Env = []string{"SHARED=top", "REF=${FROM_FILE}x"}
	envs, err = cfg.Environment()
	require.NoError(t, err)
	assert.Equal(t, "FROM_FILE=1,REF=1x,SHARED=top", strings.Join(envs, ","))

	cfg.Settings.EnvFiles = []string{filepath.Join(dir, "missing.env")}
	_, err = cfg.Environment()
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.toml", "[[programs]]\npath = \"/bin/a\"\n")
	got := make(chan int, 16)
	require.NoError(t, Watch(p, nil, func(c *Config) {
		select {
		case got <- len(c.RegistryPrograms(nil)):
		default:
		}
	}))

	require.NoError(t, os.WriteFile(p, []byte("[[programs]]\npath = \"/bin/a\"\n[[programs]]\npath = \"/bin/b\"\n"), 0o644))

	// a truncating write may surface an intermediate empty file first
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-got:
			if n == 2 {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestWatchMissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "nope.toml"), nil, func(*Config) {})
	assert.Error(t, err)
}

func TestLoadAuthAndRetention(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.toml", `
[history]
enabled = true
retention_days = 30

[server.auth]
enabled = true
token_ttl = "2h"

[[server.auth.users]]
username = "ops"
password_hash = "$2a$10$abcdefghijklmnopqrstuu"
role = "admin"

[[server.auth.users]]
username = "viewer"
password_hash = "$2a$10$zyxwvutsrqponmlkjihgfe"
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.History.RetentionDays)
	assert.Equal(t, "@daily", cfg.History.PruneSchedule)
	assert.True(t, cfg.Server.Auth.Enabled)
	assert.Equal(t, "2h", cfg.Server.Auth.TokenTTL)
	require.Len(t, cfg.Server.Auth.Users, 2)
	assert.Equal(t, auth.RoleAdmin, cfg.Server.Auth.Users[0].Role)
	assert.Equal(t, "viewer", cfg.Server.Auth.Users[1].Username)
	assert.Empty(t, cfg.Server.Auth.Users[1].Role)
}

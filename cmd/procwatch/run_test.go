package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/procwatch/internal/auth"
	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/pkg/client"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// writeDaemonConfig lists one program that does not exist, so every cycle
// records a failed launch and nothing is ever actually started.
func writeDaemonConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	missing := programPath(t, dir, "procwatch-missing-program")
	cfgPath := filepath.Join(dir, "procwatch.toml")
	data := fmt.Sprintf(`
[settings]
check_cycle_sec = 60
start_delay_sec = 0
autostart = false

[server]
enabled = true
listen = "127.0.0.1:0"
base_path = "/api"

[history]
enabled = true
dsn = '%s'

[[programs]]
path = '%s'
`, filepath.Join(dir, "history.db"), missing)
	require.NoError(t, os.WriteFile(cfgPath, []byte(data), 0o644))
	return cfgPath, missing
}

func startApp(t *testing.T, cfgPath string) (*app, *client.Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	a, err := newApp(cfgPath, cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)
	require.NotNil(t, a.api)
	return a, client.New(client.Config{BaseURL: "http://" + a.api.Addr + "/api", Timeout: 5 * time.Second})
}

func TestAppServesAPIAndRecordsHistory(t *testing.T) {
	cfgPath, missing := writeDaemonConfig(t)
	a, c := startApp(t, cfgPath)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.Programs)

	require.NoError(t, c.StartWatchdog(ctx))
	assert.Eventually(t, func() bool {
		events, err := c.History(ctx, 10)
		if err != nil {
			return false
		}
		for _, e := range events {
			if e.Type == "cycle_completed" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	events, err := c.History(ctx, 10)
	require.NoError(t, err)
	var failed *client.Event
	for i := range events {
		if events[i].Type == "launch_failed" {
			failed = &events[i]
		}
	}
	require.NotNil(t, failed, "missing program should record a failed launch")
	assert.Equal(t, missing, failed.Path)
	assert.NotEmpty(t, failed.Error)

	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.GreaterOrEqual(t, st.Failures, uint64(1))

	require.NoError(t, c.StopWatchdog(ctx, 2*time.Second))
	assert.False(t, a.ctl.Running())
}

func TestAppPersistsAPIEdits(t *testing.T) {
	cfgPath, _ := writeDaemonConfig(t)
	a, c := startApp(t, cfgPath)
	ctx := context.Background()

	extra := programPath(t, filepath.Dir(cfgPath), "extra")
	_, err := c.AddProgram(ctx, client.ProgramRequest{Path: extra})
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	progs := cfg.RegistryPrograms(nil)
	require.Len(t, progs, 2)
	assert.Equal(t, "extra", progs[1].Name)
	assert.Equal(t, 60, cfg.Settings.CheckCycleSec, "other sections kept")

	// the CLI talks to the same daemon through --api-url
	out, err := execute(t, "--api-url", "http://"+a.api.Addr+"/api", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "extra")
}

func TestApplyConfigRestartsOnTimingChange(t *testing.T) {
	cfgPath, _ := writeDaemonConfig(t)
	a, _ := startApp(t, cfgPath)

	require.NoError(t, a.ctl.Start())
	first := a.ctl.Done()

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	// same timing: registry swapped, run untouched
	cfg.Programs = nil
	a.applyConfig(cfg)
	assert.Equal(t, 0, a.reg.Len())
	assert.Equal(t, first, a.ctl.Done())

	// the run sleeps out its 60s check cycle, so it is still the same one
	cfg, err = config.Load(cfgPath)
	require.NoError(t, err)
	a.applyConfig(cfg)
	require.True(t, a.ctl.Running())
	before := a.ctl.Done()

	cfg.Settings.CheckCycleSec = 5
	a.applyConfig(cfg)
	assert.Equal(t, 5*time.Second, a.ctl.Config().CheckCycle)
	assert.True(t, a.ctl.Running())
	assert.NotEqual(t, before, a.ctl.Done(), "run restarted")
	assert.Equal(t, 5, a.ctl.Status().CheckCycleSec)
}

func TestNewAppRejectsBadEngine(t *testing.T) {
	cfgPath, _ := writeDaemonConfig(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Server.Engine = "fasthttp"
	_, err = newApp(cfgPath, cfg, testLogger())
	assert.Error(t, err)
}

func TestAppWithAuthAndRetention(t *testing.T) {
	cfgPath, _ := writeDaemonConfig(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	cfg.Server.Auth = auth.Config{Enabled: true, Users: []auth.User{{Username: "ops", PasswordHash: hash, Role: auth.RoleAdmin}}}
	cfg.History.RetentionDays = 7
	cfg.History.PruneSchedule = "@every 1h"
	require.NoError(t, config.Save(cfgPath, cfg))

	a, anon := startApp(t, cfgPath)
	require.NotNil(t, a.retain)
	n, err := a.retain.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	ctx := context.Background()
	_, err = anon.Programs(ctx)
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized), "got %v", err)

	c := client.New(client.Config{BaseURL: "http://" + a.api.Addr + "/api", Username: "ops", Password: "pw"})
	list, err := c.Programs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNewAppRejectsBadRetention(t *testing.T) {
	cfgPath, _ := writeDaemonConfig(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.History.RetentionDays = 1
	cfg.History.PruneSchedule = "whenever"
	_, err = newApp(cfgPath, cfg, testLogger())
	assert.Error(t, err)
}

type sendOnly struct{}

func (sendOnly) Send(context.Context, history.Event) error { return nil }

type pruneAll struct{ sendOnly }

func (pruneAll) Prune(context.Context, time.Time) (int64, error) { return 3, nil }

func TestNewRetentionSkipsSinksWithoutPrune(t *testing.T) {
	hc := config.HistoryConfig{DSN: "clickhouse://localhost:9000/db/table", RetentionDays: 7, PruneSchedule: "@daily"}
	r, err := newRetention(sendOnly{}, hc, testLogger())
	require.NoError(t, err, "a sink without Prune must not stop the daemon")
	assert.Nil(t, r)

	r, err = newRetention(pruneAll{}, hc, testLogger())
	require.NoError(t, err)
	require.NotNil(t, r)
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	hc.RetentionDays = 0
	r, err = newRetention(pruneAll{}, hc, testLogger())
	require.NoError(t, err)
	assert.Nil(t, r)

	hc.RetentionDays = 1
	hc.PruneSchedule = "whenever"
	_, err = newRetention(pruneAll{}, hc, testLogger())
	assert.Error(t, err)
}

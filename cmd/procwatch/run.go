package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/procwatch/internal/auth"
	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/history/factory"
	"github.com/loykin/procwatch/internal/launcher"
	"github.com/loykin/procwatch/internal/metrics"
	"github.com/loykin/procwatch/internal/probe"
	"github.com/loykin/procwatch/internal/registry"
	"github.com/loykin/procwatch/internal/server"
	tlsconfig "github.com/loykin/procwatch/internal/tls"
	"github.com/loykin/procwatch/internal/watchdog"
)

const shutdownTimeout = 5 * time.Second

func createRunCommand(g *GlobalFlags) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the watchdog in the foreground (or as a daemon)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.Daemonize {
				return daemonize(f.PidFile, f.LogFile, cmd.OutOrStdout())
			}
			if f.PidFile != "" {
				if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
					return fmt.Errorf("write pid file: %w", err)
				}
				defer func() { _ = removePidFile(f.PidFile) }()
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, g.ConfigPath, f)
		},
	}
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&f.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "redirect daemon stdout/stderr to this file")
	cmd.Flags().BoolVar(&f.NoAutostart, "no-autostart", false, "do not start supervising until asked through the API")
	return cmd
}

func runDaemon(ctx context.Context, path string, f *RunFlags) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	log := cfg.LoggerConfig().NewSlogger()
	slog.SetDefault(log)

	a, err := newApp(path, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if err := config.Watch(path, log, a.applyConfig); err != nil {
		log.Warn("config watch disabled", "error", err)
	}
	if cfg.Settings.Autostart && !f.NoAutostart {
		if err := a.ctl.Start(); err != nil {
			return err
		}
	}
	log.Info("procwatch running", "config", path, "programs", a.reg.Len())
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// app is the wired daemon: registry, controller and the optional outer
// surfaces (API, metrics, history).
type app struct {
	path string
	log  *slog.Logger

	reg      *registry.Registry
	ctl      *watchdog.Controller
	recorder *history.Recorder
	retain   *history.Retention
	async    *watchdog.AsyncObserver
	api      *http.Server
	metrics  *http.Server
	timing   watchdog.Config
}

func newApp(path string, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{path: path, log: log, timing: cfg.WatchdogConfig()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.reg = registry.NewRegistry(cfg.RegistryPrograms(log)...)

	envs, err := cfg.Environment()
	if err != nil {
		return nil, err
	}
	l := launcher.New(cfg.Settings.Background, cfg.LoggerConfig().File, log)
	l.Env = envs

	opts := []watchdog.ControllerOption{watchdog.WithLogger(log)}
	var reader server.HistoryReader
	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		if r, ok := sink.(server.HistoryReader); ok {
			reader = r
		}
		a.recorder = history.NewRecorder(log, sink)
		a.rememberPaths(a.reg.Snapshot())
		a.reg.OnChange(a.rememberPaths)
		a.async = watchdog.Async(a.recorder, cfg.History.QueueSize)
		if a.retain, err = newRetention(sink, cfg.History, log); err != nil {
			return nil, fmt.Errorf("history retention: %w", err)
		}
		if a.retain != nil {
			a.retain.Start()
		}
		opts = append(opts, watchdog.WithObserver(a.async))
	}
	a.ctl = watchdog.NewController(a.timing, a.reg, probe.NewNameProbe(log), l, opts...)

	if cfg.Metrics.Enabled {
		if err := metrics.RegisterDefault(); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		if a.metrics, err = server.NewServer(cfg.Metrics.Listen, metrics.Mux(), nil, log); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		log.Info("metrics listening", "addr", a.metrics.Addr)
	}

	if cfg.Server.Enabled {
		tlsCfg, err := tlsconfig.Setup(cfg.Server.TLS)
		if err != nil {
			return nil, fmt.Errorf("api tls: %w", err)
		}
		ropts := []server.Option{
			server.WithLogger(log),
			server.WithHistory(reader),
			server.WithPersist(func(s registry.Snapshot) error { return config.SavePrograms(path, s) }),
		}
		if cfg.Server.Auth.Enabled {
			svc, err := auth.New(cfg.Server.Auth)
			if err != nil {
				return nil, fmt.Errorf("api auth: %w", err)
			}
			ropts = append(ropts, server.WithAuth(svc))
		}
		router := server.NewRouter(a.reg, a.ctl, cfg.Server.BasePath, ropts...)
		h, err := router.EngineHandler(cfg.Server.Engine)
		if err != nil {
			return nil, err
		}
		if a.api, err = server.NewServer(cfg.Server.Listen, h, tlsCfg, log); err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		log.Info("api listening", "addr", a.api.Addr, "base", router.BasePath(), "engine", cfg.Server.Engine, "tls", tlsCfg != nil, "auth", cfg.Server.Auth.Enabled)
	}
	return a, nil
}

func (a *app) rememberPaths(s registry.Snapshot) {
	for _, p := range s {
		a.recorder.Remember(p.Name, p.Path)
	}
}

// applyConfig takes a reloaded file: the program list is swapped in place and
// a timing change restarts an active run so it picks up the new values.
func (a *app) applyConfig(cfg *config.Config) {
	a.reg.Replace(cfg.RegistryPrograms(a.log))

	timing := cfg.WatchdogConfig()
	if timing == a.timing {
		return
	}
	a.timing = timing
	a.ctl.SetConfig(timing)
	if !a.ctl.Running() {
		return
	}
	a.log.Info("timing changed, restarting watchdog", "check_cycle", timing.CheckCycle, "start_delay", timing.StartDelay)
	if err := a.ctl.Stop(0); err != nil && !errors.Is(err, watchdog.ErrNotRunning) {
		a.log.Warn("restart: stop failed", "error", err)
		return
	}
	if err := a.ctl.Start(); err != nil {
		a.log.Warn("restart: start failed", "error", err)
	}
}

func (a *app) close() {
	if a.ctl != nil {
		if err := a.ctl.Stop(0); err != nil && !errors.Is(err, watchdog.ErrNotRunning) {
			a.log.Warn("watchdog stop", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range []*http.Server{a.api, a.metrics} {
		if s != nil {
			_ = s.Shutdown(ctx)
		}
	}
	if a.retain != nil {
		a.retain.Stop()
	}
	if a.async != nil {
		a.async.Close()
		if n := a.async.Dropped(); n > 0 {
			a.log.Warn("history events dropped", "count", n)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.Warn("history close", "error", err)
		}
	}
}

// newRetention returns nil when retention is off or the sink cannot prune.
func newRetention(sink history.Sink, hc config.HistoryConfig, log *slog.Logger) (*history.Retention, error) {
	if hc.RetentionDays <= 0 {
		return nil, nil
	}
	pruner, ok := sink.(history.Pruner)
	if !ok {
		log.Warn("history sink cannot prune, retention disabled", "retention_days", hc.RetentionDays)
		return nil, nil
	}
	maxAge := time.Duration(hc.RetentionDays) * 24 * time.Hour
	return history.NewRetention(pruner, hc.PruneSchedule, maxAge, log)
}

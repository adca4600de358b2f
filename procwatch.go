package procwatch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/launcher"
	"github.com/loykin/procwatch/internal/logger"
	"github.com/loykin/procwatch/internal/metrics"
	"github.com/loykin/procwatch/internal/probe"
	"github.com/loykin/procwatch/internal/registry"
	iapi "github.com/loykin/procwatch/internal/server"
	"github.com/loykin/procwatch/internal/watchdog"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Program = registry.Program

type Registry = registry.Registry

type Timing = watchdog.Config

type Observer = watchdog.Observer

// NopObserver can be embedded to implement only some Observer methods.
type NopObserver = watchdog.NopObserver

type Status = watchdog.StatusSnapshot

type Config = cfg.Config

var (
	ErrAlreadyRunning = watchdog.ErrAlreadyRunning
	ErrNotRunning     = watchdog.ErrNotRunning
	ErrStopTimeout    = watchdog.ErrStopTimeout
)

func NewProgram(name, path string, enabled bool) (Program, error) {
	return registry.New(name, path, enabled)
}

func NewRegistry(programs ...Program) *Registry { return registry.NewRegistry(programs...) }

func DefaultTiming() Timing { return watchdog.DefaultConfig() }

// Watchdog is a thin facade over internal/watchdog.Controller wired with the
// process-table probe and the exec launcher.
type Watchdog struct{ inner *watchdog.Controller }

// Options tune the launcher and notifications of a Watchdog.
type Options struct {
	Background bool     // detach launched programs from the console
	Env        []string // replaces the environment of launched programs when set
	Observer   Observer
	Logger     *slog.Logger
}

func New(t Timing, reg *Registry, o Options) *Watchdog {
	l := launcher.New(o.Background, logger.FileConfig{}, o.Logger)
	l.Env = o.Env
	opts := []watchdog.ControllerOption{}
	if o.Observer != nil {
		opts = append(opts, watchdog.WithObserver(o.Observer))
	}
	if o.Logger != nil {
		opts = append(opts, watchdog.WithLogger(o.Logger))
	}
	return &Watchdog{inner: watchdog.NewController(t, reg, probe.NewNameProbe(o.Logger), l, opts...)}
}

func (w *Watchdog) Start() error                     { return w.inner.Start() }
func (w *Watchdog) Stop(timeout time.Duration) error { return w.inner.Stop(timeout) }
func (w *Watchdog) Running() bool                    { return w.inner.Running() }
func (w *Watchdog) Done() <-chan struct{}            { return w.inner.Done() }
func (w *Watchdog) Status() Status                   { return w.inner.Status() }
func (w *Watchdog) SetTiming(t Timing)               { w.inner.SetConfig(t) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHTTPHandler returns the gin-powered API for reg and w mounted at basePath.
func NewHTTPHandler(reg *Registry, w *Watchdog, basePath string) http.Handler {
	return iapi.NewRouter(reg, w.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }

package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("watchdog already running")
	ErrNotRunning     = errors.New("watchdog not running")
	ErrStopTimeout    = errors.New("watchdog did not stop in time")
)

// Controller starts and stops supervision runs. It owns the cancel function of
// the active run so callers never touch the loop goroutine directly.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	registry Snapshotter
	probe    Probe
	launcher Launcher
	observer Observer
	logger   *slog.Logger
	status   *Status

	// overridable in tests
	clock   Clock
	sleeper Sleeper

	cancel context.CancelFunc
	done   chan struct{}
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) { c.observer = o }
}

func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

func WithClock(clock Clock, sleeper Sleeper) ControllerOption {
	return func(c *Controller) {
		c.clock = clock
		c.sleeper = sleeper
	}
}

func NewController(cfg Config, reg Snapshotter, p Probe, l Launcher, opts ...ControllerOption) *Controller {
	c := &Controller{
		cfg:      cfg.Normalize(),
		registry: reg,
		probe:    p,
		launcher: l,
		logger:   slog.Default(),
		status:   NewStatus(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches a run on its own goroutine. Returns ErrAlreadyRunning when a
// previous run has not finished.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			return ErrAlreadyRunning
		}
	}

	obs := Observers{c.status}
	if c.observer != nil {
		obs = append(obs, c.observer)
	}
	loop := &Loop{
		Config:   c.cfg,
		Registry: c.registry,
		Probe:    c.probe,
		Launcher: c.launcher,
		Observer: obs,
		Clock:    c.clock,
		Sleeper:  c.sleeper,
		Logger:   c.logger,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.status.markRunning(c.cfg)

	go func() {
		defer close(done)
		defer cancel()
		if err := loop.Run(ctx); err != nil {
			c.logger.Error("watchdog exited with error", "error", err)
		}
	}()
	return nil
}

// Stop cancels the active run and waits up to timeout for it to exit. A
// non-positive timeout means DefaultStopTimeout. On ErrStopTimeout the run is
// still cancelled and will exit on its next wake.
func (c *Controller) Stop(timeout time.Duration) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if done == nil {
		return ErrNotRunning
	}
	select {
	case <-done:
		return ErrNotRunning
	default:
	}
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	c.status.markStopping()
	cancel()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		c.logger.Warn("watchdog stop timed out", "timeout", timeout)
		return ErrStopTimeout
	}
}

// Running reports whether a run is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Done is closed when the current run exits. It is nil before the first Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Controller) Status() StatusSnapshot { return c.status.Snapshot() }

func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig replaces timing for the next run. An active run keeps the values it
// started with.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg.Normalize()
	c.mu.Unlock()
}

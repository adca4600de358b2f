package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Recorder turns watchdog notifications into history events and fans them out
// to every sink. Send is synchronous; wrap the recorder with watchdog.Async so
// a slow sink never stalls the loop.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	paths map[string]string // name -> path of the program being started
}

func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sinks:   sinks,
		timeout: 5 * time.Second,
		logger:  logger,
		now:     time.Now,
		paths:   map[string]string{},
	}
}

// Remember associates a program name with its path so launch events carry both.
func (r *Recorder) Remember(name, path string) {
	r.mu.Lock()
	r.paths[name] = path
	r.mu.Unlock()
}

func (r *Recorder) pathOf(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paths[name]
}

func (r *Recorder) emit(e Event) {
	e.OccurredAt = r.now().UTC()
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := s.Send(ctx, e); err != nil {
			r.logger.Warn("history sink send failed", "type", string(e.Type), "name", e.Name, "error", err)
		}
		cancel()
	}
}

func (r *Recorder) CycleStarted() {}

func (r *Recorder) CycleCompleted(launched int) {
	r.emit(Event{Type: EventCycleCompleted, Launched: launched})
}

func (r *Recorder) ProgramStarting(string) {}

func (r *Recorder) ProgramStarted(name string) {
	r.emit(Event{Type: EventLaunch, Name: name, Path: r.pathOf(name)})
}

func (r *Recorder) ProgramStartFailed(name string, err error) {
	e := Event{Type: EventLaunchFailed, Name: name, Path: r.pathOf(name)}
	if err != nil {
		e.Error = err.Error()
	}
	r.emit(e)
}

func (r *Recorder) ProgramStartDelayElapsed(string) {}

func (r *Recorder) LoopStopped() {}

// Close closes every sink that holds a connection.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

package watchdog

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Observer receives best-effort notifications from the loop. Implementations
// must return quickly; wrap slow ones with Async and untrusted ones with Safe.
type Observer interface {
	CycleStarted()
	CycleCompleted(launched int)
	ProgramStarting(name string)
	ProgramStarted(name string)
	ProgramStartFailed(name string, err error)
	ProgramStartDelayElapsed(name string)
	LoopStopped()
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) CycleStarted()                    {}
func (NopObserver) CycleCompleted(int)               {}
func (NopObserver) ProgramStarting(string)           {}
func (NopObserver) ProgramStarted(string)            {}
func (NopObserver) ProgramStartFailed(string, error) {}
func (NopObserver) ProgramStartDelayElapsed(string)  {}
func (NopObserver) LoopStopped()                     {}

// Observers fans every notification out in order.
type Observers []Observer

func (obs Observers) CycleStarted() {
	for _, o := range obs {
		o.CycleStarted()
	}
}

func (obs Observers) CycleCompleted(launched int) {
	for _, o := range obs {
		o.CycleCompleted(launched)
	}
}

func (obs Observers) ProgramStarting(name string) {
	for _, o := range obs {
		o.ProgramStarting(name)
	}
}

func (obs Observers) ProgramStarted(name string) {
	for _, o := range obs {
		o.ProgramStarted(name)
	}
}

func (obs Observers) ProgramStartFailed(name string, err error) {
	for _, o := range obs {
		o.ProgramStartFailed(name, err)
	}
}

func (obs Observers) ProgramStartDelayElapsed(name string) {
	for _, o := range obs {
		o.ProgramStartDelayElapsed(name)
	}
}

func (obs Observers) LoopStopped() {
	for _, o := range obs {
		o.LoopStopped()
	}
}

// Safe shields the loop from a panicking observer. A fan-out is guarded per
// element so one panic does not cut off the observers after it.
func Safe(o Observer, l *slog.Logger) Observer {
	if l == nil {
		l = slog.Default()
	}
	if fan, ok := o.(Observers); ok {
		out := make(Observers, len(fan))
		for i, inner := range fan {
			out[i] = Safe(inner, l)
		}
		return out
	}
	return &safeObserver{inner: o, log: l}
}

type safeObserver struct {
	inner Observer
	log   *slog.Logger
}

func (s *safeObserver) guard(event string) {
	if r := recover(); r != nil {
		s.log.Error("observer panicked", "event", event, "panic", fmt.Sprint(r))
	}
}

func (s *safeObserver) CycleStarted() {
	defer s.guard("cycle_started")
	s.inner.CycleStarted()
}

func (s *safeObserver) CycleCompleted(launched int) {
	defer s.guard("cycle_completed")
	s.inner.CycleCompleted(launched)
}

func (s *safeObserver) ProgramStarting(name string) {
	defer s.guard("program_starting")
	s.inner.ProgramStarting(name)
}

func (s *safeObserver) ProgramStarted(name string) {
	defer s.guard("program_started")
	s.inner.ProgramStarted(name)
}

func (s *safeObserver) ProgramStartFailed(name string, err error) {
	defer s.guard("program_start_failed")
	s.inner.ProgramStartFailed(name, err)
}

func (s *safeObserver) ProgramStartDelayElapsed(name string) {
	defer s.guard("program_start_delay_elapsed")
	s.inner.ProgramStartDelayElapsed(name)
}

func (s *safeObserver) LoopStopped() {
	defer s.guard("loop_stopped")
	s.inner.LoopStopped()
}

// AsyncObserver delivers notifications to an inner observer on its own
// goroutine through a bounded queue. When the queue is full, notifications are
// dropped rather than blocking the loop.
type AsyncObserver struct {
	inner    Observer
	ch       chan func()
	mu       sync.RWMutex
	closed   bool
	finished chan struct{}
	dropped  atomic.Uint64
}

// Async starts the delivery goroutine. Call Close to drain and stop it.
func Async(o Observer, size int) *AsyncObserver {
	if size <= 0 {
		size = 64
	}
	a := &AsyncObserver{
		inner:    Safe(o, nil),
		ch:       make(chan func(), size),
		finished: make(chan struct{}),
	}
	go func() {
		defer close(a.finished)
		for fn := range a.ch {
			fn()
		}
	}()
	return a
}

func (a *AsyncObserver) post(fn func()) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- fn:
	default:
		a.dropped.Add(1)
	}
}

// Dropped reports how many notifications were discarded on a full queue.
func (a *AsyncObserver) Dropped() uint64 { return a.dropped.Load() }

// Close stops accepting notifications and waits for queued ones to be delivered.
func (a *AsyncObserver) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.finished
}

func (a *AsyncObserver) CycleStarted() { a.post(a.inner.CycleStarted) }

func (a *AsyncObserver) CycleCompleted(launched int) {
	a.post(func() { a.inner.CycleCompleted(launched) })
}

func (a *AsyncObserver) ProgramStarting(name string) {
	a.post(func() { a.inner.ProgramStarting(name) })
}

func (a *AsyncObserver) ProgramStarted(name string) {
	a.post(func() { a.inner.ProgramStarted(name) })
}

func (a *AsyncObserver) ProgramStartFailed(name string, err error) {
	a.post(func() { a.inner.ProgramStartFailed(name, err) })
}

func (a *AsyncObserver) ProgramStartDelayElapsed(name string) {
	a.post(func() { a.inner.ProgramStartDelayElapsed(name) })
}

func (a *AsyncObserver) LoopStopped() { a.post(a.inner.LoopStopped) }

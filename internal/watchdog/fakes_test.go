package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/procwatch/internal/registry"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSleeper moves the fake clock forward instead of blocking. It cancels the
// run after limit sleeps so a broken loop cannot spin forever.
type fakeSleeper struct {
	clock  *fakeClock
	cancel context.CancelFunc
	limit  int
	sleeps []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	s.sleeps = append(s.sleeps, d)
	s.clock.Advance(d)
	if s.limit > 0 && len(s.sleeps) >= s.limit {
		s.cancel()
	}
	return ctx.Err() == nil
}

type fakeProbe struct {
	mu      sync.Mutex
	running map[string]bool
	calls   []string
}

func newFakeProbe(running ...string) *fakeProbe {
	p := &fakeProbe{running: map[string]bool{}}
	for _, n := range running {
		p.running[n] = true
	}
	return p
}

func (p *fakeProbe) IsRunning(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	return p.running[name]
}

func (p *fakeProbe) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type launch struct {
	path string
	at   time.Time
}

// fakeLauncher marks launched programs as running on the probe unless a
// failure is configured for the path.
type fakeLauncher struct {
	mu     sync.Mutex
	clock  Clock
	probe  *fakeProbe
	fail   map[string]error
	hook   func(path string)
	starts []launch
}

func (l *fakeLauncher) Start(path string) error {
	l.mu.Lock()
	l.starts = append(l.starts, launch{path: path, at: l.clock.Now()})
	err := l.fail[path]
	hook := l.hook
	l.mu.Unlock()
	if err != nil {
		return err
	}
	if l.probe != nil {
		l.probe.mu.Lock()
		l.probe.running[registry.NameFromPath(path)] = true
		l.probe.mu.Unlock()
	}
	if hook != nil {
		hook(path)
	}
	return nil
}

func (l *fakeLauncher) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.starts))
	for _, s := range l.starts {
		out = append(out, s.path)
	}
	return out
}

type event struct {
	kind string
	name string
	at   time.Time
}

// recorder logs every notification with the fake time it arrived at.
type recorder struct {
	mu     sync.Mutex
	clock  Clock
	events []event
	// onCycleCompleted runs after the nth completed cycle is recorded.
	onCycleCompleted func(n int)
	cycles           int
}

func (r *recorder) add(kind, name string) {
	var at time.Time
	if r.clock != nil {
		at = r.clock.Now()
	}
	r.mu.Lock()
	r.events = append(r.events, event{kind: kind, name: name, at: at})
	r.mu.Unlock()
}

func (r *recorder) CycleStarted() { r.add("cycle_started", "") }

func (r *recorder) CycleCompleted(launched int) {
	r.add("cycle_completed", fmt.Sprint(launched))
	r.mu.Lock()
	r.cycles++
	n, fn := r.cycles, r.onCycleCompleted
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (r *recorder) ProgramStarting(name string)            { r.add("starting", name) }
func (r *recorder) ProgramStarted(name string)             { r.add("started", name) }
func (r *recorder) ProgramStartFailed(name string, _ error) { r.add("start_failed", name) }
func (r *recorder) ProgramStartDelayElapsed(name string)   { r.add("delay_elapsed", name) }
func (r *recorder) LoopStopped()                           { r.add("loop_stopped", "") }

func (r *recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if e.name != "" {
			out = append(out, e.kind+":"+e.name)
		} else {
			out = append(out, e.kind)
		}
	}
	return out
}

func (r *recorder) Find(kind string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// harness wires a Loop to fakes and stops it after the given number of cycles.
type harness struct {
	clock    *fakeClock
	sleeper  *fakeSleeper
	probe    *fakeProbe
	launcher *fakeLauncher
	rec      *recorder
	loop     *Loop
	ctx      context.Context
}

func newHarness(cfg Config, reg Snapshotter, cycles int, running ...string) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock()
	probe := newFakeProbe(running...)
	h := &harness{
		clock:    clock,
		sleeper:  &fakeSleeper{clock: clock, cancel: cancel, limit: 10000},
		probe:    probe,
		launcher: &fakeLauncher{clock: clock, probe: probe, fail: map[string]error{}},
		rec:      &recorder{clock: clock},
		ctx:      ctx,
	}
	if cycles > 0 {
		h.rec.onCycleCompleted = func(n int) {
			if n >= cycles {
				cancel()
			}
		}
	}
	h.loop = &Loop{
		Config:   cfg,
		Registry: reg,
		Probe:    probe,
		Launcher: h.launcher,
		Observer: h.rec,
		Clock:    clock,
		Sleeper:  h.sleeper,
	}
	return h
}

func (h *harness) run() error { return h.loop.Run(h.ctx) }

func programs(specs ...string) *registry.Registry {
	ps := make([]registry.Program, 0, len(specs))
	for _, s := range specs {
		enabled := true
		if s[0] == '-' {
			enabled = false
			s = s[1:]
		}
		ps = append(ps, registry.Program{Name: s, Path: "/opt/" + s, Enabled: enabled})
	}
	return registry.NewRegistry(ps...)
}

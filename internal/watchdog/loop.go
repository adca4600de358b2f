package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/procwatch/internal/metrics"
	"github.com/loykin/procwatch/internal/registry"
)

// Snapshotter hands out point-in-time copies of the program list.
type Snapshotter interface {
	Snapshot() registry.Snapshot
}

// Probe reports whether a process with the given image name is running.
type Probe interface {
	IsRunning(name string) bool
}

// Launcher starts an executable without waiting for it.
type Launcher interface {
	Start(path string) error
}

// Loop is everything one supervision run needs. It replaces process-wide state:
// a controller builds one, and Run owns its State until it returns.
type Loop struct {
	Config   Config
	Registry Snapshotter
	Probe    Probe
	Launcher Launcher
	Observer Observer
	Clock    Clock
	Sleeper  Sleeper
	Logger   *slog.Logger
}

// Run supervises until ctx is cancelled. If the registry is empty at entry it
// returns at once. LoopStopped is always delivered on return.
func (l *Loop) Run(ctx context.Context) error {
	cfg := l.Config.Normalize()
	clock := l.Clock
	if clock == nil {
		clock = SystemClock()
	}
	sleeper := l.Sleeper
	if sleeper == nil {
		sleeper = TimerSleeper()
	}
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	var obs Observer = NopObserver{}
	if l.Observer != nil {
		obs = Safe(l.Observer, log)
	}
	defer obs.LoopStopped()

	snap := l.Registry.Snapshot()
	if len(snap) == 0 {
		log.Info("watchdog: no programs configured, not starting")
		return nil
	}

	log.Info("watchdog started", "check_cycle", cfg.CheckCycle, "start_delay", cfg.StartDelay, "programs", len(snap))
	metrics.SetRunning(true)
	defer metrics.SetRunning(false)

	r := &run{cfg: cfg, obs: obs, log: log, probe: l.Probe, launcher: l.Launcher}
	st := Initial()
	metrics.RecordPhase("", st.Phase.String())
	r.cycleBegan = clock.Now()
	obs.CycleStarted()

	for {
		if ctx.Err() != nil {
			break
		}
		now := clock.Now()
		prev := st
		var act Action
		st, act = Advance(st, now, snap, cfg)
		r.transition(prev, st, snap, now)

		switch act.Kind {
		case ActSleep:
			if !sleeper.Sleep(ctx, act.Wait) {
				log.Info("watchdog stopped", "phase", st.Phase.String(), "index", st.Index)
				return nil
			}
		case ActFetch:
			fresh := l.Registry.Snapshot()
			prev = st
			st = Fetched(st, now, fresh)
			r.transition(prev, st, fresh, now)
			snap = fresh
			if st.Phase == Checking {
				log.Debug("watchdog: cycle begins", "programs", len(snap))
				r.cycleBegan = now
				obs.CycleStarted()
			} else {
				log.Debug("watchdog: cycle due, no programs configured")
			}
		case ActInspect:
			p, _ := snap.At(act.Index)
			o := r.inspect(p)
			prev = st
			st = Inspected(st, clock.Now(), o, snap)
			r.transition(prev, st, snap, clock.Now())
		}
	}
	log.Info("watchdog stopped", "phase", st.Phase.String(), "index", st.Index)
	return nil
}

// run carries per-run bookkeeping that is not part of the state machine.
type run struct {
	cfg        Config
	obs        Observer
	log        *slog.Logger
	probe      Probe
	launcher   Launcher
	cycleBegan time.Time
	launched   int
}

func (r *run) inspect(p registry.Program) Outcome {
	if !p.Enabled {
		return OutcomeDisabled
	}
	if r.probe.IsRunning(p.Name) {
		return OutcomeRunning
	}
	r.log.Info("watchdog: process not running, starting", "name", p.Name, "path", p.Path)
	r.obs.ProgramStarting(p.Name)
	if err := r.launcher.Start(p.Path); err != nil {
		r.log.Error("watchdog: start failed", "name", p.Name, "path", p.Path, "error", err)
		metrics.IncLaunchFailure(p.Name)
		r.obs.ProgramStartFailed(p.Name, err)
		return OutcomeLaunchFailed
	}
	r.launched++
	metrics.IncLaunch(p.Name)
	r.obs.ProgramStarted(p.Name)
	r.log.Debug("watchdog: waiting for start delay", "name", p.Name, "delay", r.cfg.StartDelay)
	return OutcomeLaunched
}

// transition emits the notifications implied by moving from prev to next.
func (r *run) transition(prev, next State, snap registry.Snapshot, now time.Time) {
	if prev.Phase == next.Phase {
		return
	}
	metrics.RecordPhase(prev.Phase.String(), next.Phase.String())
	if prev.Phase == WaitingAfterStart {
		name := "?"
		if p, ok := snap.At(prev.Index); ok {
			name = p.Name
		} else {
			r.log.Warn("watchdog: start delay index out of range", "index", prev.Index, "programs", len(snap))
		}
		r.log.Debug("watchdog: start delay elapsed", "name", name)
		r.obs.ProgramStartDelayElapsed(name)
	}
	if next.Phase == WaitingForCycle && prev.Phase != WaitingForCycle {
		d := now.Sub(r.cycleBegan)
		r.log.Info("watchdog: cycle completed", "launched", r.launched, "duration", d)
		metrics.IncCycle(d)
		r.obs.CycleCompleted(r.launched)
		r.launched = 0
	}
}

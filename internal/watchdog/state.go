package watchdog

import (
	"time"

	"github.com/loykin/procwatch/internal/registry"
)

// Phase is the position of the supervision loop in its cycle.
type Phase int

const (
	// Checking walks the snapshot one program at a time. It is the initial phase.
	Checking Phase = iota
	// WaitingForCycle idles between cycles.
	WaitingForCycle
	// WaitingAfterStart waits out the settle delay after a launch.
	WaitingAfterStart
)

func (p Phase) String() string {
	switch p {
	case Checking:
		return "checking"
	case WaitingForCycle:
		return "waiting_for_cycle"
	case WaitingAfterStart:
		return "waiting_after_start"
	default:
		return "unknown"
	}
}

// State is owned by the loop goroutine and never shared.
type State struct {
	Phase Phase
	// Index points into the cycle's snapshot. In WaitingAfterStart it still
	// points at the program that was just launched.
	Index      int
	CycleStart time.Time // zero until the loop first idles
	LastStart  time.Time
}

// Initial is the state at loop entry.
func Initial() State { return State{Phase: Checking} }

type ActionKind int

const (
	// ActSleep asks the loop to sleep for Action.Wait and tick again.
	ActSleep ActionKind = iota
	// ActFetch asks for a fresh registry snapshot, fed back through Fetched.
	ActFetch
	// ActInspect asks the loop to evaluate snapshot[Action.Index], fed back through Inspected.
	ActInspect
)

type Action struct {
	Kind  ActionKind
	Wait  time.Duration
	Index int
}

// Outcome is what the loop found when inspecting one program.
type Outcome int

const (
	OutcomeDisabled Outcome = iota
	OutcomeRunning
	OutcomeLaunched
	OutcomeLaunchFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDisabled:
		return "disabled"
	case OutcomeRunning:
		return "running"
	case OutcomeLaunched:
		return "launched"
	case OutcomeLaunchFailed:
		return "launch_failed"
	default:
		return "unknown"
	}
}

// Advance computes the next state and the side effect the loop must perform.
// It is pure: time comes in through now, and nothing is probed or launched here.
func Advance(s State, now time.Time, snap registry.Snapshot, cfg Config) (State, Action) {
	switch s.Phase {
	case WaitingForCycle:
		if s.CycleStart.IsZero() {
			s.CycleStart = now
		}
		elapsed := now.Sub(s.CycleStart)
		if elapsed >= cfg.CheckCycle {
			return s, Action{Kind: ActFetch}
		}
		return s, sleepFor(cfg.CheckCycle - elapsed)

	case WaitingAfterStart:
		if s.Index >= len(snap) {
			// the launched entry is gone from the snapshot; finish the cycle
			s = complete(s, now)
			return s, sleepFor(cfg.CheckCycle)
		}
		elapsed := now.Sub(s.LastStart)
		if elapsed < cfg.StartDelay {
			return s, sleepFor(cfg.StartDelay - elapsed)
		}
		s.Index++
		s.Phase = Checking
		if s.Index >= len(snap) {
			s = complete(s, now)
			return s, sleepFor(cfg.CheckCycle)
		}
		return s, Action{Kind: ActInspect, Index: s.Index}

	default:
		if s.Index >= len(snap) {
			s = complete(s, now)
			return s, sleepFor(cfg.CheckCycle)
		}
		return s, Action{Kind: ActInspect, Index: s.Index}
	}
}

// Fetched applies a freshly captured snapshot to a state that asked for ActFetch.
// An empty snapshot keeps the loop idle and restarts the cycle timer.
func Fetched(s State, now time.Time, fresh registry.Snapshot) State {
	if len(fresh) == 0 {
		s.Phase = WaitingForCycle
		s.CycleStart = now
		return s
	}
	s.Phase = Checking
	s.Index = 0
	return s
}

// Inspected applies the outcome of evaluating snap[s.Index].
func Inspected(s State, now time.Time, o Outcome, snap registry.Snapshot) State {
	if o == OutcomeLaunched {
		s.LastStart = now
		s.Phase = WaitingAfterStart
		return s
	}
	s.Index++
	if s.Index >= len(snap) {
		s = complete(s, now)
	}
	return s
}

func complete(s State, now time.Time) State {
	s.Phase = WaitingForCycle
	s.CycleStart = now
	return s
}

// sleepFor bounds a wait to [MinWait, Tick] and never past the next event.
func sleepFor(untilNext time.Duration) Action {
	w := Tick
	if untilNext < w {
		w = untilNext
	}
	if w < MinWait {
		w = MinWait
	}
	return Action{Kind: ActSleep, Wait: w}
}

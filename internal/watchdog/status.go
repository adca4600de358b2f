package watchdog

import (
	"fmt"
	"sync"
	"time"
)

// Lifecycle of a supervision run as seen from outside the loop.
type Lifecycle string

const (
	LifecycleStopped  Lifecycle = "stopped"
	LifecycleRunning  Lifecycle = "running"
	LifecycleStopping Lifecycle = "stopping"
)

const maxMessageRunes = 120

// StatusSnapshot is a copy of the status board safe to hand to other goroutines.
type StatusSnapshot struct {
	State         Lifecycle `json:"state"`
	Message       string    `json:"message"`
	Cycles        uint64    `json:"cycles"`
	Launches      uint64    `json:"launches"`
	Failures      uint64    `json:"failures"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	LastCycleAt   time.Time `json:"last_cycle_at,omitempty"`
	LastLaunched  string    `json:"last_launched,omitempty"`
	CheckCycleSec int       `json:"check_cycle_sec"`
	StartDelaySec int       `json:"start_delay_sec"`
}

// Status is a thread-safe status board fed by loop notifications. It replaces
// the status line a desktop front end would show.
type Status struct {
	mu   sync.RWMutex
	snap StatusSnapshot
	now  func() time.Time
}

func NewStatus() *Status {
	return &Status{snap: StatusSnapshot{State: LifecycleStopped, Message: "Ready."}, now: time.Now}
}

func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Status) update(fn func(*StatusSnapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.snap.Message = truncate(s.snap.Message, maxMessageRunes)
	s.mu.Unlock()
}

func (s *Status) markRunning(cfg Config) {
	s.update(func(st *StatusSnapshot) {
		st.State = LifecycleRunning
		st.Message = "Watchdog running..."
		st.StartedAt = s.now()
		st.CheckCycleSec = int(cfg.CheckCycle / time.Second)
		st.StartDelaySec = int(cfg.StartDelay / time.Second)
	})
}

func (s *Status) markStopping() {
	s.update(func(st *StatusSnapshot) {
		if st.State == LifecycleRunning {
			st.State = LifecycleStopping
			st.Message = "Watchdog stopping..."
		}
	})
}

func (s *Status) CycleStarted() {
	s.update(func(st *StatusSnapshot) { st.Message = "Cycle started." })
}

func (s *Status) CycleCompleted(launched int) {
	s.update(func(st *StatusSnapshot) {
		st.Cycles++
		st.LastCycleAt = s.now()
		st.Message = fmt.Sprintf("Cycle completed, %d program(s) started.", launched)
	})
}

func (s *Status) ProgramStarting(name string) {
	s.update(func(st *StatusSnapshot) { st.Message = fmt.Sprintf("Process %q not running, starting...", name) })
}

func (s *Status) ProgramStarted(name string) {
	s.update(func(st *StatusSnapshot) {
		st.Launches++
		st.LastLaunched = name
		st.Message = fmt.Sprintf("Started %q, waiting for it to settle.", name)
	})
}

func (s *Status) ProgramStartFailed(name string, err error) {
	s.update(func(st *StatusSnapshot) {
		st.Failures++
		st.Message = fmt.Sprintf("Failed to start %q: %v", name, err)
	})
}

func (s *Status) ProgramStartDelayElapsed(name string) {
	s.update(func(st *StatusSnapshot) { st.Message = fmt.Sprintf("Start delay for %q elapsed.", name) })
}

func (s *Status) LoopStopped() {
	s.update(func(st *StatusSnapshot) {
		st.State = LifecycleStopped
		st.Message = "Watchdog stopped."
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

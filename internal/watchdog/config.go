package watchdog

import "time"

const (
	DefaultCheckCycle = 60 * time.Second
	DefaultStartDelay = 15 * time.Second

	// MinCheckCycle is the floor applied to Config.CheckCycle.
	MinCheckCycle = time.Second

	// Tick is the longest the loop sleeps before re-evaluating its state.
	Tick = time.Second
	// MinWait is the shortest sleep; it also bounds how late a cancellation is seen.
	MinWait = 100 * time.Millisecond
	// DefaultStopTimeout bounds how long a controller waits for the loop to exit.
	DefaultStopTimeout = Tick + 500*time.Millisecond
)

// Config holds the timing of one loop run. It is fixed for the lifetime of a run.
type Config struct {
	CheckCycle time.Duration // pause between the end of one cycle and the next
	StartDelay time.Duration // settle delay after each successful launch
}

func DefaultConfig() Config {
	return Config{CheckCycle: DefaultCheckCycle, StartDelay: DefaultStartDelay}
}

// NewConfig builds a Config from whole seconds, clamping out-of-range values.
func NewConfig(checkCycleSec, startDelaySec int) Config {
	return Config{
		CheckCycle: time.Duration(checkCycleSec) * time.Second,
		StartDelay: time.Duration(startDelaySec) * time.Second,
	}.Normalize()
}

// Normalize clamps values below their floor. Nothing is ever rejected.
func (c Config) Normalize() Config {
	if c.CheckCycle < MinCheckCycle {
		c.CheckCycle = MinCheckCycle
	}
	if c.StartDelay < 0 {
		c.StartDelay = 0
	}
	return c
}

// ClampSeconds applies the same floors to raw second values, as stored in config files.
func ClampSeconds(checkCycleSec, startDelaySec int) (int, int) {
	if checkCycleSec < 1 {
		checkCycleSec = 1
	}
	if startDelaySec < 0 {
		startDelaySec = 0
	}
	return checkCycleSec, startDelaySec
}

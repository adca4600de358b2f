package watchdog

import (
	"context"
	"time"
)

// Clock supplies the current time to the loop.
type Clock interface {
	Now() time.Time
}

// Sleeper pauses the loop. Sleep returns false when ctx was cancelled before d elapsed.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock (with its monotonic component).
func SystemClock() Clock { return systemClock{} }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return false
	}
}

// TimerSleeper sleeps on a timer that a cancelled context interrupts.
func TimerSleeper() Sleeper { return timerSleeper{} }

package engine

import "time"

// Clock abstracts time and timer creation so tests can drive debounce and
// preview windows with a manual clock instead of wall-clock sleeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a single cancellable timer handle.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or stopped.
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock returns a Clock backed by the runtime's timers.
func SystemClock() Clock {
	return systemClock{}
}

package session

import "time"

// Clock abstracts timed waits so tests can drive the chunk loop without
// wall-clock sleeps. All session waiting goes through a Clock: chunk
// deadlines, poll ticks, inter-chunk pauses.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

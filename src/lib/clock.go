package lib

import "time"

// Clock lets the cancellation cutoff and the sweeper run against a frozen
// time in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var clock Clock

func GetClock() Clock {
	if clock != nil {
		return clock
	}
	clock = systemClock{}
	return clock
}

// NewClock replaces the clock instance with a custom implementation
func NewClock(c Clock) Clock {
	clock = c
	return clock
}

type FixedClock struct {
	T time.Time
}

func (f FixedClock) Now() time.Time { return f.T }

package game

import "time"

// Clock is the time source of battle timers and every expiry check.
type Clock interface {
	Now() time.Time
	// Until fires once the clock reaches t, immediately if it already has.
	Until(t time.Time) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Until(t time.Time) <-chan time.Time { return time.After(time.Until(t)) }

func RealClock() Clock {
	return realClock{}
}

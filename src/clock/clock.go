// Package clock abstracts time for the timers in this module. Production
// code uses Real(); tests use Fake() and advance time by hand.
package clock

import "time"

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time

	// AfterFunc waits for d, then calls f. If d <= 0, f is called
	// immediately in a new goroutine (real) or synchronously (fake).
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call. Returns false if it already fired or was
	// stopped.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

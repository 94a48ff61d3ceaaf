// Package clock abstracts the timers used by login timeouts and the web
// re-assertion schedule so tests can drive them with virtual time.
package clock

import "time"

// Clock is the subset of the time package the session core depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc calls f once d has elapsed. If d <= 0, f runs right away:
	// on its own goroutine for [Real], synchronously for [FakeClock].
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancelable scheduled call.
type Timer struct {
	stop func() bool
}

// Stop prevents the call from running. It reports whether the call was
// still pending. A nil Timer is valid and reports false.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	return &Timer{stop: time.AfterFunc(d, f).Stop}
}

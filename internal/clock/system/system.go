// Package system provides the wall clock used for run timestamps and retry
// backoff.
package system

import "time"

// Clock implements crawler.Clock with runtime timers. Times are UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// After delivers the UTC time once d has elapsed. A non-positive d fires
// immediately.
func (Clock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- time.Now().UTC()
		return ch
	}
	time.AfterFunc(d, func() { ch <- time.Now().UTC() })
	return ch
}

// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package wallclock

import "time"

type (
	// WallClock abstracts the subset of package time used by the client, so
	// that tests can interpose on timers and apparent time.
	WallClock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
		NewTimer(d time.Duration) Timer
	}

	// Timer abstracts the functionality of time.Timer.
	Timer interface {
		C() <-chan time.Time
		Reset(d time.Duration) bool
		Stop() bool
	}

	wallClock struct{}

	timer struct {
		*time.Timer
	}
)

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTimer indirects time.NewTimer.
func (wallClock) NewTimer(d time.Duration) Timer {
	return timer{Timer: time.NewTimer(d)}
}

// C indirects time.Timer.C.
func (t timer) C() <-chan time.Time {
	return t.Timer.C
}

// Instance is a WallClock singleton used for indirect time references. Test
// code can replace the instance to control apparent time.
var Instance WallClock = wallClock{}

package timer

import "time"

// Clock supplies the current time to the scheduler.
//
// Production code uses SystemClock. Tests use testutil.FakeClock so that
// timer firing is driven by explicit Advance calls rather than sleeps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

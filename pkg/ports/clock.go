package ports

import "time"

// Clock abstracts time so hold measurement can be tested deterministically.
// Implementations must return readings that carry a monotonic component
// (time.Now does) so elapsed durations are immune to wall-clock jumps.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

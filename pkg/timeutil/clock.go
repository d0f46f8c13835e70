package timeutil

import "time"

// Clock abstracts "now" so services stay deterministic under test
type Clock interface {
	Now() time.Time
	Today() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

func (SystemClock) Today() time.Time { return DateOf(time.Now().UTC()) }

// FixedClock always reports the same instant. Test helper.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant.UTC() }

func (c FixedClock) Today() time.Time { return DateOf(c.Instant) }

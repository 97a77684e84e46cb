// Package clock selects the timing resolution used to measure stage latency.
//
// The resolution is probed once per process: when the platform timer can
// observe sub-millisecond steps the nanosecond clock is used, otherwise the
// coarse millisecond wall clock. A missing high-resolution timer is never an
// error, the fallback is silent.
package clock

import (
	"strings"
	"sync"
	"time"
)

// Resolution names the unit a Clock reports durations in.
type Resolution string

const (
	Nanoseconds  Resolution = "nanoseconds"
	Milliseconds Resolution = "milliseconds"
)

const probeAttempts = 64

// Instant is an opaque point in time captured by Clock.Now.
type Instant struct {
	t time.Time
}

// IsZero reports whether the instant was never captured.
func (i Instant) IsZero() bool { return i.t.IsZero() }

// Clock captures instants and measures the non-negative elapsed time since one
// in its own resolution.
type Clock interface {
	Now() Instant
	Since(start Instant) int64
	Resolution() Resolution
}

var (
	defaultOnce  sync.Once
	defaultClock Clock
)

// Default returns the process-wide clock. The resolution is chosen on first
// use and never changes afterwards.
func Default() Clock {
	defaultOnce.Do(func() {
		defaultClock = New(selectResolution(probeGranularity), time.Now)
	})
	return defaultClock
}

// ForName returns a clock for the named resolution. Unknown or empty names
// fall back to Default.
func ForName(name string) Clock {
	res, ok := Parse(name)
	if !ok {
		return Default()
	}
	return New(res, time.Now)
}

// Parse maps a resolution hint onto a known Resolution.
func Parse(name string) (Resolution, bool) {
	switch Resolution(strings.ToLower(strings.TrimSpace(name))) {
	case Nanoseconds, "ns":
		return Nanoseconds, true
	case Milliseconds, "ms":
		return Milliseconds, true
	default:
		return "", false
	}
}

// New builds a clock with the given resolution on top of now. A nil now uses
// time.Now. Unknown resolutions are treated as Milliseconds.
func New(res Resolution, now func() time.Time) Clock {
	if now == nil {
		now = time.Now
	}
	if res == Nanoseconds {
		return &nanoClock{now: now}
	}
	return &milliClock{now: now}
}

type nanoClock struct {
	now func() time.Time
}

func (c *nanoClock) Now() Instant { return Instant{t: c.now()} }

func (c *nanoClock) Since(start Instant) int64 {
	return clamp(c.now().Sub(start.t).Nanoseconds())
}

func (c *nanoClock) Resolution() Resolution { return Nanoseconds }

// milliClock strips the monotonic reading so durations follow the wall clock.
type milliClock struct {
	now func() time.Time
}

func (c *milliClock) Now() Instant { return Instant{t: c.now().Round(0)} }

func (c *milliClock) Since(start Instant) int64 {
	return clamp(c.now().Round(0).Sub(start.t).Milliseconds())
}

func (c *milliClock) Resolution() Resolution { return Milliseconds }

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// selectResolution picks Nanoseconds when probe observes a step finer than a
// millisecond.
func selectResolution(probe func() time.Duration) Resolution {
	step := probe()
	if step > 0 && step < time.Millisecond {
		return Nanoseconds
	}
	return Milliseconds
}

// probeGranularity returns the smallest positive step seen between successive
// monotonic readings, or zero if none was observed.
func probeGranularity() time.Duration {
	var smallest time.Duration
	for i := 0; i < probeAttempts; i++ {
		start := time.Now()
		var step time.Duration
		for j := 0; j < probeAttempts && step == 0; j++ {
			step = time.Since(start)
		}
		if step > 0 && (smallest == 0 || step < smallest) {
			smallest = step
		}
	}
	return smallest
}

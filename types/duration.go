package types

import (
	"fmt"
	"time"
)

// Duration is a non-negative span of time with human-readable formatting.
// The zero value formats as "0ms".
type Duration struct {
	d time.Duration
}

// NewDuration creates a Duration. Negative inputs are rejected.
func NewDuration(d time.Duration) (Duration, error) {
	if d < 0 {
		return Duration{}, fmt.Errorf("duration cannot be negative: %s", d)
	}
	return Duration{d: d}, nil
}

// DurationBetween returns the Duration between two instants, clamping to zero
// when end precedes start (clock skew should never produce a negative span).
func DurationBetween(start, end time.Time) Duration {
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	return Duration{d: d}
}

// Seconds returns the duration in seconds.
func (d Duration) Seconds() float64 {
	return d.d.Seconds()
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return d.d
}

// String formats the duration as milliseconds below one second, seconds with
// one decimal below one minute, and "XmYs" from one minute up.
func (d Duration) String() string {
	switch {
	case d.d < time.Second:
		return fmt.Sprintf("%dms", d.d.Milliseconds())
	case d.d < time.Minute:
		return fmt.Sprintf("%.1fs", d.d.Seconds())
	default:
		mins := int(d.d.Minutes())
		secs := int(d.d.Seconds()) - mins*60
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
}

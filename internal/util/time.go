// time.go — Elapsed-time formatting for auction and registration timelines.
package util

import (
	"math"
	"time"
)

// ElapsedMs returns (t - base) in milliseconds for second-resolution floats.
func ElapsedMs(base, t float64) float64 {
	return math.Round((t-base)*1e6) / 1e3
}

// FormatElapsed renders milliseconds as a duration string ("0s", "12.5ms", "1.2s").
func FormatElapsed(ms float64) string {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Microsecond).String()
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

package utils

import (
	"math"
	"time"
)

// ResetTime resets the time component based on the granularity specified.
// Pass "minute" to reset seconds to zero.
// Pass "hour" to reset minutes and seconds to zero.
// Pass "day" to reset to midnight UTC.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute)
	case "hour":
		return t.Truncate(time.Hour)
	case "day":
		u := t.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// EndOfDay returns the last instant of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return ResetTime(t, "day").Add(24*time.Hour - time.Nanosecond)
}

// HoursBetween returns the elapsed hours from -> to, negative if to is earlier.
func HoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}

// DaysBetween returns the whole days from -> to, truncated toward zero.
func DaysBetween(from, to time.Time) int {
	return int(math.Trunc(to.Sub(from).Hours() / 24))
}

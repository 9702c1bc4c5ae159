package logger

import (
	"strings"
	"time"
)

// Status is the status field for an operation that returned err.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "fail"
}

// Took is the time since start rounded to the millisecond.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to the millisecond. Negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values with ", " and reports whether
// any were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	limit = min(max(limit, 0), len(values))
	return strings.Join(values[:limit], ", "), limit < len(values)
}

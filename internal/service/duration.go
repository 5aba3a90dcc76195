package service

import (
	"fmt"
	"math"
)

// FormatDuration renders seconds compactly: "45s", "1m 30s", "1h 1m".
// NaN, infinite and negative input render as "0s".
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0s"
	}

	total := int64(math.Floor(seconds))
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}

	minutes := total / 60
	secs := total % 60
	if minutes < 60 {
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", minutes, secs)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	mins := minutes % 60
	if mins > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dh", hours)
}

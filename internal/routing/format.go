package routing

import (
	"fmt"
	"math"
)

// FormatDistance renders meters below one kilometer as whole meters and
// anything longer in kilometers with one decimal.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d meters", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

func FormatDuration(seconds float64) string {
	s := int(math.Round(seconds))
	if s < 60 {
		return plural(s, "second")
	}
	minutes := s / 60
	if minutes < 60 {
		return plural(minutes, "minute")
	}
	hours := minutes / 60
	minutes %= 60
	if minutes == 0 {
		return plural(hours, "hour")
	}
	return plural(hours, "hour") + " " + plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

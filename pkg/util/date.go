package util

import (
	"fmt"
	"time"
)

// YearsBefore returns the calendar date n years before t, truncated to midnight UTC.
func YearsBefore(t time.Time, n int) time.Time {
	t = t.UTC()
	return time.Date(t.Year()-n, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TimeAgo renders the distance between t and now in the coarsest whole unit.
func TimeAgo(now, t time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatSeconds renders a duration as seconds with two decimals, e.g. "12.34s".
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

package collector

import "time"

const DefaultCleanupHour = 2

// NextCleanup returns the first hour:00 in now's location strictly after
// now. Out-of-range hours fall back to DefaultCleanupHour.
func NextCleanup(now time.Time, hour int) time.Time {
	if hour < 0 || hour > 23 {
		hour = DefaultCleanupHour
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return next
}

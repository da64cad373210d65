package usage

import "time"

// StartOfDay returns now truncated to local midnight in now's location.
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// TodayWindow returns the window from local midnight up to now.
func TodayWindow(now time.Time) (start, end time.Time) {
	return StartOfDay(now), now
}

// WeeklyWindow returns the window from midnight seven calendar days before
// now's date up to now. Both windows truncate with the same calendar so their
// results stay comparable.
func WeeklyWindow(now time.Time) (start, end time.Time) {
	return StartOfDay(now.AddDate(0, 0, -7)), now
}

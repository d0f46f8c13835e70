package timeutil

import "time"

// Date builds a calendar date at midnight UTC.
// All core date arithmetic happens on day precision in UTC; the persistence
// layer converts to the organisation's time zone at the edges.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates an instant to its calendar date in UTC
func DateOf(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns the first day of t's month
func FirstOfMonth(t time.Time) time.Time {
	year, month, _ := t.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// LastOfMonth returns the last day of t's month
func LastOfMonth(t time.Time) time.Time {
	return FirstOfMonth(t).AddDate(0, 1, -1)
}

// AddMonths adds n calendar months to d, clamping the day of month to the
// shorter target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(d time.Time, n int) time.Time {
	d = DateOf(d)
	year, month, day := d.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := LastOfMonth(first)
	if day > last.Day() {
		day = last.Day()
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (negative when b
// precedes a)
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// AbsDays returns the absolute calendar-day distance between two dates
func AbsDays(a, b time.Time) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// SameDate reports whether both instants fall on the same calendar date
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

package types

import "time"

// Day truncates t to midnight in t's own location.
// Ageing and period boundaries work on calendar days, never on wall-clock time.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from `from` to `to`.
// The result is negative when `to` precedes `from`.
func DaysBetween(from, to time.Time) int {
	a := Day(from)
	b := Day(to)
	// Normalise to UTC dates so DST transitions do not produce 23h/25h days.
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

// AfterDay reports whether t falls on a calendar day later than day.
func AfterDay(t, day time.Time) bool {
	return DaysBetween(day, t) > 0
}

// BeforeDay reports whether t falls on a calendar day earlier than day.
func BeforeDay(t, day time.Time) bool {
	return DaysBetween(day, t) < 0
}

package calendar

import "time"

// Cadence is the sampling frequency of a history read.
type Cadence string

const (
	Daily     Cadence = "daily"
	Weekly    Cadence = "weekly"
	Monthly   Cadence = "monthly"
	Quarterly Cadence = "quarterly"
	Yearly    Cadence = "yearly"
)

// IsValidCadence returns true if c is a supported cadence.
func IsValidCadence(c Cadence) bool {
	switch c {
	case Daily, Weekly, Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

// DefaultCadence returns the default cadence.
func DefaultCadence() Cadence { return Daily }

// NormalizeCadence converts a raw string to a valid cadence (or the default).
func NormalizeCadence(s string) Cadence {
	if s == "" {
		return DefaultCadence()
	}
	c := Cadence(s)
	if IsValidCadence(c) {
		return c
	}
	return DefaultCadence()
}

// PeriodStart returns the first day of the period containing d.
// Weeks start on Monday.
func PeriodStart(d time.Time, c Cadence) time.Time {
	d = Day(d)
	switch c {
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case Monthly:
		return Date(d.Year(), d.Month(), 1)
	case Quarterly:
		q := (int(d.Month()) - 1) / 3
		return Date(d.Year(), time.Month(q*3+1), 1)
	case Yearly:
		return Date(d.Year(), time.January, 1)
	default:
		return d
	}
}

// Resample keeps only the items dated on the last observed day of each period.
// Items must be sorted by date; several items may share a date.
func Resample[T any](items []T, dateOf func(T) time.Time, c Cadence) []T {
	if c == Daily || len(items) == 0 {
		return items
	}
	last := make(map[time.Time]time.Time)
	for _, it := range items {
		d := Day(dateOf(it))
		p := PeriodStart(d, c)
		if d.After(last[p]) {
			last[p] = d
		}
	}
	keep := make(map[time.Time]struct{}, len(last))
	for _, d := range last {
		keep[d] = struct{}{}
	}
	out := make([]T, 0, len(keep))
	for _, it := range items {
		if _, ok := keep[Day(dateOf(it))]; ok {
			out = append(out, it)
		}
	}
	return out
}

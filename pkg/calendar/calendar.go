package calendar

import (
	"fmt"
	"time"
)

// Layout is the wire and storage format of a trading day.
const Layout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a day from its parts.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Parse reads a YYYY-MM-DD day.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// Format renders a day as YYYY-MM-DD.
func Format(t time.Time) string { return t.Format(Layout) }

// Calendar knows which days the market trades: weekdays minus holidays.
type Calendar struct {
	holidays map[time.Time]struct{}
}

// New creates a calendar with the given exchange holidays.
func New(holidays ...time.Time) *Calendar {
	c := &Calendar{holidays: make(map[time.Time]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[Day(h)] = struct{}{}
	}
	return c
}

// IsTradingDay reports whether the market is open on d.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	d = Day(d)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[d]
	return !holiday
}

// Next returns the first trading day strictly after d.
func (c *Calendar) Next(d time.Time) time.Time {
	d = Day(d).AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Prev returns the last trading day strictly before d.
func (c *Calendar) Prev(d time.Time) time.Time {
	d = Day(d).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Days lists the trading days in [from, to], inclusive, in ascending order.
func (c *Calendar) Days(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)
	if from.After(to) {
		return nil
	}
	out := make([]time.Time, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// LastCompleteTradingDay is the most recent trading day that closed before now's date.
func (c *Calendar) LastCompleteTradingDay(now time.Time) time.Time {
	return c.Prev(now)
}

// Window is an inclusive range of days.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Empty reports whether the window holds no days at all.
func (w Window) Empty() bool { return w.From.After(w.To) }

// Contains reports whether d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(w.From) && !d.After(w.To)
}

func (w Window) String() string {
	return Format(w.From) + ".." + Format(w.To)
}

// SyncWindow decides which days persisted history is missing.
//
// latest is the newest persisted day (nil when nothing is stored), start is
// where a history begins when empty. The horizon is the last complete trading
// day; when yesterday was not a trading day and today is, the horizon moves to
// today so the first session after a weekend or holiday is picked up. That
// row is valued before the close, usually on the previous session's price,
// and a later non-overwriting sync does not revisit it; Rebuild corrects it. The
// returned bool is true when the window holds at least one trading day.
func (c *Calendar) SyncWindow(latest *time.Time, start, now time.Time) (Window, bool) {
	today := Day(now)
	horizon := c.LastCompleteTradingDay(today)
	if !c.IsTradingDay(today.AddDate(0, 0, -1)) && c.IsTradingDay(today) {
		horizon = today
	}

	from := Day(start)
	if latest != nil {
		from = Day(*latest).AddDate(0, 0, 1)
	}
	w := Window{From: from, To: horizon}
	if w.Empty() {
		return w, false
	}
	return w, len(c.Days(w.From, w.To)) > 0
}

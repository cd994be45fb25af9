package aggregation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Window is a fixed lookback for milestone returns.
type Window string

const (
	Window1W  Window = "1W"
	Window1M  Window = "1M"
	Window3M  Window = "3M"
	Window6M  Window = "6M"
	WindowYTD Window = "YTD"
	Window1Y  Window = "1Y"
	Window3Y  Window = "3Y"
	Window5Y  Window = "5Y"
	WindowAll Window = "ALL"
)

var DefaultWindows = []Window{Window1W, Window1M, Window3M, Window6M, WindowYTD, Window1Y, Window3Y, Window5Y, WindowAll}

// Point is one dated observation of a value series.
type Point struct {
	Date  time.Time
	Value decimal.Decimal
}

type Milestone struct {
	Window  Window              `json:"window"`
	Since   time.Time           `json:"since"`
	Base    decimal.NullDecimal `json:"base"`
	Current decimal.NullDecimal `json:"current"`
	Return  decimal.NullDecimal `json:"return"`
}

// lookback returns the base date of w as seen from asOf. YTD is measured from
// the previous year's last day.
func lookback(w Window, asOf time.Time) (time.Time, bool) {
	switch w {
	case Window1W:
		return asOf.AddDate(0, 0, -7), true
	case Window1M:
		return asOf.AddDate(0, -1, 0), true
	case Window3M:
		return asOf.AddDate(0, -3, 0), true
	case Window6M:
		return asOf.AddDate(0, -6, 0), true
	case WindowYTD:
		return time.Date(asOf.Year()-1, time.December, 31, 0, 0, 0, 0, time.UTC), true
	case Window1Y:
		return asOf.AddDate(-1, 0, 0), true
	case Window3Y:
		return asOf.AddDate(-3, 0, 0), true
	case Window5Y:
		return asOf.AddDate(-5, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// Milestones computes the return of points over each window ending at asOf.
// points must be sorted by date. Base and current values are the latest
// observations on or before their dates. A window reaching back past the
// first observation has no base and a null return; ALL always starts at the
// first observation.
func Milestones(points []Point, asOf time.Time, windows []Window) []Milestone {
	at := func(d time.Time) (Point, bool) {
		i := sort.Search(len(points), func(i int) bool { return points[i].Date.After(d) })
		if i == 0 {
			return Point{}, false
		}
		return points[i-1], true
	}

	out := make([]Milestone, 0, len(windows))
	cur, haveCur := at(asOf)
	for _, w := range windows {
		m := Milestone{Window: w}
		if haveCur {
			m.Current = decimal.NewNullDecimal(cur.Value)
		}

		var base Point
		var haveBase bool
		if since, ok := lookback(w, asOf); ok {
			m.Since = since
			base, haveBase = at(since)
		} else if len(points) > 0 {
			base, haveBase = points[0], true
			m.Since = base.Date
		}
		if haveBase {
			m.Base = decimal.NewNullDecimal(base.Value)
			if haveCur && !base.Value.IsZero() {
				m.Return = decimal.NewNullDecimal(cur.Value.Sub(base.Value).Div(base.Value))
			}
		}
		out = append(out, m)
	}
	return out
}

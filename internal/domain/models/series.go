package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the held quantity and its cost basis at the end of a day.
type Position struct {
	Date      time.Time       `json:"date"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// Series is a sparse, date-ordered position history: one entry per day on
// which an event changed the position.
type Series []Position

// At returns the position in effect on d, forward-filling from the latest
// entry dated on or before d.
func (s Series) At(d time.Time) (Position, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(d) })
	if i == 0 {
		return Position{}, false
	}
	return s[i-1], true
}

func (s Series) Last() (Position, bool) {
	if len(s) == 0 {
		return Position{}, false
	}
	return s[len(s)-1], true
}

// PricePoint is one daily close.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// PriceSeries is a date-ordered close history.
type PriceSeries []PricePoint

// At returns the close in effect on d, carrying the last observation forward
// across holidays and missing sessions.
func (p PriceSeries) At(d time.Time) (PricePoint, bool) {
	i := sort.Search(len(p), func(i int) bool { return p[i].Date.After(d) })
	if i == 0 {
		return PricePoint{}, false
	}
	return p[i-1], true
}

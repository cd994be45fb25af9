package ledger

import (
	"fmt"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/calendar"

	"github.com/shopspring/decimal"
)

// State is the running position of one symbol during replay.
type State struct {
	Quantity  decimal.Decimal
	CostBasis decimal.Decimal
	// Transferred is the cost basis handed to acquirers.
	Transferred decimal.Decimal
	// Received is the cost basis taken over from acquisition targets.
	Received  decimal.Decimal
	Dividends decimal.Decimal
	FirstBuy  *time.Time
	LastBuy   *time.Time
	lots      lots
}

// OpenLots returns the number of lots still held.
func (s State) OpenLots() int { return len(s.lots) }

// targetLookup returns the position of an acquisition target on a day.
type targetLookup func(target string, day time.Time) (models.Position, bool)

// transition applies events to a State. It holds no per-symbol data.
type transition struct {
	method CostBasisMethod
	cal    *calendar.Calendar
	lookup targetLookup
}

// apply is the reduction step of replay: it returns the state after e. The
// input state is not modified.
func (t transition) apply(s State, e models.Event) (State, error) {
	switch e.Kind {
	case models.KindTrade:
		switch e.Trade.Action {
		case models.ActionBuy:
			return t.buy(s, e)
		case models.ActionSell:
			return t.sell(s, e)
		default:
			return s, fmt.Errorf("%w: %s trade action %q on %s", models.ErrInvalidEvent, e.Symbol, e.Trade.Action, calendar.Format(e.Date))
		}
	case models.KindSplit:
		return t.split(s, e)
	case models.KindDividend:
		s.Dividends = s.Dividends.Add(e.Dividend.Amount)
		return s, nil
	case models.KindAcquisitionTarget:
		s.Transferred = s.Transferred.Add(s.CostBasis)
		s.Quantity = decimal.Zero
		s.CostBasis = decimal.Zero
		s.lots = nil
		return s, nil
	case models.KindAcquisitionAcquirer:
		return t.acquire(s, e)
	default:
		return s, fmt.Errorf("%w: %s unknown kind %d", models.ErrInvalidEvent, e.Symbol, int(e.Kind))
	}
}

func (t transition) buy(s State, e models.Event) (State, error) {
	tr := e.Trade
	if !tr.Shares.IsPositive() || tr.PricePerShare.IsNegative() {
		return s, fmt.Errorf("%w: %s buy of %s at %s on %s", models.ErrInvalidEvent, e.Symbol, tr.Shares, tr.PricePerShare, calendar.Format(e.Date))
	}
	cost := tr.Shares.Mul(tr.PricePerShare)
	s.lots = s.lots.insert(lot{Date: e.Date, Shares: tr.Shares, Cost: cost})
	s.Quantity = s.Quantity.Add(tr.Shares)
	s.CostBasis = s.CostBasis.Add(cost)
	if s.FirstBuy == nil {
		d := e.Date
		s.FirstBuy = &d
	}
	d := e.Date
	s.LastBuy = &d
	return s, nil
}

func (t transition) sell(s State, e models.Event) (State, error) {
	qty := e.Trade.Shares
	if !qty.IsPositive() {
		return s, fmt.Errorf("%w: %s sell of %s on %s", models.ErrInvalidEvent, e.Symbol, qty, calendar.Format(e.Date))
	}
	if qty.GreaterThan(s.Quantity) {
		return s, &models.OversellError{Symbol: e.Symbol, Date: e.Date, Requested: qty, Held: s.Quantity}
	}

	held := s.Quantity
	rest, fifoCost := s.lots.consume(qty)
	removed := fifoCost
	if t.method == AverageCost {
		removed = s.CostBasis.Mul(qty).Div(held)
	}
	s.lots = rest
	s.Quantity = held.Sub(qty)
	s.CostBasis = s.CostBasis.Sub(removed)
	if s.Quantity.IsZero() {
		// no residue from rounding on a full exit
		s.CostBasis = decimal.Zero
		s.lots = nil
	}
	return s, nil
}

func (t transition) split(s State, e models.Event) (State, error) {
	r := e.Split.Ratio
	if !r.IsPositive() {
		return s, fmt.Errorf("%w: %s split ratio %s on %s", models.ErrInvalidEvent, e.Symbol, r, calendar.Format(e.Date))
	}
	s.lots = s.lots.split(r)
	s.Quantity = s.Quantity.Mul(r)
	return s, nil
}

// acquire credits floor(target quantity * ratio) shares, valued at the
// target's cost basis, both taken from the target's position at the close of
// the previous trading day.
func (t transition) acquire(s State, e models.Event) (State, error) {
	a := e.Acquisition
	if !a.ConversionRatio.IsPositive() {
		return s, fmt.Errorf("%w: %s acquisition ratio %s on %s", models.ErrInvalidEvent, e.Symbol, a.ConversionRatio, calendar.Format(e.Date))
	}
	var target models.Position
	if t.lookup != nil {
		target, _ = t.lookup(a.Target, t.cal.Prev(e.Date))
	}
	shares := target.Quantity.Mul(a.ConversionRatio).Floor()
	if !shares.IsPositive() && !target.CostBasis.IsPositive() {
		return s, nil
	}
	s.lots = s.lots.insert(lot{Date: e.Date, Shares: shares, Cost: target.CostBasis})
	s.Quantity = s.Quantity.Add(shares)
	s.CostBasis = s.CostBasis.Add(target.CostBasis)
	s.Received = s.Received.Add(target.CostBasis)
	return s, nil
}

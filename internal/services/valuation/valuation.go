// Package valuation joins position series with daily closes.
package valuation

import (
	"slices"
	"strings"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/calendar"

	"github.com/shopspring/decimal"
)

type Generator struct {
	cal *calendar.Calendar
}

func New(cal *calendar.Calendar) *Generator {
	return &Generator{cal: cal}
}

// Valuate produces one row per trading day in [from, to], starting no earlier
// than the symbol's first event. Positions and prices are carried forward
// from the latest observation on or before each day. A day with no price at
// all yields a *models.PriceGapError and a row with null price, value and
// return; the rest of the range is still valued.
func (g *Generator) Valuate(symbol string, series models.Series, prices models.PriceSeries, from, to time.Time) ([]models.ValuationRow, []error) {
	return g.valuate(symbol, series, prices, from, to, false)
}

// ValuateHypothetical is Valuate with every full exit undone: after the
// quantity drops to zero, the last held quantity and cost basis are carried
// forward until the symbol is bought again.
func (g *Generator) ValuateHypothetical(symbol string, series models.Series, prices models.PriceSeries, from, to time.Time) ([]models.ValuationRow, []error) {
	return g.valuate(symbol, series, prices, from, to, true)
}

func (g *Generator) valuate(symbol string, series models.Series, prices models.PriceSeries, from, to time.Time, hypothetical bool) ([]models.ValuationRow, []error) {
	if len(series) == 0 {
		return nil, nil
	}
	from, to = calendar.Day(from), calendar.Day(to)

	// a projection needs the last held position even when it predates from
	var held models.Position
	var haveHeld bool
	start := from
	if first := series[0].Date; first.After(start) {
		start = first
	}
	if hypothetical {
		for _, p := range series {
			if p.Date.After(start) {
				break
			}
			if p.Quantity.IsPositive() {
				held, haveHeld = p, true
			}
		}
	}

	days := g.cal.Days(start, to)
	rows := make([]models.ValuationRow, 0, len(days))
	var errs []error
	for _, day := range days {
		pos, _ := series.At(day)
		if hypothetical {
			if pos.Quantity.IsPositive() {
				held, haveHeld = pos, true
			} else if haveHeld {
				pos.Quantity, pos.CostBasis = held.Quantity, held.CostBasis
			}
		}

		row := models.ValuationRow{
			Date:      day,
			Symbol:    symbol,
			Quantity:  pos.Quantity,
			CostBasis: pos.CostBasis,
		}
		price, ok := prices.At(day)
		if !ok {
			errs = append(errs, &models.PriceGapError{Symbol: symbol, Date: day})
			rows = append(rows, row)
			continue
		}
		row.ClosingPrice = decimal.NewNullDecimal(price.Close)
		if !pos.Quantity.IsZero() {
			value := pos.Quantity.Mul(price.Close)
			row.Value = decimal.NewNullDecimal(value)
			if !pos.CostBasis.IsZero() {
				row.PercentReturn = decimal.NewNullDecimal(value.Sub(pos.CostBasis).Div(pos.CostBasis))
			}
		}
		rows = append(rows, row)
	}
	return rows, errs
}

// ValuateAll values every symbol in series and returns the rows ordered by
// (date, symbol). Symbols without prices are valued with gaps.
func (g *Generator) ValuateAll(series map[string]models.Series, prices map[string]models.PriceSeries, from, to time.Time, hypothetical bool) ([]models.ValuationRow, []error) {
	symbols := make([]string, 0, len(series))
	for s := range series {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)

	var rows []models.ValuationRow
	var errs []error
	for _, s := range symbols {
		r, e := g.valuate(s, series[s], prices[s], from, to, hypothetical)
		rows = append(rows, r...)
		errs = append(errs, e...)
	}
	slices.SortStableFunc(rows, func(a, b models.ValuationRow) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return rows, errs
}

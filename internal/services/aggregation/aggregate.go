// Package aggregation groups valuation rows by dimension and derives
// return statistics from them.
package aggregation

import (
	"slices"
	"strings"
	"time"

	"PortfolioHistory/internal/domain/models"

	"github.com/shopspring/decimal"
)

// DimensionOf maps a symbol to its group. ok=false leaves the symbol out.
type DimensionOf func(symbol string) (key string, ok bool)

// ForDimension builds the grouping function of an aggregate dimension from
// entity metadata. Symbols without metadata only land in groups that do not
// depend on it, which is the portfolio.
func ForDimension(dim models.Dimension, meta map[string]models.EntityMeta) DimensionOf {
	keyOf := dim.Descriptor().KeyOf
	if keyOf == nil {
		return func(string) (string, bool) { return "", false }
	}
	return func(symbol string) (string, bool) {
		m := meta[symbol]
		m.Symbol = symbol
		return keyOf(m)
	}
}

type groupKey struct {
	date time.Time
	key  string
}

type accumulator struct {
	value   decimal.Decimal
	cost    decimal.Decimal
	retSum  decimal.Decimal
	retSeen int64
}

// Aggregate sums value and cost basis per (date, group) in a single pass.
// Null values and returns are skipped; the mean return weighs every
// contributing row equally and is null when no row has a return.
func Aggregate(rows []models.ValuationRow, dimensionOf DimensionOf) map[string][]models.AggregateRow {
	acc := make(map[groupKey]*accumulator)
	order := make([]groupKey, 0)
	memo := make(map[string]string)
	excluded := make(map[string]struct{})

	for _, r := range rows {
		key, ok := memo[r.Symbol]
		if !ok {
			if _, skip := excluded[r.Symbol]; skip {
				continue
			}
			if key, ok = dimensionOf(r.Symbol); !ok {
				excluded[r.Symbol] = struct{}{}
				continue
			}
			memo[r.Symbol] = key
		}

		gk := groupKey{date: r.Date, key: key}
		a := acc[gk]
		if a == nil {
			a = &accumulator{}
			acc[gk] = a
			order = append(order, gk)
		}
		if r.Value.Valid {
			a.value = a.value.Add(r.Value.Decimal)
		}
		a.cost = a.cost.Add(r.CostBasis)
		if r.PercentReturn.Valid {
			a.retSum = a.retSum.Add(r.PercentReturn.Decimal)
			a.retSeen++
		}
	}

	out := make(map[string][]models.AggregateRow)
	for _, gk := range order {
		a := acc[gk]
		row := models.AggregateRow{
			Date:           gk.date,
			DimensionValue: gk.key,
			SumValue:       a.value,
			SumCostBasis:   a.cost,
		}
		if a.retSeen > 0 {
			row.MeanPercentReturn = decimal.NewNullDecimal(a.retSum.Div(decimal.NewFromInt(a.retSeen)))
		}
		out[gk.key] = append(out[gk.key], row)
	}
	for k := range out {
		slices.SortFunc(out[k], func(a, b models.AggregateRow) int { return a.Date.Compare(b.Date) })
	}
	return out
}

// Flatten orders grouped rows by (date, key) for writing.
func Flatten(groups map[string][]models.AggregateRow) []models.AggregateRow {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]models.AggregateRow, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	slices.SortFunc(out, func(a, b models.AggregateRow) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.DimensionValue, b.DimensionValue)
	})
	return out
}

package valuation

import (
	"testing"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/calendar"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time { return calendar.Date(y, m, day) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pos(date time.Time, qty, cost string) models.Position {
	return models.Position{Date: date, Quantity: dec(qty), CostBasis: dec(cost)}
}

func px(date time.Time, close string) models.PricePoint {
	return models.PricePoint{Date: date, Close: dec(close)}
}

func TestValuateForwardFillsAcrossHolidays(t *testing.T) {
	// 2024-07-04 is a holiday, 07-06/07 a weekend.
	g := New(calendar.New(d(2024, 7, 4)))
	series := models.Series{pos(d(2024, 7, 2), "10", "1000")}
	prices := models.PriceSeries{px(d(2024, 7, 1), "99"), px(d(2024, 7, 3), "110")}

	rows, errs := g.Valuate("AAA", series, prices, d(2024, 7, 1), d(2024, 7, 8))
	require.Empty(t, errs)

	var dates []string
	for _, r := range rows {
		dates = append(dates, calendar.Format(r.Date))
	}
	assert.Equal(t, []string{"2024-07-02", "2024-07-03", "2024-07-05", "2024-07-08"}, dates)

	last := rows[len(rows)-1]
	require.True(t, last.ClosingPrice.Valid)
	assert.True(t, dec("110").Equal(last.ClosingPrice.Decimal))
	assert.True(t, dec("1100").Equal(last.Value.Decimal))
	assert.True(t, dec("0.1").Equal(last.PercentReturn.Decimal))

	first := rows[0]
	assert.True(t, dec("990").Equal(first.Value.Decimal))
	assert.True(t, dec("-0.01").Equal(first.PercentReturn.Decimal))
}

func TestValuatePriceGap(t *testing.T) {
	g := New(calendar.New())
	series := models.Series{pos(d(2024, 1, 2), "1", "10")}
	prices := models.PriceSeries{px(d(2024, 1, 4), "12")}

	rows, errs := g.Valuate("AAA", series, prices, d(2024, 1, 2), d(2024, 1, 4))
	require.Len(t, rows, 3)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], models.ErrPriceGap)
	var gap *models.PriceGapError
	require.ErrorAs(t, errs[1], &gap)
	assert.Equal(t, d(2024, 1, 3), gap.Date)

	assert.False(t, rows[0].ClosingPrice.Valid)
	assert.False(t, rows[0].Value.Valid)
	assert.False(t, rows[0].PercentReturn.Valid)
	assert.True(t, dec("1").Equal(rows[0].Quantity))
	assert.True(t, rows[2].Value.Valid)
}

func TestValuateAfterExitIsNullNotZero(t *testing.T) {
	g := New(calendar.New())
	series := models.Series{
		pos(d(2024, 1, 2), "5", "50"),
		pos(d(2024, 1, 4), "0", "0"),
	}
	prices := models.PriceSeries{px(d(2024, 1, 1), "11")}

	rows, errs := g.Valuate("AAA", series, prices, d(2024, 1, 1), d(2024, 1, 5))
	require.Empty(t, errs)
	require.Len(t, rows, 4)
	assert.Equal(t, d(2024, 1, 2), rows[0].Date)

	exited := rows[2]
	assert.True(t, exited.Quantity.IsZero())
	assert.True(t, exited.ClosingPrice.Valid)
	assert.False(t, exited.Value.Valid)
	assert.False(t, exited.PercentReturn.Valid)
}

func TestValuateZeroCostBasisHasNoReturn(t *testing.T) {
	g := New(calendar.New())
	series := models.Series{pos(d(2024, 1, 2), "5", "0")}
	prices := models.PriceSeries{px(d(2024, 1, 2), "3")}

	rows, _ := g.Valuate("GIFT", series, prices, d(2024, 1, 2), d(2024, 1, 2))
	require.Len(t, rows, 1)
	assert.True(t, dec("15").Equal(rows[0].Value.Decimal))
	assert.False(t, rows[0].PercentReturn.Valid)
}

func TestValuateHypotheticalProjectsLastHolding(t *testing.T) {
	g := New(calendar.New())
	series := models.Series{
		pos(d(2024, 1, 2), "5", "50"),
		pos(d(2024, 1, 3), "0", "0"),
		pos(d(2024, 1, 8), "1", "20"),
	}
	prices := models.PriceSeries{px(d(2024, 1, 2), "20")}

	rows, errs := g.ValuateHypothetical("AAA", series, prices, d(2024, 1, 4), d(2024, 1, 8))
	require.Empty(t, errs)
	require.Len(t, rows, 3)

	for _, r := range rows[:2] {
		assert.True(t, dec("5").Equal(r.Quantity), "projected quantity on %s", r.Date)
		assert.True(t, dec("100").Equal(r.Value.Decimal))
		assert.True(t, dec("1").Equal(r.PercentReturn.Decimal))
	}
	assert.True(t, dec("1").Equal(rows[2].Quantity), "re-entry wins over projection")
}

func TestValuateAllOrdersByDateThenSymbol(t *testing.T) {
	g := New(calendar.New())
	series := map[string]models.Series{
		"BBB": {pos(d(2024, 1, 2), "1", "1")},
		"AAA": {pos(d(2024, 1, 3), "1", "1")},
	}
	prices := map[string]models.PriceSeries{
		"AAA": {px(d(2024, 1, 2), "2")},
		"BBB": {px(d(2024, 1, 2), "2")},
	}
	rows, errs := g.ValuateAll(series, prices, d(2024, 1, 2), d(2024, 1, 3), false)
	require.Empty(t, errs)
	var got []string
	for _, r := range rows {
		got = append(got, calendar.Format(r.Date)+" "+r.Symbol)
	}
	assert.Equal(t, []string{"2024-01-02 BBB", "2024-01-03 AAA", "2024-01-03 BBB"}, got)
}

func TestValuateEmptySeries(t *testing.T) {
	rows, errs := New(calendar.New()).Valuate("AAA", nil, nil, d(2024, 1, 1), d(2024, 1, 31))
	assert.Empty(t, rows)
	assert.Empty(t, errs)
}

package aggregation

import (
	"testing"

	"PortfolioHistory/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	rows := []models.ValuationRow{
		row(d(2024, 1, 2), "AAA", "1", "100", ""),
		row(d(2024, 1, 2), "BBB", "1", "10", ""),
		row(d(2024, 1, 3), "AAA", "1", "110", ""),
		row(d(2024, 1, 3), "BBB", "1", "", ""),
		row(d(2024, 1, 4), "AAA", "1", "99", ""),
	}
	stats := ComputeStats(rows, 0)
	require.Len(t, stats, 2)

	a := stats["AAA"]
	assert.Equal(t, 3, a.Observations)
	assert.True(t, dec("100").Equal(a.First))
	assert.True(t, dec("99").Equal(a.Last))
	assert.True(t, dec("110").Equal(a.Max))
	assert.Equal(t, d(2024, 1, 4), a.LastDate)
	assert.InDelta(t, -0.01, a.TotalReturn, 1e-9)
	// returns +10% and -10%: zero mean, positive volatility
	assert.InDelta(t, 0, a.Sharpe, 1e-9)
	assert.Greater(t, a.Volatility, 0.0)

	b := stats["BBB"]
	assert.Equal(t, 1, b.Observations)
	assert.Zero(t, b.Sharpe)
}

func TestSharpeAndSortinoSigns(t *testing.T) {
	var up []models.ValuationRow
	price := decimal.NewFromInt(100)
	for i := 0; i < 30; i++ {
		step := "1.01"
		if i%4 == 3 {
			step = "0.995"
		}
		price = price.Mul(dec(step))
		up = append(up, row(d(2024, 1, 1).AddDate(0, 0, i), "UP", "1", price.String(), ""))
	}
	s := ComputeStats(up, 0)["UP"]
	assert.Greater(t, s.Sharpe, 0.0)
	assert.Greater(t, s.Sortino, s.Sharpe, "few down days: downside deviation below total deviation")
}

func TestComputeAggregateStatsUsesValuePerCost(t *testing.T) {
	rows := []models.AggregateRow{
		{Date: d(2024, 1, 2), DimensionValue: "Tech", SumValue: dec("100"), SumCostBasis: dec("100")},
		// a contribution doubles value and cost: no return
		{Date: d(2024, 1, 3), DimensionValue: "Tech", SumValue: dec("200"), SumCostBasis: dec("200")},
		{Date: d(2024, 1, 4), DimensionValue: "Tech", SumValue: dec("220"), SumCostBasis: dec("200")},
		{Date: d(2024, 1, 4), DimensionValue: "Empty", SumValue: decimal.Zero, SumCostBasis: decimal.Zero},
	}
	stats := ComputeAggregateStats(rows, 0)
	require.Contains(t, stats, "Tech")
	assert.NotContains(t, stats, "Empty")
	assert.InDelta(t, 0.1, stats["Tech"].TotalReturn, 1e-9)
}

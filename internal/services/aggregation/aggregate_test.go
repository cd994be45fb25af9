package aggregation

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

func row(date time.Time, symbol, cost string, value, ret string) models.ValuationRow {
	r := models.ValuationRow{Date: date, Symbol: symbol, Quantity: dec("1"), CostBasis: dec(cost)}
	if value != "" {
		r.Value = decimal.NewNullDecimal(dec(value))
		r.ClosingPrice = decimal.NewNullDecimal(dec(value))
	}
	if ret != "" {
		r.PercentReturn = decimal.NewNullDecimal(dec(ret))
	}
	return r
}

var meta = map[string]models.EntityMeta{
	"AAA": {Sector: "Tech", AssetType: "Stock", Geography: "US", AccountType: "Taxable"},
	"BBB": {Sector: "Tech", AssetType: "Stock", Geography: "EU", AccountType: "IRA"},
	"CCC": {Sector: "Energy", AssetType: "ETF", Geography: "US", AccountType: models.AccountTypeAgnostic},
}

func TestAggregateSumsGroup(t *testing.T) {
	rows := []models.ValuationRow{
		row(d(2024, 1, 2), "AAA", "80", "100", "0.25"),
		row(d(2024, 1, 2), "BBB", "50", "50", "0"),
	}
	groups := Aggregate(rows, ForDimension(models.DimensionSector, meta))
	require.Len(t, groups["Tech"], 1)

	tech := groups["Tech"][0]
	assert.Equal(t, "Tech", tech.DimensionValue)
	assert.True(t, dec("150").Equal(tech.SumValue))
	assert.True(t, dec("130").Equal(tech.SumCostBasis))
	require.True(t, tech.MeanPercentReturn.Valid)
	assert.True(t, dec("0.125").Equal(tech.MeanPercentReturn.Decimal))
}

func TestAggregateSkipsNulls(t *testing.T) {
	rows := []models.ValuationRow{
		row(d(2024, 1, 2), "AAA", "80", "100", "0.25"),
		row(d(2024, 1, 2), "BBB", "50", "", ""),
	}
	tech := Aggregate(rows, ForDimension(models.DimensionSector, meta))["Tech"][0]
	assert.True(t, dec("100").Equal(tech.SumValue))
	assert.True(t, dec("0.25").Equal(tech.MeanPercentReturn.Decimal))

	onlyNull := Aggregate(rows[1:], ForDimension(models.DimensionSector, meta))["Tech"][0]
	assert.True(t, onlyNull.SumValue.IsZero())
	assert.False(t, onlyNull.MeanPercentReturn.Valid)
}

func TestAggregateExcludesAgnosticAccounts(t *testing.T) {
	rows := []models.ValuationRow{
		row(d(2024, 1, 2), "AAA", "1", "1", ""),
		row(d(2024, 1, 2), "CCC", "1", "1", ""),
		row(d(2024, 1, 2), "ZZZ", "1", "1", ""),
	}
	groups := Aggregate(rows, ForDimension(models.DimensionAccountType, meta))
	assert.Len(t, groups, 1)
	assert.Contains(t, groups, "Taxable")
	assert.NotContains(t, groups, models.AccountTypeAgnostic)
}

func TestDimensionSumsEqualPortfolioTotal(t *testing.T) {
	var rows []models.ValuationRow
	for i, day := range []time.Time{d(2024, 1, 2), d(2024, 1, 3), d(2024, 1, 4)} {
		n := decimal.NewFromInt(int64(i + 1))
		rows = append(rows,
			row(day, "AAA", "10", n.Mul(dec("11.5")).String(), "0.1"),
			row(day, "BBB", "20", n.Mul(dec("7.25")).String(), "-0.2"),
			row(day, "CCC", "30", n.Mul(dec("3")).String(), ""),
		)
	}

	portfolio := Aggregate(rows, ForDimension(models.DimensionPortfolio, meta))[models.PortfolioKey]
	require.Len(t, portfolio, 3)

	for _, dim := range []models.Dimension{models.DimensionSector, models.DimensionAssetType, models.DimensionGeography} {
		t.Run(dim.String(), func(t *testing.T) {
			groups := Aggregate(rows, ForDimension(dim, meta))
			for _, p := range portfolio {
				value, cost := decimal.Zero, decimal.Zero
				for _, g := range groups {
					for _, r := range g {
						if r.Date.Equal(p.Date) {
							value = value.Add(r.SumValue)
							cost = cost.Add(r.SumCostBasis)
						}
					}
				}
				assert.True(t, p.SumValue.Equal(value), "value on %s: %s vs %s", p.Date, p.SumValue, value)
				assert.True(t, p.SumCostBasis.Equal(cost))
			}
		})
	}
}

func TestAggregateRowsAreDateOrdered(t *testing.T) {
	rows := []models.ValuationRow{
		row(d(2024, 1, 3), "AAA", "1", "2", ""),
		row(d(2024, 1, 2), "BBB", "1", "2", ""),
		row(d(2024, 1, 2), "AAA", "1", "2", ""),
	}
	groups := Aggregate(rows, ForDimension(models.DimensionPortfolio, meta))
	p := groups[models.PortfolioKey]
	require.Len(t, p, 2)
	assert.Equal(t, d(2024, 1, 2), p[0].Date)
	assert.True(t, dec("4").Equal(p[0].SumValue))

	flat := Flatten(Aggregate(rows, ForDimension(models.DimensionGeography, meta)))
	require.Len(t, flat, 3)
	assert.Equal(t, "EU", flat[0].DimensionValue)
	assert.Equal(t, "US", flat[1].DimensionValue)
	assert.Equal(t, d(2024, 1, 3), flat[2].Date)
}

func TestAssetDimensionHasNoGrouping(t *testing.T) {
	groups := Aggregate([]models.ValuationRow{row(d(2024, 1, 2), "AAA", "1", "1", "")}, ForDimension(models.DimensionAsset, meta))
	assert.Empty(t, groups)
}

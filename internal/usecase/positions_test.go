package usecase

import (
	"context"
	"testing"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/internal/services/ledger"
	"PortfolioHistory/internal/services/masterlog"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPositions(prices *priceStub) *Positions {
	events := &eventStore{events: []models.Event{
		models.NewBuy(day(2024, time.March, 1), "AAA", dec("10"), dec("100"), "Taxable"),
		models.NewDividend(day(2024, time.March, 5), "AAA", dec("7.5"), "Taxable"),
		models.NewBuy(day(2024, time.March, 4), "BBB", dec("5"), dec("20"), "IRA"),
		models.NewSell(day(2024, time.March, 6), "BBB", dec("5"), dec("25"), "IRA"),
	}}
	p := NewPositions(masterlog.New(events), ledger.New(calendar.New()), prices, applogger.Nop())
	p.now = func() time.Time { return monday }
	return p
}

func TestSummariesPricesOpenPositions(t *testing.T) {
	p := newTestPositions(&priceStub{quotes: map[string]decimal.Decimal{"AAA": dec("120")}})

	report, err := p.Summaries(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 11), report.AsOf)
	require.Len(t, report.Positions, 1)

	aaa := report.Positions[0]
	assert.Equal(t, "AAA", aaa.Symbol)
	assert.True(t, dec("10").Equal(aaa.Quantity))
	assert.True(t, dec("1000").Equal(aaa.CostBasis))
	assert.True(t, dec("7.5").Equal(aaa.TotalDividends))
	require.True(t, aaa.CurrentValue.Valid)
	assert.True(t, dec("1200").Equal(aaa.CurrentValue.Decimal))
}

func TestSummariesIncludeClosed(t *testing.T) {
	p := newTestPositions(&priceStub{})

	report, err := p.Summaries(context.Background(), nil, true)
	require.NoError(t, err)
	require.Len(t, report.Positions, 2)
	assert.Equal(t, "BBB", report.Positions[1].Symbol)
	assert.True(t, report.Positions[1].Quantity.IsZero())
	assert.False(t, report.Positions[1].CurrentPrice.Valid)
}

func TestSummariesWithoutQuotes(t *testing.T) {
	p := newTestPositions(&priceStub{quoteErr: models.ErrRateLimited})

	report, err := p.Summaries(context.Background(), []string{"AAA"}, false)
	require.NoError(t, err)
	require.Len(t, report.Positions, 1)
	assert.False(t, report.Positions[0].CurrentPrice.Valid)
	assert.False(t, report.Positions[0].CurrentValue.Valid)
}

func TestSummariesReportsFailedSymbols(t *testing.T) {
	events := &eventStore{events: []models.Event{
		models.NewBuy(day(2024, time.March, 4), "AAA", dec("1"), dec("10"), "Taxable"),
		models.NewSell(day(2024, time.March, 5), "AAA", dec("3"), dec("10"), "Taxable"),
	}}
	p := NewPositions(masterlog.New(events), ledger.New(calendar.New()), &priceStub{}, applogger.Nop())
	p.now = func() time.Time { return monday }

	report, err := p.Summaries(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Empty(t, report.Positions)
	require.Contains(t, report.Failed, "AAA")
	assert.Contains(t, report.Failed["AAA"], "oversell")
}

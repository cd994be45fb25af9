package ledger

import (
	"context"
	"errors"
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

func assertDec(t *testing.T, want string, got decimal.Decimal, msg ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msg)
}

func replay(t *testing.T, e *Engine, events ...models.Event) *Result {
	t.Helper()
	res, err := e.Replay(context.Background(), models.NewMasterLog(events, nil, nil))
	require.NoError(t, err)
	return res
}

func TestSplitThenPartialSell(t *testing.T) {
	res := replay(t, New(calendar.New()),
		models.NewBuy(d(2024, 1, 2), "AAA", dec("10"), dec("100"), "Taxable"),
		models.NewSplit(d(2024, 2, 1), "AAA", dec("2")),
		models.NewSell(d(2024, 3, 1), "AAA", dec("15"), dec("80"), "Taxable"),
	)
	require.Empty(t, res.Errors)

	series := res.Series["AAA"]
	require.Len(t, series, 3)

	afterSplit, ok := series.At(d(2024, 2, 15))
	require.True(t, ok)
	assertDec(t, "20", afterSplit.Quantity)
	assertDec(t, "1000", afterSplit.CostBasis)

	last, _ := series.Last()
	assertDec(t, "5", last.Quantity)
	assertDec(t, "250", last.CostBasis)
	assert.Equal(t, 1, res.States["AAA"].OpenLots())
}

func TestSplitPreservesCostBasis(t *testing.T) {
	res := replay(t, New(calendar.New()),
		models.NewBuy(d(2024, 1, 2), "AAA", dec("3"), dec("10"), ""),
		models.NewBuy(d(2024, 1, 3), "AAA", dec("4"), dec("12.5"), ""),
		models.NewSplit(d(2024, 1, 4), "AAA", dec("1.5")),
	)
	series := res.Series["AAA"]
	before, _ := series.At(d(2024, 1, 3))
	after, _ := series.At(d(2024, 1, 4))
	assert.True(t, before.CostBasis.Equal(after.CostBasis))
	assert.True(t, before.Quantity.Mul(dec("1.5")).Equal(after.Quantity))
}

func TestOversellIsIsolated(t *testing.T) {
	res := replay(t, New(calendar.New()),
		models.NewBuy(d(2024, 1, 2), "AAA", dec("10"), dec("100"), ""),
		models.NewSell(d(2024, 1, 3), "AAA", dec("11"), dec("100"), ""),
		models.NewBuy(d(2024, 1, 2), "BBB", dec("1"), dec("5"), ""),
	)

	require.Contains(t, res.Errors, "AAA")
	var oe *models.OversellError
	require.True(t, errors.As(res.Errors["AAA"], &oe))
	assert.Equal(t, "AAA", oe.Symbol)
	assertDec(t, "11", oe.Requested)
	assertDec(t, "10", oe.Held)
	assert.ErrorIs(t, res.Errors["AAA"], models.ErrOversell)
	assert.NotContains(t, res.Series, "AAA")

	require.Contains(t, res.Series, "BBB")
	assert.Equal(t, []string{"AAA"}, res.Failed())
}

func TestSameDayEventsCollapseToOneEntry(t *testing.T) {
	res := replay(t, New(calendar.New()),
		models.NewBuy(d(2024, 1, 2), "AAA", dec("10"), dec("10"), ""),
		models.NewSell(d(2024, 1, 2), "AAA", dec("4"), dec("12"), ""),
		models.NewDividend(d(2024, 1, 2), "AAA", dec("3"), ""),
	)
	series := res.Series["AAA"]
	require.Len(t, series, 1)
	assertDec(t, "6", series[0].Quantity)
	assertDec(t, "60", series[0].CostBasis)
	assertDec(t, "3", res.States["AAA"].Dividends)
}

func TestFullExitResetsCostBasis(t *testing.T) {
	res := replay(t, New(calendar.New()),
		models.NewBuy(d(2024, 1, 2), "AAA", dec("3"), dec("33.33"), ""),
		models.NewSell(d(2024, 1, 3), "AAA", dec("1"), dec("40"), ""),
		models.NewSell(d(2024, 1, 4), "AAA", dec("2"), dec("40"), ""),
	)
	last, _ := res.Series["AAA"].Last()
	assert.True(t, last.Quantity.IsZero())
	assert.True(t, last.CostBasis.IsZero())
	assert.Equal(t, 0, res.States["AAA"].OpenLots())
}

func TestCostBasisMethods(t *testing.T) {
	events := []models.Event{
		models.NewBuy(d(2024, 1, 2), "AAA", dec("10"), dec("100"), ""),
		models.NewBuy(d(2024, 1, 3), "AAA", dec("10"), dec("200"), ""),
		models.NewSell(d(2024, 1, 4), "AAA", dec("10"), dec("150"), ""),
	}
	tests := []struct {
		name   string
		method CostBasisMethod
		want   string
	}{
		{"fifo", FIFO, "2000"},
		{"average", AverageCost, "1500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := replay(t, New(calendar.New(), WithMethod(tt.method)), events...)
			last, _ := res.Series["AAA"].Last()
			assertDec(t, "10", last.Quantity)
			assertDec(t, tt.want, last.CostBasis)
		})
	}
}

func TestAcquisitionConservesCostBasis(t *testing.T) {
	// 2024-06-10 is a Monday: the target position is read at Friday's close.
	events := []models.Event{
		models.NewBuy(d(2024, 1, 2), "TGT", dec("10"), dec("50"), ""),
		models.NewBuy(d(2024, 1, 2), "ACQ", dec("2"), dec("30"), ""),
	}
	events = append(events, models.NewAcquisition(d(2024, 6, 10), "TGT", "ACQ", dec("1.55"))...)
	res := replay(t, New(calendar.New()), events...)
	require.Empty(t, res.Errors)

	tgt, _ := res.Series["TGT"].Last()
	assert.True(t, tgt.Quantity.IsZero())
	assert.True(t, tgt.CostBasis.IsZero())
	assertDec(t, "500", res.States["TGT"].Transferred)

	acq, _ := res.Series["ACQ"].Last()
	assertDec(t, "17", acq.Quantity, "2 held + floor(10*1.55)")
	assertDec(t, "560", acq.CostBasis)
	assert.True(t, res.States["TGT"].Transferred.Equal(res.States["ACQ"].Received))
}

func TestAcquisitionReadsPriorTradingDay(t *testing.T) {
	events := []models.Event{
		models.NewBuy(d(2024, 6, 6), "TGT", dec("10"), dec("1"), ""),
		// bought on the acquisition day itself: not part of the conversion
		models.NewBuy(d(2024, 6, 10), "TGT", dec("90"), dec("1"), ""),
	}
	events = append(events, models.NewAcquisition(d(2024, 6, 10), "TGT", "ACQ", dec("1"))...)
	res := replay(t, New(calendar.New()), events...)
	acq, _ := res.Series["ACQ"].Last()
	assertDec(t, "10", acq.Quantity)
}

func TestFailedTargetPropagatesToAcquirer(t *testing.T) {
	events := []models.Event{
		models.NewBuy(d(2024, 1, 2), "TGT", dec("1"), dec("1"), ""),
		models.NewSell(d(2024, 1, 3), "TGT", dec("2"), dec("1"), ""),
	}
	events = append(events, models.NewAcquisition(d(2024, 2, 1), "TGT", "ACQ", dec("1"))...)
	res := replay(t, New(calendar.New()), events...)

	assert.ErrorIs(t, res.Errors["TGT"], models.ErrOversell)
	assert.ErrorIs(t, res.Errors["ACQ"], models.ErrDependencyFailed)
	assert.ErrorIs(t, res.Errors["ACQ"], models.ErrOversell)
	assert.Equal(t, []string{"ACQ", "TGT"}, res.Failed())
}

func TestAcquisitionCycle(t *testing.T) {
	events := []models.Event{
		models.NewBuy(d(2024, 1, 2), "AAA", dec("1"), dec("1"), ""),
		models.NewBuy(d(2024, 1, 2), "BBB", dec("1"), dec("1"), ""),
		models.NewBuy(d(2024, 1, 2), "FREE", dec("1"), dec("1"), ""),
	}
	events = append(events, models.NewAcquisition(d(2024, 2, 1), "AAA", "BBB", dec("1"))...)
	events = append(events, models.NewAcquisition(d(2024, 3, 1), "BBB", "AAA", dec("1"))...)
	events = append(events, models.NewAcquisition(d(2024, 4, 1), "AAA", "CCC", dec("1"))...)
	res := replay(t, New(calendar.New()), events...)

	assert.ErrorIs(t, res.Errors["AAA"], models.ErrAcquisitionCycle)
	assert.ErrorIs(t, res.Errors["BBB"], models.ErrAcquisitionCycle)
	assert.NotErrorIs(t, res.Errors["AAA"], models.ErrDependencyFailed)
	assert.ErrorIs(t, res.Errors["CCC"], models.ErrDependencyFailed)
	assert.Contains(t, res.Series, "FREE")
}

func TestStagedChainOfAcquisitions(t *testing.T) {
	events := []models.Event{
		models.NewBuy(d(2024, 1, 2), "AAA", dec("100"), dec("1"), ""),
	}
	events = append(events, models.NewAcquisition(d(2024, 2, 1), "AAA", "BBB", dec("0.5"))...)
	events = append(events, models.NewAcquisition(d(2024, 3, 1), "BBB", "CCC", dec("0.5"))...)
	res := replay(t, New(calendar.New(), WithWorkers(1)), events...)
	require.Empty(t, res.Errors)

	ccc, _ := res.Series["CCC"].Last()
	assertDec(t, "25", ccc.Quantity)
	assertDec(t, "100", ccc.CostBasis)
}

func TestInvalidEvents(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
	}{
		{"zero split", models.NewSplit(d(2024, 1, 3), "AAA", decimal.Zero)},
		{"negative split", models.NewSplit(d(2024, 1, 3), "AAA", dec("-2"))},
		{"zero buy", models.NewBuy(d(2024, 1, 3), "AAA", decimal.Zero, dec("1"), "")},
		{"zero sell", models.NewSell(d(2024, 1, 3), "AAA", decimal.Zero, dec("1"), "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := replay(t, New(calendar.New()),
				models.NewBuy(d(2024, 1, 2), "AAA", dec("1"), dec("1"), ""),
				tt.event,
			)
			assert.ErrorIs(t, res.Errors["AAA"], models.ErrInvalidEvent)
		})
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	var events []models.Event
	for i := 0; i < 40; i++ {
		sym := string(rune('A'+i%5)) + "X"
		day := d(2024, 1, 2).AddDate(0, 0, i)
		events = append(events, models.NewBuy(day, sym, decimal.NewFromInt(int64(i+1)), dec("3.21"), ""))
		if i%3 == 0 {
			events = append(events, models.NewSell(day.AddDate(0, 0, 1), sym, dec("0.5"), dec("4"), ""))
		}
	}
	events = append(events, models.NewAcquisition(d(2024, 3, 4), "AX", "BX", dec("0.75"))...)

	e := New(calendar.New(), WithWorkers(3))
	first := replay(t, e, events...)
	for i := 0; i < 5; i++ {
		again := replay(t, e, events...)
		assert.Equal(t, first.Series, again.Series)
		assert.Equal(t, first.Failed(), again.Failed())
	}
}

func TestReplayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(calendar.New()).Replay(ctx, models.NewMasterLog([]models.Event{
		models.NewBuy(d(2024, 1, 2), "AAA", dec("1"), dec("1"), ""),
	}, nil, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLotsInsertKeepsDateOrder(t *testing.T) {
	var l lots
	l = l.insert(lot{Date: d(2024, 3, 1), Shares: dec("1")})
	l = l.insert(lot{Date: d(2024, 1, 1), Shares: dec("2")})
	l = l.insert(lot{Date: d(2024, 2, 1), Shares: dec("3")})
	l = l.insert(lot{Date: d(2024, 2, 1), Shares: dec("4")})

	var got []string
	for _, x := range l {
		got = append(got, x.Shares.String())
	}
	assert.Equal(t, []string{"2", "3", "4", "1"}, got)
}

func TestLotsInsertLeavesInputIntact(t *testing.T) {
	before := make(lots, 2, 4)
	before[0] = lot{Date: d(2024, 1, 1), Shares: dec("1")}
	before[1] = lot{Date: d(2024, 3, 1), Shares: dec("2")}

	after := before.insert(lot{Date: d(2024, 2, 1), Shares: dec("3")})
	require.Len(t, after, 3)
	assert.Equal(t, "3", after[1].Shares.String())
	assert.Equal(t, "2", before[1].Shares.String())
	assert.True(t, before[:cap(before)][2].Date.IsZero())
}

func TestParseCostBasisMethod(t *testing.T) {
	m, err := ParseCostBasisMethod("")
	require.NoError(t, err)
	assert.Equal(t, FIFO, m)
	m, err = ParseCostBasisMethod("average")
	require.NoError(t, err)
	assert.Equal(t, AverageCost, m)
	_, err = ParseCostBasisMethod("lifo")
	assert.Error(t, err)
}

package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PortfolioHistory/internal/domain/models"
	drepo "PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/internal/services/ledger"
	"PortfolioHistory/internal/services/masterlog"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"

	"github.com/shopspring/decimal"
)

// Positions summarizes the current state of every holding.
type Positions struct {
	builder *masterlog.Builder
	engine  *ledger.Engine
	prices  drepo.PriceProvider
	log     *applogger.Logger
	now     func() time.Time
}

func NewPositions(builder *masterlog.Builder, engine *ledger.Engine, prices drepo.PriceProvider, log *applogger.Logger) *Positions {
	return &Positions{
		builder: builder,
		engine:  engine,
		prices:  prices,
		log:     log.With(applogger.String("component", "positions")),
		now:     time.Now,
	}
}

// PositionsReport lists summaries by symbol. Symbols whose replay failed are
// reported in Failed with their error text.
type PositionsReport struct {
	AsOf      time.Time                `json:"as_of"`
	Positions []models.PositionSummary `json:"positions"`
	Failed    map[string]string        `json:"failed,omitempty"`
}

// Summaries replays the ledger through today for symbols (all when empty).
// Open positions are priced with current quotes when the provider answers;
// otherwise their price and value are null.
func (p *Positions) Summaries(ctx context.Context, symbols []string, includeClosed bool) (*PositionsReport, error) {
	today := calendar.Day(p.now())
	log, err := p.builder.Build(ctx, symbols, nil, &today)
	if err != nil {
		return nil, fmt.Errorf("build master log: %w", err)
	}
	res, err := p.engine.Replay(ctx, log)
	if err != nil {
		return nil, err
	}

	report := &PositionsReport{AsOf: today, Positions: []models.PositionSummary{}}
	if failed := res.Failed(); len(failed) > 0 {
		report.Failed = make(map[string]string, len(failed))
		for _, sym := range failed {
			report.Failed[sym] = res.Errors[sym].Error()
		}
	}

	var open []string
	for sym, st := range res.States {
		if !includeClosed && !st.Quantity.IsPositive() {
			continue
		}
		report.Positions = append(report.Positions, models.PositionSummary{
			Symbol:            sym,
			Quantity:          st.Quantity,
			CostBasis:         st.CostBasis,
			TotalDividends:    st.Dividends,
			Transferred:       st.Transferred,
			Received:          st.Received,
			FirstPurchaseDate: st.FirstBuy,
			LastPurchaseDate:  st.LastBuy,
		})
		if st.Quantity.IsPositive() {
			open = append(open, sym)
		}
	}
	sort.Slice(report.Positions, func(i, j int) bool { return report.Positions[i].Symbol < report.Positions[j].Symbol })

	if len(open) == 0 {
		return report, nil
	}
	sort.Strings(open)
	quotes, err := p.prices.CurrentPrices(ctx, open)
	if err != nil {
		p.log.Warn("current prices unavailable", applogger.Error(err))
		return report, nil
	}
	for i := range report.Positions {
		ps := &report.Positions[i]
		px, ok := quotes[ps.Symbol]
		if !ok || !ps.Quantity.IsPositive() {
			continue
		}
		ps.CurrentPrice = decimal.NewNullDecimal(px)
		ps.CurrentValue = decimal.NewNullDecimal(px.Mul(ps.Quantity))
	}
	return report, nil
}

package aggregation

import (
	"math"
	"time"

	"PortfolioHistory/internal/domain/models"

	"github.com/shopspring/decimal"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// SymbolStats summarizes one price (or growth) series.
type SymbolStats struct {
	Key          string          `json:"key"`
	FirstDate    time.Time       `json:"first_date"`
	LastDate     time.Time       `json:"last_date"`
	First        decimal.Decimal `json:"first"`
	Last         decimal.Decimal `json:"last"`
	Max          decimal.Decimal `json:"max"`
	TotalReturn  float64         `json:"total_return"`
	Volatility   float64         `json:"volatility"`
	Sharpe       float64         `json:"sharpe"`
	Sortino      float64         `json:"sortino"`
	Observations int             `json:"observations"`
}

// returnStats is an online accumulator over daily simple returns
// r_t = C_t / C_{t-1} - 1. Variance uses Welford's update.
type returnStats struct {
	stats    SymbolStats
	prev     float64
	n        int
	mean     float64
	m2       float64
	downside float64
	rfDaily  float64
}

func (s *returnStats) add(date time.Time, v decimal.Decimal) {
	if s.stats.Observations == 0 {
		s.stats.FirstDate, s.stats.First, s.stats.Max = date, v, v
	}
	s.stats.Observations++
	s.stats.LastDate, s.stats.Last = date, v
	if v.GreaterThan(s.stats.Max) {
		s.stats.Max = v
	}

	cur := v.InexactFloat64()
	if s.stats.Observations > 1 && s.prev > 0 && cur > 0 {
		r := cur/s.prev - 1
		s.n++
		delta := r - s.mean
		s.mean += delta / float64(s.n)
		s.m2 += delta * (r - s.mean)
		if ex := r - s.rfDaily; ex < 0 {
			s.downside += ex * ex
		}
	}
	s.prev = cur
}

func (s *returnStats) result() SymbolStats {
	out := s.stats
	if first := out.First.InexactFloat64(); first > 0 {
		out.TotalReturn = out.Last.InexactFloat64()/first - 1
	}
	if s.n < 2 {
		return out
	}
	std := math.Sqrt(s.m2 / float64(s.n-1))
	annual := math.Sqrt(TradingDaysPerYear)
	out.Volatility = std * annual
	excess := s.mean - s.rfDaily
	if std > 0 {
		out.Sharpe = excess / std * annual
	}
	if dd := math.Sqrt(s.downside / float64(s.n)); dd > 0 {
		out.Sortino = excess / dd * annual
	}
	return out
}

// ComputeStats reduces asset rows to per-symbol statistics over their closing
// prices in one pass. Rows must be in date order per symbol; rows without a
// price are skipped. riskFreeRate is annual.
func ComputeStats(rows []models.ValuationRow, riskFreeRate float64) map[string]SymbolStats {
	rf := riskFreeRate / TradingDaysPerYear
	acc := make(map[string]*returnStats)
	for _, r := range rows {
		if !r.ClosingPrice.Valid {
			continue
		}
		s := acc[r.Symbol]
		if s == nil {
			s = &returnStats{stats: SymbolStats{Key: r.Symbol}, rfDaily: rf}
			acc[r.Symbol] = s
		}
		s.add(r.Date, r.ClosingPrice.Decimal)
	}
	return collect(acc)
}

// ComputeAggregateStats does the same for aggregate rows. The series used is
// value per unit of cost basis, so contributions and withdrawals do not read
// as returns. Rows with no cost basis are skipped.
func ComputeAggregateStats(rows []models.AggregateRow, riskFreeRate float64) map[string]SymbolStats {
	rf := riskFreeRate / TradingDaysPerYear
	acc := make(map[string]*returnStats)
	for _, r := range rows {
		if !r.SumCostBasis.IsPositive() {
			continue
		}
		s := acc[r.DimensionValue]
		if s == nil {
			s = &returnStats{stats: SymbolStats{Key: r.DimensionValue}, rfDaily: rf}
			acc[r.DimensionValue] = s
		}
		s.add(r.Date, r.SumValue.Div(r.SumCostBasis))
	}
	return collect(acc)
}

func collect(acc map[string]*returnStats) map[string]SymbolStats {
	out := make(map[string]SymbolStats, len(acc))
	for k, s := range acc {
		out[k] = s.result()
	}
	return out
}

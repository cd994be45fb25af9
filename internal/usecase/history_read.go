package usecase

import (
	"context"
	"fmt"
	"time"

	"PortfolioHistory/internal/domain/models"
	drepo "PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/internal/services/aggregation"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"
)

// HistoryView is persisted history as served to readers. Stale is set when
// newer trading days exist than the rows cover; the rows are still the last
// known good ones.
type HistoryView struct {
	Dimension  models.Dimension      `json:"dimension"`
	State      models.SyncState      `json:"state"`
	Stale      bool                  `json:"stale"`
	Cadence    calendar.Cadence      `json:"cadence"`
	Assets     []models.ValuationRow `json:"assets,omitempty"`
	Aggregates []models.AggregateRow `json:"aggregates,omitempty"`
}

// StatusChecker reports the freshness of a dimension.
type StatusChecker interface {
	Check(ctx context.Context, dim models.Dimension) (Status, error)
}

// HistoryReader serves history reads, statistics and milestones.
type HistoryReader struct {
	store  drepo.HistoryStore
	status StatusChecker
	log    *applogger.Logger
}

func NewHistoryReader(store drepo.HistoryStore, status StatusChecker, log *applogger.Logger) *HistoryReader {
	return &HistoryReader{store: store, status: status, log: log.With(applogger.String("component", "history_reader"))}
}

// Read returns dim's rows matching q, resampled to cadence.
func (r *HistoryReader) Read(ctx context.Context, dim models.Dimension, q models.HistoryQuery, cadence calendar.Cadence) (*HistoryView, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrUnknownDimension, int(dim))
	}
	view := &HistoryView{Dimension: dim, Cadence: cadence}

	switch dim.Descriptor().Kind {
	case models.HistoryAsset:
		rows, err := r.store.ReadAssetHistory(ctx, dim, q)
		if err != nil {
			return nil, fmt.Errorf("read %s history: %w", dim, err)
		}
		view.Assets = calendar.Resample(rows, func(v models.ValuationRow) time.Time { return v.Date }, cadence)
	default:
		rows, err := r.store.ReadAggregateHistory(ctx, dim, q)
		if err != nil {
			return nil, fmt.Errorf("read %s history: %w", dim, err)
		}
		view.Aggregates = calendar.Resample(rows, func(v models.AggregateRow) time.Time { return v.Date }, cadence)
	}

	st, err := r.status.Check(ctx, dim)
	if err != nil {
		r.log.Warn("freshness check failed", applogger.Stringer("dimension", dim), applogger.Error(err))
		st.State = models.StateError
	}
	view.State = st.State
	view.Stale = st.State != models.StateFresh
	return view, nil
}

// Stats summarizes every key of dim over q. Asset dimensions are measured on
// closing prices, aggregate dimensions on value over cost basis.
func (r *HistoryReader) Stats(ctx context.Context, dim models.Dimension, q models.HistoryQuery, riskFreeRate float64) (map[string]aggregation.SymbolStats, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrUnknownDimension, int(dim))
	}
	if dim.Descriptor().Kind == models.HistoryAsset {
		rows, err := r.store.ReadAssetHistory(ctx, dim, q)
		if err != nil {
			return nil, fmt.Errorf("read %s history: %w", dim, err)
		}
		return aggregation.ComputeStats(rows, riskFreeRate), nil
	}
	rows, err := r.store.ReadAggregateHistory(ctx, dim, q)
	if err != nil {
		return nil, fmt.Errorf("read %s history: %w", dim, err)
	}
	return aggregation.ComputeAggregateStats(rows, riskFreeRate), nil
}

// Milestones returns key's return over each window ending at asOf, or at the
// latest stored day when asOf is nil.
func (r *HistoryReader) Milestones(ctx context.Context, dim models.Dimension, key string, asOf *time.Time, windows []aggregation.Window) ([]aggregation.Milestone, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrUnknownDimension, int(dim))
	}
	if len(windows) == 0 {
		windows = aggregation.DefaultWindows
	}
	q := models.HistoryQuery{Keys: []string{key}, To: asOf}

	var points []aggregation.Point
	if dim.Descriptor().Kind == models.HistoryAsset {
		rows, err := r.store.ReadAssetHistory(ctx, dim, q)
		if err != nil {
			return nil, fmt.Errorf("read %s history: %w", dim, err)
		}
		for _, row := range rows {
			if row.ClosingPrice.Valid {
				points = append(points, aggregation.Point{Date: row.Date, Value: row.ClosingPrice.Decimal})
			}
		}
	} else {
		rows, err := r.store.ReadAggregateHistory(ctx, dim, q)
		if err != nil {
			return nil, fmt.Errorf("read %s history: %w", dim, err)
		}
		for _, row := range rows {
			if row.SumCostBasis.IsPositive() {
				points = append(points, aggregation.Point{Date: row.Date, Value: row.SumValue.Div(row.SumCostBasis)})
			}
		}
	}

	var end time.Time
	switch {
	case asOf != nil:
		end = calendar.Day(*asOf)
	case len(points) > 0:
		end = points[len(points)-1].Date
	default:
		return []aggregation.Milestone{}, nil
	}
	return aggregation.Milestones(points, end, windows), nil
}

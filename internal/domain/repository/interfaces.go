package repository

import (
	"context"
	"time"

	"PortfolioHistory/internal/domain/models"

	"github.com/shopspring/decimal"
)

// EventStore is the read side of the ledger. Events of one kind come back
// ordered by date. Fetching KindAcquisitionTarget returns both sides of every
// acquisition whose target or acquirer matches the filter.
type EventStore interface {
	FetchEvents(ctx context.Context, kind models.EventKind, f models.EventFilter) ([]models.Event, error)
	FetchEntityMetadata(ctx context.Context, symbols []string) (map[string]models.EntityMeta, error)
	Health(ctx context.Context) error
}

// HistoryStore persists per-dimension history keyed by (date, key).
type HistoryStore interface {
	WriteAssetHistory(ctx context.Context, dim models.Dimension, rows []models.ValuationRow, overwrite bool) error
	WriteAggregateHistory(ctx context.Context, dim models.Dimension, rows []models.AggregateRow, overwrite bool) error
	ReadLatestDate(ctx context.Context, dim models.Dimension) (*time.Time, error)
	ReadAssetHistory(ctx context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.ValuationRow, error)
	ReadAggregateHistory(ctx context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.AggregateRow, error)
}

// PriceProvider serves market prices. Both calls may fail with
// models.ErrRateLimited or models.ErrSourceUnavailable.
type PriceProvider interface {
	DailyCloses(ctx context.Context, symbols []string, from, to time.Time) (map[string]models.PriceSeries, error)
	CurrentPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// Publisher announces history changes to downstream consumers.
type Publisher interface {
	PublishHistoryUpdated(ctx context.Context, ev models.HistoryUpdated) error
	Close() error
}

type Metrics interface {
	RecordSync(dimension, result string)
	SetSyncState(dimension string, state models.SyncState)
	RecordRowsWritten(dimension string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"PortfolioHistory/internal/domain/models"
	drepo "PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/internal/services/ledger"
	"PortfolioHistory/internal/services/masterlog"
	"PortfolioHistory/internal/services/valuation"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Snapshot is the upstream computation every dimension of one window shares:
// the replayed ledger, its valuation rows and the entity metadata. It is
// read-only once built.
type Snapshot struct {
	Window       calendar.Window
	Rows         []models.ValuationRow
	Hypothetical []models.ValuationRow
	Meta         map[string]models.EntityMeta
	Replay       *ledger.Result
	PriceGaps    int
	ComputedAt   time.Time
}

// RowsFor returns the asset rows a dimension persists.
func (s *Snapshot) RowsFor(dim models.Dimension) []models.ValuationRow {
	if dim == models.DimensionAssetHypothetical {
		return s.Hypothetical
	}
	return s.Rows
}

// SnapshotComputer builds the snapshot for a window.
type SnapshotComputer interface {
	Compute(ctx context.Context, w calendar.Window) (*Snapshot, error)
}

// SnapshotSource computes snapshots. Concurrent requests for the same window
// share one computation.
type SnapshotSource struct {
	builder   *masterlog.Builder
	engine    *ledger.Engine
	valuator  *valuation.Generator
	events    drepo.EventStore
	prices    drepo.PriceProvider
	metrics   drepo.Metrics
	log       *applogger.Logger
	lookback  int
	group     singleflight.Group
	clockTime func() time.Time
}

func NewSnapshotSource(
	builder *masterlog.Builder,
	engine *ledger.Engine,
	valuator *valuation.Generator,
	events drepo.EventStore,
	prices drepo.PriceProvider,
	metrics drepo.Metrics,
	log *applogger.Logger,
) *SnapshotSource {
	return &SnapshotSource{
		builder:   builder,
		engine:    engine,
		valuator:  valuator,
		events:    events,
		prices:    prices,
		metrics:   metrics,
		log:       log.With(applogger.String("component", "snapshot")),
		lookback:  10,
		clockTime: time.Now,
	}
}

// Compute replays the whole ledger up to w.To and values the window. Prices
// are fetched from a few days before w.From so the first day can carry a
// close forward across a holiday.
func (s *SnapshotSource) Compute(ctx context.Context, w calendar.Window) (*Snapshot, error) {
	v, err, shared := s.group.Do(w.String(), func() (interface{}, error) {
		return s.compute(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug("snapshot shared", applogger.String("window", w.String()))
	}
	return v.(*Snapshot), nil
}

func (s *SnapshotSource) compute(ctx context.Context, w calendar.Window) (*Snapshot, error) {
	started := time.Now()
	to := w.To
	log, err := s.builder.Build(ctx, nil, nil, &to)
	if err != nil {
		return nil, fmt.Errorf("build master log: %w", err)
	}

	res, err := s.engine.Replay(ctx, log)
	if err != nil {
		return nil, err
	}
	for _, sym := range res.Failed() {
		s.metrics.RecordError("replay")
		s.log.Warn("symbol excluded from history", applogger.String("symbol", sym), applogger.Error(res.Errors[sym]))
	}

	symbols := make([]string, 0, len(res.Series))
	for sym := range res.Series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	snap := &Snapshot{Window: w, Replay: res, Meta: map[string]models.EntityMeta{}}
	if len(symbols) == 0 {
		snap.ComputedAt = s.clockTime()
		return snap, nil
	}

	priceFrom := w.From.AddDate(0, 0, -s.lookback)
	closes, err := s.prices.DailyCloses(ctx, symbols, priceFrom, w.To)
	if err != nil {
		return nil, fmt.Errorf("daily closes: %w", err)
	}
	meta, err := s.events.FetchEntityMetadata(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("entity metadata: %w", &models.SourceError{Source: "event store", Err: err})
	}

	var gaps []error
	snap.Rows, gaps = s.valuator.ValuateAll(res.Series, closes, w.From, w.To, false)
	snap.Hypothetical, _ = s.valuator.ValuateAll(res.Series, closes, w.From, w.To, true)
	snap.Meta = meta
	snap.PriceGaps = len(gaps)
	snap.ComputedAt = s.clockTime()
	if len(gaps) > 0 {
		s.metrics.RecordError("price_gap")
		s.log.Warn("price gaps in window", applogger.String("window", w.String()), applogger.Int("gaps", len(gaps)),
			applogger.Error(gaps[0]))
	}

	s.metrics.RecordLatency("snapshot", time.Since(started).Seconds())
	s.log.Info("snapshot computed",
		applogger.String("window", w.String()),
		applogger.Int("symbols", len(symbols)),
		applogger.Int("rows", len(snap.Rows)),
		applogger.Duration("took", time.Since(started)),
	)
	return snap, nil
}

// snapshotMemo holds the snapshots of one sync pass, one per distinct window.
type snapshotMemo struct {
	src SnapshotComputer
	mu  sync.Mutex
	m   map[string]*memoEntry
}

type memoEntry struct {
	once sync.Once
	snap *Snapshot
	err  error
}

func newSnapshotMemo(src SnapshotComputer) *snapshotMemo {
	return &snapshotMemo{src: src, m: make(map[string]*memoEntry)}
}

func (m *snapshotMemo) get(ctx context.Context, w calendar.Window) (*Snapshot, error) {
	m.mu.Lock()
	e, ok := m.m[w.String()]
	if !ok {
		e = &memoEntry{}
		m.m[w.String()] = e
	}
	m.mu.Unlock()

	e.once.Do(func() { e.snap, e.err = m.src.Compute(ctx, w) })
	return e.snap, e.err
}

package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/cache"
	"PortfolioHistory/pkg/calendar"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time { return calendar.Date(y, m, d) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memStore is an in-memory HistoryStore. A write moves the dimension's
// latest date to its newest row.
type memStore struct {
	mu        sync.Mutex
	latest    map[models.Dimension]time.Time
	assets    map[models.Dimension][]models.ValuationRow
	aggs      map[models.Dimension][]models.AggregateRow
	writes    map[models.Dimension]int
	writeErr  error
	latestErr error
}

func newMemStore() *memStore {
	return &memStore{
		latest: make(map[models.Dimension]time.Time),
		assets: make(map[models.Dimension][]models.ValuationRow),
		aggs:   make(map[models.Dimension][]models.AggregateRow),
		writes: make(map[models.Dimension]int),
	}
}

func (s *memStore) setLatest(dim models.Dimension, d time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[dim] = d
}

func (s *memStore) writeCount(dim models.Dimension) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[dim]
}

func (s *memStore) WriteAssetHistory(_ context.Context, dim models.Dimension, rows []models.ValuationRow, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes[dim]++
	if overwrite {
		s.assets[dim] = nil
	}
	s.assets[dim] = append(s.assets[dim], rows...)
	for _, r := range rows {
		if r.Date.After(s.latest[dim]) {
			s.latest[dim] = r.Date
		}
	}
	return nil
}

func (s *memStore) WriteAggregateHistory(_ context.Context, dim models.Dimension, rows []models.AggregateRow, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes[dim]++
	if overwrite {
		s.aggs[dim] = nil
	}
	s.aggs[dim] = append(s.aggs[dim], rows...)
	for _, r := range rows {
		if r.Date.After(s.latest[dim]) {
			s.latest[dim] = r.Date
		}
	}
	return nil
}

func (s *memStore) ReadLatestDate(_ context.Context, dim models.Dimension) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	d, ok := s.latest[dim]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *memStore) ReadAssetHistory(_ context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.ValuationRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ValuationRow
	for _, r := range s.assets[dim] {
		if inQuery(q, r.Symbol, r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ReadAggregateHistory(_ context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.AggregateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AggregateRow
	for _, r := range s.aggs[dim] {
		if inQuery(q, r.DimensionValue, r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func inQuery(q models.HistoryQuery, key string, d time.Time) bool {
	if q.From != nil && d.Before(*q.From) {
		return false
	}
	if q.To != nil && d.After(*q.To) {
		return false
	}
	if len(q.Keys) == 0 {
		return true
	}
	for _, k := range q.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// fakeSnapshots values one symbol on every trading day of the window. With
// empty set it returns a snapshot holding no rows.
type fakeSnapshots struct {
	mu    sync.Mutex
	cal   *calendar.Calendar
	calls int
	err   error
	empty bool
}

func (f *fakeSnapshots) Compute(ctx context.Context, w calendar.Window) (*Snapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	snap := &Snapshot{
		Window: w,
		Meta: map[string]models.EntityMeta{
			"AAA": {Symbol: "AAA", Sector: "Technology", AssetType: "Stock", AccountType: "Taxable", Geography: "US"},
		},
	}
	if f.empty {
		return &Snapshot{Window: w}, nil
	}
	for _, d := range f.cal.Days(w.From, w.To) {
		snap.Rows = append(snap.Rows, models.ValuationRow{
			Date:          d,
			Symbol:        "AAA",
			Quantity:      dec("10"),
			CostBasis:     dec("1000"),
			ClosingPrice:  decimal.NewNullDecimal(dec("110")),
			Value:         decimal.NewNullDecimal(dec("1100")),
			PercentReturn: decimal.NewNullDecimal(dec("0.1")),
		})
	}
	snap.Hypothetical = snap.Rows
	return snap, nil
}

func (f *fakeSnapshots) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.HistoryUpdated
	err    error
}

func (p *recordingPublisher) PublishHistoryUpdated(_ context.Context, ev models.HistoryUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []models.HistoryUpdated {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.HistoryUpdated(nil), p.events...)
}

func newTestCache(t *testing.T) *cache.MemoryCache {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// eventStore serves fixed ledger events and metadata.
type eventStore struct {
	events []models.Event
	meta   map[string]models.EntityMeta
}

func (s *eventStore) FetchEvents(_ context.Context, kind models.EventKind, f models.EventFilter) ([]models.Event, error) {
	var out []models.Event
	for _, e := range s.events {
		if e.Kind != kind {
			continue
		}
		if f.To != nil && e.Date.After(*f.To) {
			continue
		}
		if len(f.Symbols) > 0 && !inQuery(models.HistoryQuery{Keys: f.Symbols}, e.Symbol, e.Date) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *eventStore) FetchEntityMetadata(_ context.Context, symbols []string) (map[string]models.EntityMeta, error) {
	out := make(map[string]models.EntityMeta, len(symbols))
	for _, sym := range symbols {
		if m, ok := s.meta[sym]; ok {
			out[sym] = m
		}
	}
	return out, nil
}

func (s *eventStore) Health(context.Context) error { return nil }

// priceStub answers with fixed closes and quotes.
type priceStub struct {
	mu         sync.Mutex
	closes     map[string]models.PriceSeries
	quotes     map[string]decimal.Decimal
	quoteErr   error
	lastFrom   time.Time
	dailyCalls int
}

func (p *priceStub) DailyCloses(_ context.Context, symbols []string, from, _ time.Time) (map[string]models.PriceSeries, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dailyCalls++
	p.lastFrom = from
	out := make(map[string]models.PriceSeries, len(symbols))
	for _, s := range symbols {
		if ps, ok := p.closes[s]; ok {
			out[s] = ps
		}
	}
	return out, nil
}

func (p *priceStub) CurrentPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if p.quoteErr != nil {
		return nil, p.quoteErr
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if q, ok := p.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

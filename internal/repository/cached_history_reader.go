package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"PortfolioHistory/internal/domain/models"
	domainrepo "PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/pkg/cache"
	"PortfolioHistory/pkg/calendar"
)

// CachedHistoryStore serves history reads from cache. Entries carry the
// dimension's cache tag; whoever writes a dimension must evict that tag.
// Writes and ReadLatestDate always go to the underlying store.
type CachedHistoryStore struct {
	domainrepo.HistoryStore
	cache cache.Service
	ttl   time.Duration
}

var _ domainrepo.HistoryStore = (*CachedHistoryStore)(nil)

func NewCachedHistoryStore(store domainrepo.HistoryStore, c cache.Service, ttl time.Duration) *CachedHistoryStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedHistoryStore{HistoryStore: store, cache: c, ttl: ttl}
}

func (s *CachedHistoryStore) ReadAssetHistory(ctx context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.ValuationRow, error) {
	return cache.Remember(ctx, s.cache, historyCacheKey(dim, q), s.ttl, []string{dim.CacheTag()},
		func(ctx context.Context) ([]models.ValuationRow, error) {
			return s.HistoryStore.ReadAssetHistory(ctx, dim, q)
		})
}

func (s *CachedHistoryStore) ReadAggregateHistory(ctx context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.AggregateRow, error) {
	return cache.Remember(ctx, s.cache, historyCacheKey(dim, q), s.ttl, []string{dim.CacheTag()},
		func(ctx context.Context) ([]models.AggregateRow, error) {
			return s.HistoryStore.ReadAggregateHistory(ctx, dim, q)
		})
}

func historyCacheKey(dim models.Dimension, q models.HistoryQuery) string {
	from, to := "-", "-"
	if q.From != nil {
		from = calendar.Format(*q.From)
	}
	if q.To != nil {
		to = calendar.Format(*q.To)
	}
	keys := append([]string(nil), q.Keys...)
	sort.Strings(keys)
	params := cache.Key("q", strings.Join(keys, ","), from, to)
	return cache.Key("history", dim.String(), cache.Digest(params))
}

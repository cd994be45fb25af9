package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PortfolioHistory/internal/domain/models"
	drepo "PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/internal/services/aggregation"
	"PortfolioHistory/pkg/cache"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"

	"github.com/google/uuid"
)

// Status is the freshness of one dimension. Window is set when the
// dimension is stale and names the days a sync would compute.
type Status struct {
	Dimension models.Dimension `json:"dimension"`
	State     models.SyncState `json:"state"`
	Latest    *time.Time       `json:"latest,omitempty"`
	Window    *calendar.Window `json:"window,omitempty"`
}

// SyncResult reports one Sync or Rebuild. The rows written are returned so
// callers can use the delta without reading it back.
type SyncResult struct {
	RunID         uuid.UUID             `json:"run_id"`
	Dimension     models.Dimension      `json:"dimension"`
	State         models.SyncState      `json:"state"`
	Window        *calendar.Window      `json:"window,omitempty"`
	Overwrite     bool                  `json:"overwrite"`
	Rows          int                   `json:"rows"`
	PriceGaps     int                   `json:"price_gaps,omitempty"`
	AssetRows     []models.ValuationRow `json:"-"`
	AggregateRows []models.AggregateRow `json:"-"`
	Err           error                 `json:"-"`
}

// SyncConfig holds the knobs of HistorySync.
type SyncConfig struct {
	// StartDate is where an empty history begins.
	StartDate time.Time
	// LockTTL bounds how long a crashed instance can hold a dimension.
	LockTTL time.Duration
	// Workers bounds how many dimensions SyncAll and RebuildAll run at once.
	Workers int
}

// HistorySync keeps each dimension's persisted history current. A
// dimension is Fresh when its latest row reaches the sync horizon, Stale
// otherwise, Updating while a sync holds it and Error after a failed write.
type HistorySync struct {
	store     drepo.HistoryStore
	cache     cache.Service
	pub       drepo.Publisher
	metrics   drepo.Metrics
	snapshots SnapshotComputer
	cal       *calendar.Calendar
	cfg       SyncConfig
	log       *applogger.Logger
	now       func() time.Time

	locks   [models.NumDimensions]sync.Mutex
	stateMu sync.Mutex
	states  map[models.Dimension]models.SyncState
}

func NewHistorySync(
	store drepo.HistoryStore,
	c cache.Service,
	pub drepo.Publisher,
	metrics drepo.Metrics,
	snapshots SnapshotComputer,
	cal *calendar.Calendar,
	cfg SyncConfig,
	log *applogger.Logger,
) *HistorySync {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = models.NumDimensions
	}
	return &HistorySync{
		store:     store,
		cache:     c,
		pub:       pub,
		metrics:   metrics,
		snapshots: snapshots,
		cal:       cal,
		cfg:       cfg,
		log:       log.With(applogger.String("component", "history_sync")),
		now:       time.Now,
		states:    make(map[models.Dimension]models.SyncState),
	}
}

// Check reports whether dim is missing trading days.
func (h *HistorySync) Check(ctx context.Context, dim models.Dimension) (Status, error) {
	if !dim.Valid() {
		return Status{}, fmt.Errorf("%w: %d", models.ErrUnknownDimension, int(dim))
	}
	st, err := h.check(ctx, dim)
	if err != nil {
		return st, err
	}
	if h.state(dim) == models.StateUpdating {
		st.State = models.StateUpdating
	}
	return st, nil
}

func (h *HistorySync) check(ctx context.Context, dim models.Dimension) (Status, error) {
	st := Status{Dimension: dim, State: models.StateError}
	latest, err := h.store.ReadLatestDate(ctx, dim)
	if err != nil {
		return st, fmt.Errorf("read latest %s date: %w", dim, err)
	}
	st.Latest = latest
	w, stale := h.cal.SyncWindow(latest, h.cfg.StartDate, h.now())
	if stale {
		st.State = models.StateStale
		st.Window = &w
		return st, nil
	}
	st.State = models.StateFresh
	return st, nil
}

// CheckAll returns the status of every dimension in declaration order.
func (h *HistorySync) CheckAll(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, len(models.AllDimensions()))
	var errs []error
	for _, dim := range models.AllDimensions() {
		st, err := h.Check(ctx, dim)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, st)
	}
	return out, errors.Join(errs...)
}

// Sync brings dim up to the horizon. A fresh dimension is left untouched.
// When another instance holds the dimension, Sync returns
// models.ErrUpdateInProgress with state Updating.
func (h *HistorySync) Sync(ctx context.Context, dim models.Dimension, overwrite bool) SyncResult {
	return h.sync(ctx, dim, overwrite, newSnapshotMemo(h.snapshots))
}

// SyncAll syncs every dimension concurrently. Dimensions stale over the same
// window share one snapshot; a failure in one does not stop the others.
func (h *HistorySync) SyncAll(ctx context.Context, overwrite bool) []SyncResult {
	memo := newSnapshotMemo(h.snapshots)
	out := make([]SyncResult, len(models.AllDimensions()))

	h.eachDimension(func(i int, dim models.Dimension) {
		out[i] = h.sync(ctx, dim, overwrite, memo)
	})
	return out
}

// eachDimension runs fn for every dimension, at most cfg.Workers at once.
func (h *HistorySync) eachDimension(fn func(i int, dim models.Dimension)) {
	sem := make(chan struct{}, h.cfg.Workers)
	var wg sync.WaitGroup
	for i, dim := range models.AllDimensions() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			fn(i, dim)
		}()
	}
	wg.Wait()
}

// Rebuild recomputes dim from from (or the configured start) through the
// horizon and replaces what is stored.
func (h *HistorySync) Rebuild(ctx context.Context, dim models.Dimension, from *time.Time) SyncResult {
	return h.rebuild(ctx, dim, from, newSnapshotMemo(h.snapshots))
}

// RebuildAll rebuilds every dimension from the same start, bounded like
// SyncAll.
func (h *HistorySync) RebuildAll(ctx context.Context, from *time.Time) []SyncResult {
	memo := newSnapshotMemo(h.snapshots)
	out := make([]SyncResult, len(models.AllDimensions()))
	h.eachDimension(func(i int, dim models.Dimension) {
		out[i] = h.rebuild(ctx, dim, from, memo)
	})
	return out
}

func (h *HistorySync) sync(ctx context.Context, dim models.Dimension, overwrite bool, memo *snapshotMemo) SyncResult {
	res := SyncResult{RunID: uuid.New(), Dimension: dim, Overwrite: overwrite, State: models.StateError}
	if !dim.Valid() {
		res.Err = fmt.Errorf("%w: %d", models.ErrUnknownDimension, int(dim))
		return res
	}

	release, err := h.acquire(ctx, dim)
	if err != nil {
		res.State, res.Err = h.lockFailureState(dim, err), err
		return res
	}
	defer release()

	st, err := h.check(ctx, dim)
	if err != nil {
		res.Err = err
		h.finish(dim, &res)
		return res
	}
	if st.State == models.StateFresh {
		res.State = models.StateFresh
		h.finish(dim, &res)
		return res
	}
	return h.run(ctx, dim, *st.Window, overwrite, memo, res)
}

func (h *HistorySync) rebuild(ctx context.Context, dim models.Dimension, from *time.Time, memo *snapshotMemo) SyncResult {
	res := SyncResult{RunID: uuid.New(), Dimension: dim, Overwrite: true, State: models.StateError}
	if !dim.Valid() {
		res.Err = fmt.Errorf("%w: %d", models.ErrUnknownDimension, int(dim))
		return res
	}

	start := h.cfg.StartDate
	if from != nil && from.After(start) {
		start = *from
	}
	w, ok := h.cal.SyncWindow(nil, start, h.now())
	if !ok {
		res.State = models.StateFresh
		return res
	}

	release, err := h.acquire(ctx, dim)
	if err != nil {
		res.State, res.Err = h.lockFailureState(dim, err), err
		return res
	}
	defer release()
	return h.run(ctx, dim, w, true, memo, res)
}

// run computes and persists one window. The caller holds the dimension.
func (h *HistorySync) run(ctx context.Context, dim models.Dimension, w calendar.Window, overwrite bool, memo *snapshotMemo, res SyncResult) SyncResult {
	started := time.Now()
	res.Window = &w
	h.setState(dim, models.StateUpdating)
	lg := h.log.With(applogger.Stringer("dimension", dim), applogger.String("window", w.String()),
		applogger.String("run_id", res.RunID.String()))

	if !w.To.Before(calendar.Day(h.now())) {
		lg.Info("window includes today; closing prices may be provisional")
	}

	snap, err := memo.get(ctx, w)
	if err != nil {
		res.Err = err
		h.finish(dim, &res)
		lg.Error("snapshot failed", applogger.Error(err))
		return res
	}
	res.PriceGaps = snap.PriceGaps

	desc := dim.Descriptor()
	switch desc.Kind {
	case models.HistoryAsset:
		res.AssetRows = snap.RowsFor(dim)
		res.Rows = len(res.AssetRows)
		if res.Rows > 0 {
			err = h.store.WriteAssetHistory(ctx, dim, res.AssetRows, overwrite)
		}
	case models.HistoryAggregate:
		groups := aggregation.Aggregate(snap.Rows, aggregation.ForDimension(dim, snap.Meta))
		res.AggregateRows = aggregation.Flatten(groups)
		res.Rows = len(res.AggregateRows)
		if res.Rows > 0 {
			err = h.store.WriteAggregateHistory(ctx, dim, res.AggregateRows, overwrite)
		}
	}
	if err != nil {
		if !errors.Is(err, models.ErrWrite) && ctx.Err() == nil {
			err = &models.WriteError{Dimension: dim, Err: err}
		}
		res.Err = err
		h.finish(dim, &res)
		lg.Error("history write failed", applogger.Error(err))
		return res
	}

	if res.Rows == 0 {
		// nothing persisted, so the horizon is still ahead of the latest row
		res.State = models.StateStale
		h.finish(dim, &res)
		lg.Warn("window produced no rows", applogger.Duration("took", time.Since(started)))
		return res
	}

	// readers must not see pre-write rows once the write is acknowledged
	if err := h.cache.EvictTag(ctx, dim.CacheTag()); err != nil {
		h.metrics.RecordError("cache_evict")
		lg.Warn("evict history cache", applogger.Error(err))
	}
	ev := models.HistoryUpdated{
		RunID:     res.RunID,
		Dimension: dim,
		From:      w.From,
		To:        w.To,
		Rows:      res.Rows,
		Overwrite: overwrite,
		At:        h.now().UTC(),
	}
	if err := h.pub.PublishHistoryUpdated(ctx, ev); err != nil {
		h.metrics.RecordError("publish")
		lg.Warn("publish history update", applogger.Error(err))
	}

	res.State = models.StateFresh
	h.metrics.RecordRowsWritten(dim.String(), res.Rows)
	h.metrics.RecordLatency("sync_"+dim.String(), time.Since(started).Seconds())
	h.finish(dim, &res)
	lg.Info("history synced", applogger.Int("rows", res.Rows), applogger.Bool("overwrite", overwrite),
		applogger.Duration("took", time.Since(started)))
	return res
}

// finish settles the state after a run. A cancelled run leaves the dimension
// Stale: nothing past the last acknowledged chunk was written.
func (h *HistorySync) finish(dim models.Dimension, res *SyncResult) {
	if res.Err != nil {
		res.State = models.StateError
		if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
			res.State = models.StateStale
		}
	}
	h.setState(dim, res.State)
	h.metrics.RecordSync(dim.String(), res.State.String())
}

// acquire serializes work on dim: first within the process, then across
// instances through the cache lock. An unreachable cache only costs the
// cross-instance guard; writes stay idempotent either way.
func (h *HistorySync) acquire(ctx context.Context, dim models.Dimension) (func(), error) {
	mu := &h.locks[dim]
	mu.Lock()

	key := "lock:sync:" + dim.String()
	ok, err := h.cache.TryLock(ctx, key, h.cfg.LockTTL)
	switch {
	case err != nil:
		h.log.Warn("distributed lock unavailable", applogger.Stringer("dimension", dim), applogger.Error(err))
		return mu.Unlock, nil
	case !ok:
		mu.Unlock()
		return nil, fmt.Errorf("%s: %w", dim, models.ErrUpdateInProgress)
	}
	return func() {
		// release even when the run's ctx was cancelled
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := h.cache.Unlock(uctx, key); err != nil {
			h.log.Warn("release distributed lock", applogger.Stringer("dimension", dim), applogger.Error(err))
		}
		mu.Unlock()
	}, nil
}

func (h *HistorySync) lockFailureState(dim models.Dimension, err error) models.SyncState {
	st := models.StateError
	if errors.Is(err, models.ErrUpdateInProgress) {
		st = models.StateUpdating
	}
	h.metrics.RecordSync(dim.String(), st.String())
	return st
}

func (h *HistorySync) setState(dim models.Dimension, st models.SyncState) {
	h.stateMu.Lock()
	h.states[dim] = st
	h.stateMu.Unlock()
	h.metrics.SetSyncState(dim.String(), st)
}

func (h *HistorySync) state(dim models.Dimension) models.SyncState {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.states[dim]
}

package usecase

import (
	"context"
	"time"

	applogger "PortfolioHistory/pkg/logger"
)

// Syncer syncs every dimension.
type Syncer interface {
	SyncAll(ctx context.Context, overwrite bool) []SyncResult
}

// Scheduler syncs all dimensions once at start and then on every tick.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	log      *applogger.Logger
}

func NewScheduler(syncer Syncer, interval time.Duration, log *applogger.Logger) *Scheduler {
	return &Scheduler{syncer: syncer, interval: interval, log: log.With(applogger.String("component", "scheduler"))}
}

// Run blocks until ctx is done. A non-positive interval disables the loop.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("periodic sync disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	results := s.syncer.SyncAll(ctx, false)
	rows, failed := 0, 0
	for _, r := range results {
		rows += r.Rows
		if r.Err != nil {
			failed++
			s.log.Warn("scheduled sync failed", applogger.Stringer("dimension", r.Dimension), applogger.Error(r.Err))
		}
	}
	s.log.Info("scheduled sync done",
		applogger.Int("dimensions", len(results)),
		applogger.Int("rows", rows),
		applogger.Int("failed", failed),
		applogger.Duration("took", time.Since(started)),
	)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"
	"PortfolioHistory/pkg/queue"
)

// HistoryJobType is the queue message type of history jobs.
const HistoryJobType = "history.job"

const (
	JobModeSync    = "sync"
	JobModeRebuild = "rebuild"
)

// HistoryJobRequest asks for a sync or rebuild of some dimensions (all when
// empty). From only applies to rebuilds.
type HistoryJobRequest struct {
	Mode       string     `json:"mode" validate:"required,oneof=sync rebuild"`
	Dimensions []string   `json:"dimensions,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

var _ queue.Deduper = HistoryJobRequest{}

// DedupKey identifies requests doing the same work. Reason is ignored.
func (r HistoryJobRequest) DedupKey() string {
	dims := append([]string(nil), r.Dimensions...)
	sort.Strings(dims)
	from := ""
	if r.From != nil {
		from = calendar.Format(*r.From)
	}
	return r.Mode + "|" + strings.Join(dims, ",") + "|" + from
}

// HistoryRunner is the part of HistorySync that jobs drive.
type HistoryRunner interface {
	Sync(ctx context.Context, dim models.Dimension, overwrite bool) SyncResult
	SyncAll(ctx context.Context, overwrite bool) []SyncResult
	Rebuild(ctx context.Context, dim models.Dimension, from *time.Time) SyncResult
	RebuildAll(ctx context.Context, from *time.Time) []SyncResult
}

// HistoryJob runs queued history requests.
type HistoryJob struct {
	runner HistoryRunner
	log    *applogger.Logger
}

var _ queue.Job = (*HistoryJob)(nil)

func NewHistoryJob(runner HistoryRunner, log *applogger.Logger) *HistoryJob {
	return &HistoryJob{runner: runner, log: log.With(applogger.String("job", "history"))}
}

func (j *HistoryJob) Name() string { return "history-job" }

func (j *HistoryJob) Type() string { return HistoryJobType }

// Handle runs the request. A dimension held by another instance fails the
// job so the queue retries it later.
func (j *HistoryJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[HistoryJobRequest](payload)
	if err != nil {
		return err
	}
	results, err := Run(ctx, j.runner, *req)
	if err != nil {
		return err
	}
	var errs []error
	rows := 0
	for _, r := range results {
		rows += r.Rows
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Dimension, r.Err))
		}
	}
	j.log.Info("history job done",
		applogger.String("mode", req.Mode),
		applogger.String("reason", req.Reason),
		applogger.Int("dimensions", len(results)),
		applogger.Int("rows", rows),
		applogger.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// Run executes req against runner. Unknown dimension names fail before any
// work starts.
func Run(ctx context.Context, runner HistoryRunner, req HistoryJobRequest) ([]SyncResult, error) {
	dims := make([]models.Dimension, 0, len(req.Dimensions))
	for _, name := range req.Dimensions {
		d, err := models.ParseDimension(name)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}

	switch req.Mode {
	case JobModeSync:
		if len(dims) == 0 {
			return runner.SyncAll(ctx, false), nil
		}
		out := make([]SyncResult, 0, len(dims))
		for _, d := range dims {
			out = append(out, runner.Sync(ctx, d, false))
		}
		return out, nil
	case JobModeRebuild:
		if len(dims) == 0 {
			return runner.RebuildAll(ctx, req.From), nil
		}
		out := make([]SyncResult, 0, len(dims))
		for _, d := range dims {
			out = append(out, runner.Rebuild(ctx, d, req.From))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown job mode %q", req.Mode)
	}
}

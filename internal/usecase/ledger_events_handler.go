package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PortfolioHistory/internal/domain/models"
	drepo "PortfolioHistory/internal/domain/repository"
	pkgkafka "PortfolioHistory/pkg/kafka"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"
	"PortfolioHistory/pkg/queue"
)

// LedgerEventsHandler reacts to newly ingested ledger events. Events dated on
// or before a dimension's latest stored day invalidate it from that date, so
// those dimensions are queued for a rebuild; otherwise a plain sync is queued.
type LedgerEventsHandler struct {
	topic   string
	store   drepo.HistoryStore
	queue   queue.QueueService
	metrics drepo.Metrics
	log     *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*LedgerEventsHandler)(nil)

func NewLedgerEventsHandler(topic string, store drepo.HistoryStore, q queue.QueueService, metrics drepo.Metrics, log *applogger.Logger) *LedgerEventsHandler {
	return &LedgerEventsHandler{
		topic:   topic,
		store:   store,
		queue:   q,
		metrics: metrics,
		log:     log.With(applogger.String("handler", "ledger_events")),
	}
}

func (h *LedgerEventsHandler) Topic() string { return h.topic }

func (h *LedgerEventsHandler) Handle(ctx context.Context, b []byte) error {
	var m models.LedgerEventsIngested
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode ledger events: %w", err)
	}
	if m.EarliestDate.IsZero() {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("ledger events without earliest_date: %w", models.ErrInvalidEvent)
	}
	earliest := calendar.Day(m.EarliestDate)

	var backdated []string
	for _, dim := range models.AllDimensions() {
		latest, err := h.store.ReadLatestDate(ctx, dim)
		if err != nil {
			return fmt.Errorf("read latest %s date: %w", dim, err)
		}
		if latest != nil && !earliest.After(*latest) {
			backdated = append(backdated, dim.String())
		}
	}

	req := HistoryJobRequest{Mode: JobModeSync, Reason: fmt.Sprintf("%d ledger event(s)", m.Count)}
	if len(backdated) > 0 {
		req = HistoryJobRequest{
			Mode:       JobModeRebuild,
			Dimensions: backdated,
			From:       &earliest,
			Reason:     fmt.Sprintf("%d back-dated ledger event(s) from %s", m.Count, calendar.Format(earliest)),
		}
	}

	start := time.Now()
	id, err := h.queue.PublishMessage(ctx, HistoryJobType, req)
	h.metrics.RecordLatency("ledger_events_enqueue", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("enqueue")
		return fmt.Errorf("enqueue %s job: %w", req.Mode, err)
	}
	h.log.Info("history job queued",
		applogger.String("job_id", id),
		applogger.String("mode", req.Mode),
		applogger.Strings("dimensions", req.Dimensions),
		applogger.Strings("symbols", m.Symbols),
	)
	return nil
}

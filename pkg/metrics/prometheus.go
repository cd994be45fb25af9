package metrics

import (
	"PortfolioHistory/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	syncs       *prometheus.CounterVec
	syncState   *prometheus.GaugeVec
	rowsWritten *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder's collectors with reg, or the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		syncs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_history_syncs_total",
				Help: "History sync runs by dimension and result",
			},
			[]string{"dimension", "result"},
		),
		syncState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "portfolio_history_sync_state",
				Help: "Current sync state per dimension (0 fresh, 1 stale, 2 updating, 3 error)",
			},
			[]string{"dimension"},
		),
		rowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_history_rows_written_total",
				Help: "History rows written per dimension",
			},
			[]string{"dimension"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_history_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_history_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSync(dimension, result string) {
	r.syncs.WithLabelValues(dimension, result).Inc()
}

func (r *Recorder) SetSyncState(dimension string, state models.SyncState) {
	r.syncState.WithLabelValues(dimension).Set(float64(state))
}

func (r *Recorder) RecordRowsWritten(dimension string, n int) {
	r.rowsWritten.WithLabelValues(dimension).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSync(string, string) {}
func (Nop) SetSyncState(string, models.SyncState) {}
func (Nop) RecordRowsWritten(string, int) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}

package metrics

import (
	"testing"

	"PortfolioHistory/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSync("sector", "fresh")
	r.RecordSync("sector", "fresh")
	r.SetSyncState("sector", models.StateError)
	r.RecordRowsWritten("sector", 12)
	r.RecordError("price_gap")
	r.RecordLatency("sync", 0.3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.syncs.WithLabelValues("sector", "fresh")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.syncState.WithLabelValues("sector")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.rowsWritten.WithLabelValues("sector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("price_gap")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}

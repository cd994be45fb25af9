package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"PortfolioHistory/internal/domain/models"
	pkgkafka "PortfolioHistory/pkg/kafka"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (w *recordingWriter) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	w.topic = topic
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisherKeysByDimension(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w, topic: "history.updated"}
	ev := models.HistoryUpdated{RunID: uuid.New(), Dimension: models.DimensionSector, Rows: 4, At: time.Now()}

	require.NoError(t, p.PublishHistoryUpdated(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "history.updated", w.topic)
	assert.Equal(t, "sector", string(w.msgs[0].Key))
	assert.Equal(t, ev.RunID.String(), w.msgs[0].Headers["trace_id"])
	assert.Equal(t, ev, w.msgs[0].Value)
}

func TestKafkaPublisherWrapsErrors(t *testing.T) {
	sentinel := errors.New("broker down")
	p := &KafkaPublisher{w: &recordingWriter{err: sentinel}, topic: "t"}
	err := p.PublishHistoryUpdated(context.Background(), models.HistoryUpdated{Dimension: models.DimensionAsset})
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "asset")
}

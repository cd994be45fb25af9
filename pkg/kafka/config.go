package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption tunes the writer behind a Producer.
type ProducerOption func(*producerSettings)

type producerSettings struct {
	brokers     []string
	compression string
	hashByKey   bool
	writer      *kafka.Writer
}

func defaultProducerSettings() *producerSettings {
	return &producerSettings{
		compression: "gzip",
		hashByKey:   true,
		writer: &kafka.Writer{
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
			BatchSize:    100,
			BatchBytes:   1 << 20,
			BatchTimeout: time.Second,
		},
	}
}

func WithBrokers(brokers []string) ProducerOption {
	return func(s *producerSettings) { s.brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4 or zstd. Anything else is gzip.
func WithCompression(codec string) ProducerOption {
	return func(s *producerSettings) {
		if codec != "" {
			s.compression = codec
		}
	}
}

// WithDelivery sets the acks the broker must collect (-1 for all) and how
// many times the writer tries a batch.
func WithDelivery(acks, attempts int) ProducerOption {
	return func(s *producerSettings) {
		s.writer.RequiredAcks = kafka.RequiredAcks(acks)
		if attempts > 0 {
			s.writer.MaxAttempts = attempts
		}
	}
}

// WithBatching bounds a batch by message count and bytes and sets how long
// the writer lingers for a batch to fill. Zero values keep the defaults.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(s *producerSettings) {
		if size > 0 {
			s.writer.BatchSize = size
		}
		if bytes > 0 {
			s.writer.BatchBytes = int64(bytes)
		}
		if linger > 0 {
			s.writer.BatchTimeout = linger
		}
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(s *producerSettings) {
		s.writer.WriteTimeout = write
		s.writer.ReadTimeout = read
	}
}

func WithAutoCreateTopics(enabled bool) ProducerOption {
	return func(s *producerSettings) { s.writer.AllowAutoTopicCreation = enabled }
}

// WithAsync makes writes fire-and-forget. The writer drops their errors.
func WithAsync(async bool) ProducerOption {
	return func(s *producerSettings) { s.writer.Async = async }
}

// WithHashByKey keeps messages with one key on one partition. Otherwise
// batches go to the partition with the least bytes.
func WithHashByKey(hash bool) ProducerOption {
	return func(s *producerSettings) { s.hashByKey = hash }
}

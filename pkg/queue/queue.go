package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrQueueFull is returned by Enqueue when the pending list is at capacity.
var ErrQueueFull = errors.New("queue full")

// QueueService enqueues typed messages and reports their ids.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes the job with the given payload.
	Handle(ctx context.Context, payload interface{}) error
}

// Deduper is implemented by payloads that may be coalesced: while a message
// with the same key is pending, enqueuing another returns the pending id.
type Deduper interface {
	DedupKey() string
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers     int           // number of workers
	QueueSize   int           // soft cap on pending messages, 0 for none
	RetryLimit  int           // number of maximum retries
	RetryDelay  time.Duration // first retry delay, doubled per attempt
	JobTimeout  time.Duration // per message deadline, 0 for none
	DedupWindow time.Duration // how long a dedup key holds, 0 disables dedup
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	DedupKey  string      `json:"dedup_key,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	LastError string      `json:"last_error,omitempty"`
}

// Stats counts messages by where they wait.
type Stats struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case map[string]interface{}:
		jsonData, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal map to json: %w", err)
		}
		if err := json.Unmarshal(jsonData, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal json to struct: %w", err)
		}
		return &result, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}

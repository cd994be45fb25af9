package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncState is the freshness of one dimension's persisted history.
type SyncState int

const (
	StateFresh SyncState = iota
	StateStale
	StateUpdating
	StateError
)

func (s SyncState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateUpdating:
		return "updating"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s SyncState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// HistoryQuery filters a history read. Empty Keys means all keys.
type HistoryQuery struct {
	Keys []string
	From *time.Time
	To   *time.Time
}

// HistoryUpdated is published after a dimension's history was extended or replaced.
type HistoryUpdated struct {
	RunID     uuid.UUID `json:"run_id"`
	Dimension Dimension `json:"dimension"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Rows      int       `json:"rows"`
	Overwrite bool      `json:"overwrite"`
	At        time.Time `json:"at"`
}

// LedgerEventsIngested is announced by the ingestion side when new events
// land in the event store. EarliestDate is the oldest event date in the batch.
type LedgerEventsIngested struct {
	Symbols      []string  `json:"symbols"`
	EarliestDate time.Time `json:"earliest_date"`
	Count        int       `json:"count"`
}

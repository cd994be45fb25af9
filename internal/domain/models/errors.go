package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrOversell          = errors.New("oversell")
	ErrPriceGap          = errors.New("price gap")
	ErrWrite             = errors.New("history write failed")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrAcquisitionCycle  = errors.New("acquisition cycle")
	ErrDependencyFailed  = errors.New("dependency failed")
	ErrUpdateInProgress  = errors.New("update in progress")
	ErrUnknownDimension  = errors.New("unknown dimension")
)

// SourceError reports an unreachable event store or price provider.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error { return []error{ErrSourceUnavailable, e.Err} }

// OversellError is a ledger integrity violation: a sell larger than the
// tracked quantity. It is never retried.
type OversellError struct {
	Symbol    string
	Date      time.Time
	Requested decimal.Decimal
	Held      decimal.Decimal
}

func (e *OversellError) Error() string {
	return fmt.Sprintf("oversell %s on %s: selling %s, holding %s",
		e.Symbol, e.Date.Format("2006-01-02"), e.Requested, e.Held)
}

func (e *OversellError) Is(target error) bool { return target == ErrOversell }

// PriceGapError marks a valuation row that has no price on or before its date.
type PriceGapError struct {
	Symbol string
	Date   time.Time
}

func (e *PriceGapError) Error() string {
	return fmt.Sprintf("no price for %s on or before %s", e.Symbol, e.Date.Format("2006-01-02"))
}

func (e *PriceGapError) Is(target error) bool { return target == ErrPriceGap }

// WriteError reports a failed history write for one dimension.
type WriteError struct {
	Dimension Dimension
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s history: %v", e.Dimension, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }

// IsRetryable reports whether err is a transient source failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrRateLimited)
}

package util

import (
	"context"
	"math/rand"
	"time"
)

// Backoff classifies an error for Retry.
type Backoff int

const (
	NoRetry Backoff = iota
	RetryShort
	// RetryLong waits SlowFactor times longer, for rate limiting.
	RetryLong
)

// RetryPolicy configures Retry. Zero values fall back to 3 attempts, 200ms..5s, slow factor 5.
type RetryPolicy struct {
	Attempts   int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	SlowFactor int
	Classify   func(error) Backoff
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 5 * time.Second
		if p.MaxDelay < p.BaseDelay {
			p.MaxDelay = p.BaseDelay
		}
	}
	if p.SlowFactor <= 0 {
		p.SlowFactor = 5
	}
	if p.Classify == nil {
		p.Classify = func(error) Backoff { return RetryShort }
	}
	return p
}

// Retry calls fn until it succeeds, the classifier says stop, attempts run out,
// or ctx is done. The last error from fn is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		class := p.Classify(err)
		if class == NoRetry || attempt == p.Attempts {
			return err
		}
		min, max := p.BaseDelay, p.MaxDelay
		if class == RetryLong {
			min *= time.Duration(p.SlowFactor)
			max *= time.Duration(p.SlowFactor)
		}
		select {
		case <-time.After(BackoffWithJitter(min, max, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// BackoffWithJitter returns min*2^(attempt-1) capped at max, minus up to 50% jitter.
func BackoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 32 {
		if e := min * time.Duration(1<<uint(attempt-1)); e > 0 && e < max {
			exp = e
		}
	}
	if half := int64(exp) / 2; half > 0 {
		return exp - time.Duration(rand.Int63n(half))
	}
	return exp
}

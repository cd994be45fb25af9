// Package masterlog merges the event-store tables into one ordered ledger.
package masterlog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/internal/domain/repository"
	applogger "PortfolioHistory/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type Builder struct {
	store     repository.EventStore
	blacklist map[string]struct{}
	log       *applogger.Logger
}

type Option func(*Builder)

// WithBlacklist drops every event of the given (delisted) symbols.
func WithBlacklist(symbols ...string) Option {
	return func(b *Builder) {
		for _, s := range symbols {
			b.blacklist[s] = struct{}{}
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(b *Builder) { b.log = l }
}

func New(store repository.EventStore, opts ...Option) *Builder {
	b := &Builder{store: store, blacklist: make(map[string]struct{}), log: applogger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads every event kind for symbols within [from, to] and merges them
// by (date, kind priority, symbol). Empty symbols means the whole ledger.
// When an acquirer is requested its targets are pulled in too, transitively,
// so the acquirer's received shares can be replayed.
func (b *Builder) Build(ctx context.Context, symbols []string, from, to *time.Time) (*models.MasterLog, error) {
	wanted, err := b.expand(ctx, symbols, to)
	if err != nil {
		return nil, err
	}

	filter := models.EventFilter{Symbols: keys(wanted), From: from, To: to}
	results := make([][]models.Event, len(models.SourceKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range models.SourceKinds {
		g.Go(func() error {
			evs, err := b.store.FetchEvents(gctx, kind, filter)
			if err != nil {
				return sourceErr(kind, err)
			}
			results[i] = evs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]models.Event, 0, total)
	dropped := 0
	for _, r := range results {
		for _, e := range r {
			if b.blacklisted(e.Symbol) || (wanted != nil && !has(wanted, e.Symbol)) {
				dropped++
				continue
			}
			merged = append(merged, e)
		}
	}

	log := models.NewMasterLog(merged, from, to)
	b.log.Debug("master log built",
		applogger.Int("events", log.Len()),
		applogger.Int("symbols", len(log.Symbols())),
		applogger.Int("dropped", dropped),
	)
	return log, nil
}

// expand returns nil for "all symbols", otherwise the requested symbols plus
// every acquisition target reachable from them.
func (b *Builder) expand(ctx context.Context, symbols []string, to *time.Time) (map[string]struct{}, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(symbols))
	frontier := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if b.blacklisted(s) || has(wanted, s) {
			continue
		}
		wanted[s] = struct{}{}
		frontier = append(frontier, s)
	}

	for len(frontier) > 0 {
		evs, err := b.store.FetchEvents(ctx, models.KindAcquisitionTarget, models.EventFilter{Symbols: frontier, To: to})
		if err != nil {
			return nil, sourceErr(models.KindAcquisitionTarget, err)
		}
		var next []string
		for _, e := range evs {
			if e.Kind != models.KindAcquisitionAcquirer || !has(wanted, e.Symbol) {
				continue
			}
			target := e.Acquisition.Target
			if b.blacklisted(target) || has(wanted, target) {
				continue
			}
			wanted[target] = struct{}{}
			next = append(next, target)
		}
		frontier = next
	}
	return wanted, nil
}

func (b *Builder) blacklisted(symbol string) bool {
	_, ok := b.blacklist[symbol]
	return ok
}

func sourceErr(kind models.EventKind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, models.ErrSourceUnavailable) {
		return fmt.Errorf("fetch %s events: %w", kind, err)
	}
	return &models.SourceError{Source: "event store", Err: fmt.Errorf("fetch %s events: %w", kind, err)}
}

func has(set map[string]struct{}, s string) bool {
	_, ok := set[s]
	return ok
}

func keys(set map[string]struct{}) []string {
	if set == nil {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

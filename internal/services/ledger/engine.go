// Package ledger replays a master log into per-symbol quantity and cost-basis series.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/calendar"
	applogger "PortfolioHistory/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type Engine struct {
	method  CostBasisMethod
	cal     *calendar.Calendar
	workers int
	log     *applogger.Logger
}

type Option func(*Engine)

func WithMethod(m CostBasisMethod) Option {
	return func(e *Engine) { e.method = m }
}

// WithWorkers bounds how many symbols replay at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(cal *calendar.Calendar, opts ...Option) *Engine {
	e := &Engine{method: FIFO, cal: cal, workers: 8, log: applogger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Method() CostBasisMethod { return e.method }

// Result holds the replay output. A symbol appears either in Series and
// States, or in Errors.
type Result struct {
	Series map[string]models.Series
	States map[string]State
	Errors map[string]error
}

// Failed lists the symbols that could not be replayed, sorted.
func (r *Result) Failed() []string {
	out := make([]string, 0, len(r.Errors))
	for s := range r.Errors {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Replay folds every symbol's events through apply. Symbols run in stages:
// stage 0 holds symbols that acquire nothing, stage k holds acquirers whose
// targets all finished in earlier stages. Within a stage symbols run on a
// bounded pool. A symbol's failure is recorded in Result.Errors and only
// affects acquirers depending on it. The returned error is non-nil only when
// ctx is done.
func (e *Engine) Replay(ctx context.Context, log *models.MasterLog) (*Result, error) {
	started := time.Now()
	bySymbol := log.BySymbol()
	stages, deps, blocked := plan(bySymbol, log.Symbols())

	res := &Result{
		Series: make(map[string]models.Series, len(bySymbol)),
		States: make(map[string]State, len(bySymbol)),
		Errors: blocked,
	}
	tr := transition{
		method: e.method,
		cal:    e.cal,
		lookup: func(target string, day time.Time) (models.Position, bool) {
			return res.Series[target].At(day)
		},
	}

	for _, stage := range stages {
		series := make([]models.Series, len(stage))
		states := make([]State, len(stage))
		errs := make([]error, len(stage))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for i, sym := range stage {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := failedDependency(sym, deps[sym], res.Errors); err != nil {
					errs[i] = err
					return nil
				}
				series[i], states[i], errs[i] = replaySymbol(tr, bySymbol[sym])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}

		for i, sym := range stage {
			if errs[i] != nil {
				res.Errors[sym] = errs[i]
				continue
			}
			res.Series[sym] = series[i]
			res.States[sym] = states[i]
		}
	}

	e.log.Debug("ledger replayed",
		applogger.Int("symbols", len(bySymbol)),
		applogger.Int("stages", len(stages)),
		applogger.Int("failed", len(res.Errors)),
		applogger.Duration("took_ms", time.Since(started)),
	)
	return res, nil
}

func replaySymbol(tr transition, events []models.Event) (models.Series, State, error) {
	var s State
	series := make(models.Series, 0, len(events))
	for _, ev := range events {
		next, err := tr.apply(s, ev)
		if err != nil {
			return nil, State{}, fmt.Errorf("replay %s: %w", ev.Symbol, err)
		}
		s = next
		pos := models.Position{Date: ev.Date, Quantity: s.Quantity, CostBasis: s.CostBasis}
		if n := len(series); n > 0 && series[n-1].Date.Equal(ev.Date) {
			series[n-1] = pos
			continue
		}
		series = append(series, pos)
	}
	return series, s, nil
}

func failedDependency(sym string, targets []string, failed map[string]error) error {
	for _, t := range targets {
		if err, ok := failed[t]; ok {
			return fmt.Errorf("replay %s: target %s: %w: %w", sym, t, models.ErrDependencyFailed, err)
		}
	}
	return nil
}

// plan assigns every symbol to a stage by acquisition depth. Symbols that sit
// on an acquisition cycle, or depend on one, are returned in blocked instead.
func plan(bySymbol map[string][]models.Event, symbols []string) ([][]string, map[string][]string, map[string]error) {
	deps := make(map[string][]string)
	for _, sym := range symbols {
		for _, ev := range bySymbol[sym] {
			if ev.Kind != models.KindAcquisitionAcquirer {
				continue
			}
			t := ev.Acquisition.Target
			if _, known := bySymbol[t]; known && !slices.Contains(deps[sym], t) {
				deps[sym] = append(deps[sym], t)
			}
		}
	}

	done := make(map[string]bool, len(symbols))
	remaining := slices.Clone(symbols)
	var stages [][]string
	for len(remaining) > 0 {
		var ready, rest []string
		for _, sym := range remaining {
			ok := true
			for _, t := range deps[sym] {
				if !done[t] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, sym)
			} else {
				rest = append(rest, sym)
			}
		}
		if len(ready) == 0 {
			break
		}
		for _, sym := range ready {
			done[sym] = true
		}
		stages = append(stages, ready)
		remaining = rest
	}

	blocked := make(map[string]error)
	for _, sym := range remaining {
		if reaches(deps, sym, sym, make(map[string]bool)) {
			blocked[sym] = fmt.Errorf("replay %s: %w", sym, models.ErrAcquisitionCycle)
		}
	}
	for _, sym := range remaining {
		if _, ok := blocked[sym]; !ok {
			blocked[sym] = fmt.Errorf("replay %s: %w: %w", sym, models.ErrDependencyFailed, models.ErrAcquisitionCycle)
		}
	}
	return stages, deps, blocked
}

// reaches reports whether to is reachable from from along at least one dependency edge.
func reaches(deps map[string][]string, from, to string, seen map[string]bool) bool {
	for _, t := range deps[from] {
		if t == to {
			return true
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		if reaches(deps, t, to, seen) {
			return true
		}
	}
	return false
}

package di

import (
	"context"
	"errors"
	"io"

	internalrepo "PortfolioHistory/internal/repository"
	"PortfolioHistory/internal/usecase"
	"PortfolioHistory/pkg/cache"
	pkgch "PortfolioHistory/pkg/clickhouse"
	"PortfolioHistory/pkg/queue"
)

// Toolkit exposes the history use cases to command-line tools without
// starting servers, consumers or workers.
type Toolkit struct {
	Sync      *usecase.HistorySync
	Positions *usecase.Positions
	Jobs      *queue.RedisQueue

	closers []io.Closer
}

// ProvideToolkit bundles the use cases with the clients they hold open.
func ProvideToolkit(
	hs *usecase.HistorySync,
	positions *usecase.Positions,
	jobs *queue.RedisQueue,
	ch *pkgch.Client,
	c cache.Service,
	pub *internalrepo.KafkaPublisher,
) *Toolkit {
	return &Toolkit{
		Sync:      hs,
		Positions: positions,
		Jobs:      jobs,
		closers:   []io.Closer{pub, c, ch},
	}
}

// Close releases every client.
func (t *Toolkit) Close() error {
	var errs []error
	if err := t.Jobs.Stop(context.Background()); err != nil {
		errs = append(errs, err)
	}
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"PortfolioHistory/pkg/config"
	xhttp "PortfolioHistory/pkg/http"
	pkgkafka "PortfolioHistory/pkg/kafka"
	applogger "PortfolioHistory/pkg/logger"
)

// Runner is a background loop bound to the application context.
type Runner interface {
	Run(ctx context.Context)
}

// Lifecycle is a component started once and stopped on shutdown.
type Lifecycle interface {
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	queue      Lifecycle
	scheduler  Runner
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New creates a new App. Closers are released in the given order after the
// servers and workers stop; the consumer may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	queue Lifecycle,
	scheduler Runner,
	clickhouse io.Closer,
	cache io.Closer,
	publisher io.Closer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		consumer:   consumer,
		queue:      queue,
		scheduler:  scheduler,
		closers: []namedCloser{
			{name: "kafka publisher", c: publisher},
			{name: "cache", c: cache},
			{name: "clickhouse", c: clickhouse},
		},
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting",
		applogger.String("clickhouse_db", a.cfg.ClickHouse.Database),
		applogger.Strings("kafka_brokers", a.cfg.Kafka.Brokers),
		applogger.String("history_start", a.cfg.History.StartDate),
	)

	if err := a.queue.Start(); err != nil {
		return err
	}
	a.log.Info("job queue started")

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topics.LedgerEvents))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.scheduler.Run(ctx)
	}()

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		stop()
		<-done
		return errors.Join(err, a.shutdown())
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	<-done
	return a.shutdown()
}

// shutdown stops intake first, then drains workers, then releases clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.queue.Stop(ctx); err != nil {
		a.log.Warn("job queue stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	// flush aggregated logs while the publisher is still open
	a.log.RemoveCollector()

	for _, nc := range a.closers {
		if nc.c == nil {
			continue
		}
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

package di

import (
	"context"
	"fmt"
	"time"

	"PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/internal/handler/api"
	internalrepo "PortfolioHistory/internal/repository"
	"PortfolioHistory/internal/service/prices"
	"PortfolioHistory/internal/services/ledger"
	"PortfolioHistory/internal/services/masterlog"
	"PortfolioHistory/internal/services/valuation"
	"PortfolioHistory/internal/usecase"
	"PortfolioHistory/pkg/cache"
	"PortfolioHistory/pkg/calendar"
	pkgch "PortfolioHistory/pkg/clickhouse"
	"PortfolioHistory/pkg/config"
	xhttp "PortfolioHistory/pkg/http"
	pkgkafka "PortfolioHistory/pkg/kafka"
	applogger "PortfolioHistory/pkg/logger"
	"PortfolioHistory/pkg/metrics"
	"PortfolioHistory/pkg/queue"
	"PortfolioHistory/pkg/server"
	"PortfolioHistory/pkg/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideRegistry creates the Prometheus registry every component reports to.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pkgkafka.SetConsumerMetricsRegisterer(reg)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideLogger builds the service logger. When enabled, repeated errors are
// aggregated and shipped to the logs topic.
func ProvideLogger(cfg *config.Config, pub *internalrepo.KafkaPublisher) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && cfg.Kafka.Topics.Logs != "" {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        cfg.Service,
			Level:          cfg.Log.Collector.Level,
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      pub,
		})
	}
	return l.With(applogger.String("service", cfg.Service), applogger.String("env", cfg.Environment)), nil
}

// ProvideClickHouseClient creates a ClickHouse client and, when configured,
// creates the event and history tables.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if !cfg.ClickHouse.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to Redis.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache fronts Redis with an in-process layer when one is configured.
func ProvideCache(rc *cache.RedisCache, cfg *config.Config) cache.Service {
	if cfg.Redis.MemoryCacheSize <= 0 {
		return rc
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemory(cfg.Redis.MemoryCacheSize, cfg.Redis.MemoryCacheTTL),
	)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.AutoCreate),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaPublisher publishes history updates and log batches.
func ProvideKafkaPublisher(producer *pkgkafka.Producer, cfg *config.Config) *internalrepo.KafkaPublisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.HistoryUpdated)
}

// ProvideEventStore reads the ledger from ClickHouse.
func ProvideEventStore(ch *pkgch.Client, l *applogger.Logger) repository.EventStore {
	return internalrepo.NewCHEventStore(ch, l)
}

// ProvideHistoryStore persists history in ClickHouse and caches reads.
func ProvideHistoryStore(ch *pkgch.Client, c cache.Service, l *applogger.Logger, cfg *config.Config) repository.HistoryStore {
	store := internalrepo.NewCHHistoryStore(ch, l, cfg.ClickHouse.WriteChunkDays)
	return internalrepo.NewCachedHistoryStore(store, c, cfg.History.CacheTTL)
}

// ProvideCalendar builds the exchange calendar.
func ProvideCalendar(cfg *config.Config) *calendar.Calendar {
	return calendar.New(cfg.History.HolidayDates()...)
}

// ProvidePriceProvider creates the EOD price client.
func ProvidePriceProvider(cfg *config.Config, c cache.Service, l *applogger.Logger) repository.PriceProvider {
	return prices.New(prices.Config{
		BaseURL:           cfg.Prices.BaseURL,
		APIKey:            cfg.Prices.APIKey,
		Exchange:          cfg.Prices.Exchange,
		Timeout:           cfg.Prices.Timeout,
		RequestsPerSecond: cfg.Prices.RequestsPerSecond,
		Burst:             cfg.Prices.Burst,
		Workers:           cfg.Prices.Workers,
		DailyTTL:          cfg.Prices.DailyTTL,
		CurrentTTL:        cfg.Prices.CurrentTTL,
		Blacklist:         cfg.History.Blacklist,
		Retry: util.RetryPolicy{
			Attempts:  cfg.Prices.RetryAttempts,
			BaseDelay: cfg.Prices.RetryBaseDelay,
			MaxDelay:  cfg.Prices.RetryMaxDelay,
		},
	}, c, l)
}

// ProvideMasterLogBuilder merges ledger events, dropping blacklisted symbols.
func ProvideMasterLogBuilder(events repository.EventStore, cfg *config.Config, l *applogger.Logger) *masterlog.Builder {
	return masterlog.New(events,
		masterlog.WithBlacklist(cfg.History.Blacklist...),
		masterlog.WithLogger(l),
	)
}

// ProvideLedgerEngine creates the replay engine.
func ProvideLedgerEngine(cal *calendar.Calendar, cfg *config.Config, l *applogger.Logger) (*ledger.Engine, error) {
	method, err := ledger.ParseCostBasisMethod(cfg.History.CostBasisMethod)
	if err != nil {
		return nil, err
	}
	return ledger.New(cal,
		ledger.WithMethod(method),
		ledger.WithWorkers(cfg.History.Workers),
		ledger.WithLogger(l),
	), nil
}

// ProvideValuation creates the valuation generator.
func ProvideValuation(cal *calendar.Calendar) *valuation.Generator {
	return valuation.New(cal)
}

// ProvideSnapshotSource shares one replay per window across dimensions.
func ProvideSnapshotSource(
	builder *masterlog.Builder,
	engine *ledger.Engine,
	valuator *valuation.Generator,
	events repository.EventStore,
	pp repository.PriceProvider,
	m repository.Metrics,
	l *applogger.Logger,
) usecase.SnapshotComputer {
	return usecase.NewSnapshotSource(builder, engine, valuator, events, pp, m, l)
}

// ProvideHistorySync creates the sync state machine.
func ProvideHistorySync(
	store repository.HistoryStore,
	c cache.Service,
	pub *internalrepo.KafkaPublisher,
	m repository.Metrics,
	snapshots usecase.SnapshotComputer,
	cal *calendar.Calendar,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.HistorySync {
	return usecase.NewHistorySync(store, c, pub, m, snapshots, cal, usecase.SyncConfig{
		StartDate: cfg.History.Start(),
		LockTTL:   cfg.History.LockTTL,
		Workers:   cfg.History.SyncWorkers,
	}, l)
}

// ProvideHistoryReader serves reads, stats and milestones.
func ProvideHistoryReader(store repository.HistoryStore, hs *usecase.HistorySync, l *applogger.Logger) *usecase.HistoryReader {
	return usecase.NewHistoryReader(store, hs, l)
}

// ProvidePositions summarizes current holdings.
func ProvidePositions(builder *masterlog.Builder, engine *ledger.Engine, pp repository.PriceProvider, l *applogger.Logger) *usecase.Positions {
	return usecase.NewPositions(builder, engine, pp, l)
}

// ProvideHistoryJob runs queued syncs and rebuilds.
func ProvideHistoryJob(hs *usecase.HistorySync, l *applogger.Logger) *usecase.HistoryJob {
	return usecase.NewHistoryJob(hs, l)
}

// ProvideQueue creates the Redis job queue and registers the history job.
func ProvideQueue(rc *cache.RedisCache, job *usecase.HistoryJob, cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,

		JobTimeout:  cfg.Queue.JobTimeout,
		DedupWindow: cfg.Queue.DedupWindow,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(queueKeyPrefix(cfg)))
	q.RegisterJob(job)
	return q
}

// ProvideJobPublisher enqueues history jobs for a running service to pick up.
func ProvideJobPublisher(rc *cache.RedisCache, cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	return queue.NewRedisPublisher(l, &queue.QueueConfig{
		QueueSize:   cfg.Queue.QueueSize,
		DedupWindow: cfg.Queue.DedupWindow,
	}, rc.Client(), queue.WithKeyPrefix(queueKeyPrefix(cfg)))
}

func queueKeyPrefix(cfg *config.Config) string { return cfg.Redis.Prefix + ":queue" }

// ProvideLedgerEventsHandler turns ingestion notices into history jobs.
func ProvideLedgerEventsHandler(
	cfg *config.Config,
	store repository.HistoryStore,
	q *queue.RedisQueue,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.LedgerEventsHandler {
	return usecase.NewLedgerEventsHandler(cfg.Kafka.Topics.LedgerEvents, store, q, m, l)
}

// ProvideKafkaConsumer creates the ledger-events consumer, or nil when
// consumption is disabled.
func ProvideKafkaConsumer(cfg *config.Config, h *usecase.LedgerEventsHandler, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Log: l})
	consumer.RegisterHandler(h)
	return consumer, nil
}

// ProvideScheduler keeps every dimension fresh in the background.
func ProvideScheduler(hs *usecase.HistorySync, cfg *config.Config, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(hs, cfg.History.SyncInterval, l)
}

// ProvideHTTPHandler registers the history API.
func ProvideHTTPHandler(
	l *applogger.Logger,
	reader *usecase.HistoryReader,
	hs *usecase.HistorySync,
	positions *usecase.Positions,
	q *queue.RedisQueue,
) *api.HistoryEchoHandler {
	return api.NewHistoryEchoHandler(l, reader, hs, positions, q)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.HistoryEchoHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, l,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithMetrics(reg, reg),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	scheduler *usecase.Scheduler,
	ch *pkgch.Client,
	c cache.Service,
	pub *internalrepo.KafkaPublisher,
) *server.App {
	return server.New(cfg, l, httpServer, consumer, q, scheduler, ch, c, pub)
}

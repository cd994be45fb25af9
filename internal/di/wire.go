//go:build wireinject
// +build wireinject

package di

import (
	"PortfolioHistory/pkg/config"
	"PortfolioHistory/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaPublisher,
		ProvideLogger,

		// Repositories and providers
		ProvideEventStore,
		ProvideHistoryStore,
		ProvideCalendar,
		ProvidePriceProvider,

		// Domain services
		ProvideMasterLogBuilder,
		ProvideLedgerEngine,
		ProvideValuation,

		// Use cases
		ProvideSnapshotSource,
		ProvideHistorySync,
		ProvideHistoryReader,
		ProvidePositions,
		ProvideHistoryJob,
		ProvideQueue,
		ProvideLedgerEventsHandler,
		ProvideKafkaConsumer,
		ProvideScheduler,

		// HTTP
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeToolkit wires the use cases needed by historyctl.
func InitializeToolkit(cfg *config.Config) (*Toolkit, error) {
	wire.Build(
		ProvideRegistry,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaPublisher,
		ProvideLogger,
		ProvideEventStore,
		ProvideHistoryStore,
		ProvideCalendar,
		ProvidePriceProvider,
		ProvideMasterLogBuilder,
		ProvideLedgerEngine,
		ProvideValuation,
		ProvideSnapshotSource,
		ProvideHistorySync,
		ProvidePositions,
		ProvideJobPublisher,
		ProvideToolkit,
	)
	return &Toolkit{}, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"BinPull/pkg/config"
	"BinPull/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideMetricsPort,
	ProvideRedisCache,
	ProvideCache,
	ProvideClickHouseClient,
	ProvideArchives,
	ProvideKafkaProducer,
	ProvideEventSink,
	ProvideKafkaConsumer,
	ProvideCredentials,
	ProvideVenueFactory,
	ProvideEventBus,
)

var sessionSet = wire.NewSet(
	ProvideTickArchiver,
	ProvideSessionStore,
	ProvideSessionLock,
	ProvideManagerConfig,
	ProvideSessionManager,
	ProvideCommandHandler,
	ProvideCommandQueue,
)

var httpSet = wire.NewSet(
	ProvideSignalFeed,
	ProvideCandlesUseCase,
	ProvideMarketOverview,
	ProvideScanner,
	ProvideSessionsHandler,
	ProvideMarketHandler,
	ProvideHealthHandler,
	ProvideHTTPServer,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		sessionSet,
		httpSet,
		wire.Struct(new(server.Deps), "*"),
		ProvideApp,
	)
	return nil, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	domrepo "Argo/internal/domain/repository"
	"Argo/pkg/config"
	"Argo/pkg/metrics"
	"Argo/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),
	ProvideKafkaProducer,
	ProvideKafkaConsumer,
	ProvideClickHouseClient,
	ProvidePostgresClient,
	ProvideCacheStore,
)

var sourceSet = wire.NewSet(
	ProvideAdaptiveCache,
	ProvideBreakers,
	ProvideSourceLimiter,
	ProvideHealthTracker,
	ProvidePriceBook,
	ProvideTickPipeline,
	ProvideTickStream,
	ProvidePriceCollector,
	ProvideKafkaTicksHandler,
	ProvidePriceSource,
	ProvidePriceFeed,
	ProvideOpinionSources,
	ProvideRegimeDetector,
)

var engineSet = wire.NewSet(
	ProvideSignalRepository,
	ProvideSignalPublisher,
	ProvideEngine,
	ProvideCalibrator,
	ProvideBuilder,
	ProvideSignalStore,
	ProvideOrchestrator,
	ProvideCalibrationTrainer,
	ProvideOutcomeTracker,
	ProvideSignalQuery,
	ProvideHealthMonitor,
)

// InitializeApp wires up all dependencies and returns the application. The
// cleanup closes infrastructure clients and must run after App.Run returns.
func InitializeApp(ctx context.Context, cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		sourceSet,
		engineSet,
		ProvideSignalsHandler,
		ProvideHTTPServer,
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return nil, nil, nil
}

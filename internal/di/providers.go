package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	domsvc "Argo/internal/domain/service"
	"Argo/internal/handler/api"
	"Argo/internal/middleware"
	internalrepo "Argo/internal/repository"
	"Argo/internal/service/breaker"
	icache "Argo/internal/service/cache"
	"Argo/internal/service/finnhub"
	"Argo/internal/service/ratelimit"
	"Argo/internal/services/analytics"
	"Argo/internal/services/builder"
	"Argo/internal/services/calibration"
	"Argo/internal/services/consensus"
	"Argo/internal/services/sources"
	"Argo/internal/usecase"
	pkgcache "Argo/pkg/cache"
	pkgch "Argo/pkg/clickhouse"
	"Argo/pkg/config"
	xhttp "Argo/pkg/http"
	pkgkafka "Argo/pkg/kafka"
	"Argo/pkg/logger"
	"Argo/pkg/metrics"
	pkgpg "Argo/pkg/postgres"
	"Argo/pkg/server"
)

const (
	serviceName = "argo"
	// pricesKey names the price feed in the breaker and limiter registries.
	pricesKey = "prices"
)

// PriceSource serves both the lookback series for market contexts and the
// bar ranges the outcome tracker walks.
type PriceSource interface {
	domrepo.PriceSeriesProvider
	domrepo.BarRangeProvider
}

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics registers the domain collectors on the default registry,
// which pkg/http serves on /metrics.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideKafkaProducer returns nil when no brokers are configured. With a
// collector topic set, deduplicated error logs are shipped through it too.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled() {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(l.With("kafka-producer")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Logging.CollectorTopic != "" {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.CollectorInterval,
			CountThreshold: 500,
			Topic:          cfg.Logging.CollectorTopic,
			Service:        serviceName,
			Publisher:      producer,
		})
	}

	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return producer, cleanup, nil
}

func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.SignalPublisher {
	if producer == nil || cfg.Store.EventsTopic == "" {
		return internalrepo.NopSignalPublisher{}
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Store.EventsTopic)
}

// ProvideKafkaConsumer returns nil unless a ticks topic is configured.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Kafka.TicksTopic == "" {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerLogger(l.With("kafka-consumer")),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideKafkaTicksHandler(cfg *config.Config, pipe *middleware.TickPipeline, m domrepo.Metrics) *usecase.KafkaTicksHandler {
	if cfg.Kafka.TicksTopic == "" {
		return nil
	}
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, pipe, m)
}

// ProvideClickHouseClient connects only when the store or the price provider
// needs ClickHouse.
func ProvideClickHouseClient(ctx context.Context, cfg *config.Config, l *logger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Store.Backend != "clickhouse" && cfg.Prices.Provider != "clickhouse" {
		return nil, func() {}, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(ch.MaxOpenConns, ch.MaxIdleConns),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}
	return client, cleanup, nil
}

func ProvidePostgresClient(ctx context.Context, cfg *config.Config, l *logger.Logger) (*pkgpg.Client, func(), error) {
	if cfg.Store.Backend != "postgres" {
		return nil, func() {}, nil
	}
	pg := cfg.Postgres
	client, err := pkgpg.NewClient(ctx,
		pkgpg.WithDSN(pg.DSN),
		pkgpg.WithPool(pg.MaxConns, pg.MinConns, pg.ConnLifetime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("postgres close error", logger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideSignalRepository picks the backend and makes sure its schema exists.
func ProvideSignalRepository(ctx context.Context, cfg *config.Config, ch *pkgch.Client, pg *pkgpg.Client, l *logger.Logger) (domrepo.SignalRepository, error) {
	var repo domrepo.SignalRepository
	switch cfg.Store.Backend {
	case "clickhouse":
		repo = internalrepo.NewClickHouseSignalRepository(ch, cfg.ClickHouse.Database, l.With("signals-clickhouse"))
	case "postgres":
		repo = internalrepo.NewPostgresSignalRepository(pg, l.With("signals-postgres"))
	default:
		repo = internalrepo.NewMemorySignalRepository()
	}

	ictx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := repo.Init(ictx); err != nil {
		return nil, fmt.Errorf("signal store schema: %w", err)
	}
	return repo, nil
}

// ProvideCacheStore builds the cache backend shared by source responses,
// calibration snapshots and the outcome tracker lock.
func ProvideCacheStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (pkgcache.Service, func(), error) {
	var store pkgcache.Service
	switch cfg.Cache.Backend {
	case "redis", "layered":
		rc, err := pkgcache.NewRedisCache(ctx,
			pkgcache.WithRedisAddr(cfg.Redis.Addr),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
			pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns),
			pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		store = rc
		if cfg.Cache.Backend == "layered" {
			store = pkgcache.NewLayeredCache(rc, cfg.Cache.L1Size, cfg.Cache.L1TTL)
		}
	default:
		store = pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MaxSize))
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("cache close error", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

func ProvideAdaptiveCache(cfg *config.Config, store pkgcache.Service, m domrepo.Metrics, l *logger.Logger) *icache.AdaptiveCache {
	policy := icache.TTLPolicy{
		OffHoursMultiplier:  cfg.Cache.OffHoursMultiplier,
		VolatilityReference: cfg.Cache.VolatilityReference,
		Floor:               cfg.Cache.Floor,
	}
	return icache.NewAdaptiveCache(store, policy, cfg.Cache.DefaultTTL, m, l.With("cache"))
}

func breakerSettings(b config.BreakerConfig) breaker.Settings {
	return breaker.Settings{
		FailureThreshold: b.FailureThreshold,
		SuccessThreshold: b.SuccessThreshold,
		Timeout:          b.OpenTimeout,
	}
}

// ProvideBreakers keeps one breaker per source plus one for the price feed and
// exports every transition.
func ProvideBreakers(cfg *config.Config, m domrepo.Metrics, l *logger.Logger) *breaker.Registry {
	per := map[string]breaker.Settings{pricesKey: breakerSettings(cfg.Prices.Breaker)}
	for _, s := range cfg.EnabledSources() {
		per[s.ID] = breakerSettings(s.Breaker)
	}
	bl := l.With("breaker")
	return breaker.NewRegistry(breaker.Settings{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}, per,
		func(name string, from, to breaker.State) {
			m.RecordBreakerState(name, int(to))
			bl.Warn("circuit state changed",
				logger.String("source", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
}

// ProvideSourceLimiter rate limits calls to each upstream.
func ProvideSourceLimiter(cfg *config.Config) *ratelimit.Limiter {
	per := map[string]ratelimit.Limit{
		pricesKey: {RPS: cfg.Prices.RateLimit.RPS, Burst: cfg.Prices.RateLimit.Burst},
	}
	for _, s := range cfg.EnabledSources() {
		per[s.ID] = ratelimit.Limit{RPS: s.RateLimit.RPS, Burst: s.RateLimit.Burst}
	}
	return ratelimit.New(ratelimit.Limit{RPS: 5, Burst: 10}, per)
}

func ProvideHealthTracker() *sources.HealthTracker {
	return sources.NewHealthTracker()
}

func ProvidePriceBook(m domrepo.Metrics) *usecase.PriceBook {
	return usecase.NewPriceBook(m)
}

// ProvideTickStream returns nil without a Finnhub key; the price book then
// only hears from the Kafka ticks topic, if any.
func ProvideTickStream(cfg *config.Config, l *logger.Logger) domrepo.TickStream {
	if !cfg.Finnhub.Enabled() {
		return nil
	}
	fh := cfg.Finnhub
	return finnhub.New(fh.APIKey, fh.WebSocketURL, fh.ReconnectDelay, fh.PingInterval, l.With("finnhub"))
}

// ProvideTickPipeline throttles both live feeds in front of the price book.
func ProvideTickPipeline(cfg *config.Config, book *usecase.PriceBook, m domrepo.Metrics) *middleware.TickPipeline {
	return middleware.NewTickPipeline(book, m, middleware.WithMaxRPS(cfg.Prices.MaxTickRPS))
}

func ProvidePriceCollector(cfg *config.Config, stream domrepo.TickStream, pipe *middleware.TickPipeline, m domrepo.Metrics, l *logger.Logger) *usecase.PriceCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewPriceCollector(stream, pipe, cfg.TickerSymbols(), m, l.With("price-collector"))
}

func ProvidePriceSource(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) PriceSource {
	if cfg.Prices.Provider == "clickhouse" {
		return internalrepo.NewClickHousePriceSeries(ch, cfg.ClickHouse.Database, l.With("prices-clickhouse"))
	}
	return analytics.NewHTTPPriceSeries(analytics.NewHTTPServiceBase(cfg.Prices.URL, cfg.Prices.Timeout, cfg.Prices.APIKey))
}

func ProvidePriceFeed(
	cfg *config.Config,
	src PriceSource,
	c *icache.AdaptiveCache,
	limiter *ratelimit.Limiter,
	breakers *breaker.Registry,
	tracker *sources.HealthTracker,
	m domrepo.Metrics,
	book *usecase.PriceBook,
	l *logger.Logger,
) *sources.PriceFeed {
	guard := sources.NewGuard[[]models.Candle](pricesKey,
		sources.WithCache[[]models.Candle](c, cfg.Prices.CacheTTL),
		sources.WithLimiter[[]models.Candle](limiter),
		sources.WithBreaker[[]models.Candle](breakers.Get(pricesKey)),
		sources.WithTimeout[[]models.Candle](cfg.Prices.Timeout),
		sources.WithHealth[[]models.Candle](tracker),
		sources.WithMetrics[[]models.Candle](m),
		sources.WithLogger[[]models.Candle](l.With("price-feed")),
	)
	return sources.NewPriceFeed(src, guard, book, cfg.Prices.Lookback, domrepo.NormalizeTimeframe(cfg.Prices.Timeframe))
}

func opinionFetcher(s config.SourceConfig) domsvc.OpinionFetcher {
	switch s.Kind {
	case "technical":
		return sources.NewTechnicalFetcher(s.ID)
	case "sentiment":
		return analytics.NewHTTPOpinionClient(s.ID, analytics.NewHTTPServiceBase(s.URL, s.Timeout, s.APIKey))
	case "ai_model":
		return analytics.NewHTTPEdgeScorer(s.ID, analytics.NewHTTPServiceBase(s.URL, s.Timeout, s.APIKey), s.Horizon)
	default:
		return sources.NewMomentumFetcher(s.ID)
	}
}

// ProvideOpinionSources builds one guarded adapter per enabled source.
func ProvideOpinionSources(
	cfg *config.Config,
	c *icache.AdaptiveCache,
	limiter *ratelimit.Limiter,
	breakers *breaker.Registry,
	tracker *sources.HealthTracker,
	m domrepo.Metrics,
	l *logger.Logger,
) []usecase.OpinionSource {
	enabled := cfg.EnabledSources()
	out := make([]usecase.OpinionSource, 0, len(enabled))
	for _, s := range enabled {
		sl := l.With("source-" + s.ID)
		guard := sources.NewGuard[models.SourceOpinion](s.ID,
			sources.WithCache[models.SourceOpinion](c, s.CacheTTL),
			sources.WithLimiter[models.SourceOpinion](limiter),
			sources.WithBreaker[models.SourceOpinion](breakers.Get(s.ID)),
			sources.WithTimeout[models.SourceOpinion](s.Timeout),
			sources.WithHealth[models.SourceOpinion](tracker),
			sources.WithMetrics[models.SourceOpinion](m),
			sources.WithLogger[models.SourceOpinion](sl),
		)
		out = append(out, sources.NewAdapter(opinionFetcher(s), guard, sl))
	}
	return out
}

// ProvideRegimeDetector prefers the remote model and falls back to the local
// classifier; without a service URL only the local one runs.
func ProvideRegimeDetector(cfg *config.Config, l *logger.Logger) domsvc.RegimeDetector {
	local := analytics.LocalRegimeDetector{
		HighVolatility: cfg.Regime.HighVolatility,
		TrendingER:     cfg.Regime.TrendingER,
		ChoppyER:       cfg.Regime.ChoppyER,
		MinBars:        cfg.Regime.MinBars,
		Timeframe:      domrepo.NormalizeTimeframe(cfg.Prices.Timeframe),
	}
	var remote domsvc.RegimeDetector
	if cfg.Regime.ServiceURL != "" {
		remote = analytics.NewHTTPRegimeDetector(analytics.NewHTTPServiceBase(cfg.Regime.ServiceURL, cfg.Regime.Timeout, cfg.Regime.APIKey))
	}
	return analytics.NewFallbackRegimeDetector(remote, local, l.With("regime"))
}

func regimeTable(cfg *config.Config) consensus.RegimeWeightTable {
	if len(cfg.RegimeWeights) == 0 {
		return consensus.DefaultRegimeWeightTable()
	}
	t := make(consensus.RegimeWeightTable, len(cfg.RegimeWeights))
	for label, mults := range cfg.RegimeWeights {
		row := make(map[string]float64, len(mults))
		for id, v := range mults {
			row[id] = v
		}
		t[models.RegimeLabel(label)] = row
	}
	return t
}

func ProvideEngine(cfg *config.Config) (*consensus.Engine, error) {
	return consensus.NewEngine(consensus.Config{
		Weights:     consensus.Weights(cfg.SourceWeights()),
		RegimeTable: regimeTable(cfg),
		MinSources:  cfg.Engine.MinSources,
		Threshold:   cfg.Engine.Threshold,
		EarlyExit:   !cfg.Engine.DisableEarlyExit,
	})
}

func ProvideCalibrator(cfg *config.Config, store pkgcache.Service, l *logger.Logger) *calibration.Calibrator {
	return calibration.New(calibration.Config{
		MinSamplesPerSymbol: cfg.Calibration.MinSamplesPerSymbol,
		MinSamplesGlobal:    cfg.Calibration.MinSamplesGlobal,
		BucketWidth:         cfg.Calibration.BucketWidth,
	}, store, l.With("calibration"))
}

func ProvideBuilder(cfg *config.Config, cal *calibration.Calibrator) *builder.Builder {
	return builder.New(builder.RiskConfig{StopPct: cfg.Risk.StopPct, TargetPct: cfg.Risk.TargetPct}, cal)
}

func ProvideSignalStore(cfg *config.Config, repo domrepo.SignalRepository, pub domrepo.SignalPublisher, m domrepo.Metrics, l *logger.Logger) *usecase.SignalStore {
	st := cfg.Store
	return usecase.NewSignalStore(usecase.SignalStoreConfig{
		BatchSize:     st.BatchSize,
		MaxLatency:    st.MaxLatency,
		MaxRetries:    st.MaxRetries,
		RetryBackoff:  st.RetryBackoff,
		QueueCapacity: st.QueueCapacity,
		WriteTimeout:  st.WriteTimeout,
	}, repo, pub, st.Backend, m, l.With("signal-store"))
}

func ProvideOrchestrator(
	cfg *config.Config,
	feed *sources.PriceFeed,
	srcs []usecase.OpinionSource,
	regime domsvc.RegimeDetector,
	engine *consensus.Engine,
	b *builder.Builder,
	store *usecase.SignalStore,
	m domrepo.Metrics,
	l *logger.Logger,
) *usecase.Orchestrator {
	e := cfg.Engine
	return usecase.NewOrchestrator(usecase.OrchestratorConfig{
		Symbols:       e.Symbols,
		Interval:      e.Interval,
		CycleTimeout:  e.CycleTimeout,
		SourceTimeout: e.SourceTimeout,
		MaxConcurrent: e.MaxConcurrent,
		SkipMaxAge:    e.SkipMaxAge,
		SkipPriceMove: e.SkipPriceMove,
	}, feed, srcs, regime, engine, b, store, m, l.With("orchestrator"))
}

func ProvideCalibrationTrainer(cfg *config.Config, repo domrepo.SignalRepository, cal *calibration.Calibrator, l *logger.Logger) *usecase.CalibrationTrainer {
	return usecase.NewCalibrationTrainer(repo, cal, cfg.Calibration.Lookback, cfg.Outcomes.ScanLimit, l.With("calibration-trainer"))
}

func ProvideOutcomeTracker(
	cfg *config.Config,
	repo domrepo.SignalRepository,
	src PriceSource,
	book *usecase.PriceBook,
	pub domrepo.SignalPublisher,
	trainer *usecase.CalibrationTrainer,
	lock pkgcache.Service,
	m domrepo.Metrics,
	l *logger.Logger,
) *usecase.OutcomeTracker {
	o := cfg.Outcomes
	return usecase.NewOutcomeTracker(usecase.OutcomeConfig{
		Interval:  o.Interval,
		Horizon:   o.Horizon,
		Timeframe: domrepo.NormalizeTimeframe(cfg.Prices.Timeframe),
		LockTTL:   o.LockTTL,
		ScanLimit: o.ScanLimit,
	}, repo, src, book, pub, trainer, lock, m, l.With("outcomes"))
}

func ProvideSignalQuery(cfg *config.Config, store *usecase.SignalStore) *usecase.SignalQuery {
	return usecase.NewSignalQuery(store, cfg.Server.ReadTimeout)
}

func ProvideHealthMonitor(
	cfg *config.Config,
	tracker *sources.HealthTracker,
	breakers *breaker.Registry,
	c *icache.AdaptiveCache,
	orch *usecase.Orchestrator,
	store *usecase.SignalStore,
) *usecase.HealthMonitor {
	ids := make([]string, 0, len(cfg.Sources))
	for _, s := range cfg.EnabledSources() {
		ids = append(ids, s.ID)
	}
	return usecase.NewHealthMonitor(tracker, breakers, c, orch, store, ids)
}

// ProvideSignalsHandler gives the read API its own per-client limiter, keyed
// by remote address.
func ProvideSignalsHandler(cfg *config.Config, l *logger.Logger, query *usecase.SignalQuery, health *usecase.HealthMonitor) *api.SignalsEchoHandler {
	clients := ratelimit.New(ratelimit.Limit{RPS: cfg.Server.ClientRPS, Burst: cfg.Server.ClientBurst}, nil)
	return api.NewSignalsEchoHandler(l.With("api"), query, health, clients)
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.SignalsEchoHandler) *xhttp.Server {
	s := cfg.Server
	opts := []xhttp.ServerOption{
		xhttp.WithAddress(s.Host, s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithSlowRequestThreshold(s.SlowRequest),
		xhttp.WithPrometheus(prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	}
	if len(s.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORSOrigins(s.CORSOrigins))
	}
	return xhttp.NewServer(l.With("http"), []xhttp.Handler{h}, opts...)
}

func ProvideApp(cfg *config.Config, l *logger.Logger, c server.Components) *server.App {
	return server.New(cfg, l, c)
}

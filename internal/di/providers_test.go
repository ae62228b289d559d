package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	internalrepo "Argo/internal/repository"
	"Argo/internal/services/analytics"
	"Argo/internal/services/consensus"
	"Argo/internal/services/sources"
	"Argo/pkg/config"
	"Argo/pkg/logger"
)

const testConfig = `
environment: test
server:
  port: 18080
logging:
  level: error
engine:
  symbols: [BTCUSDT, AAPL]
  interval: 10s
  cycle_timeout: 5s
sources:
  - {id: momentum, kind: market_data, weight: 0.5}
  - {id: ta, kind: technical, weight: 0.3}
  - {id: news, kind: sentiment, weight: 0.2, url: "http://127.0.0.1:1"}
  - {id: model, kind: ai_model, weight: 0.1, url: "http://127.0.0.1:1", disabled: true}
store:
  backend: memory
cache:
  backend: memory
prices:
  provider: http
  url: "http://127.0.0.1:1"
`

func testCfg(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	return cfg
}

func TestOpinionFetcher_ByKind(t *testing.T) {
	cases := map[string]interface{}{
		"market_data": &sources.MomentumFetcher{},
		"technical":   &sources.TechnicalFetcher{},
		"sentiment":   &analytics.HTTPOpinionClient{},
		"ai_model":    &analytics.HTTPEdgeScorer{},
	}
	for kind, want := range cases {
		f := opinionFetcher(config.SourceConfig{ID: "x", Kind: kind, URL: "http://127.0.0.1:1"})
		assert.IsType(t, want, f, kind)
		assert.Equal(t, "x", f.SourceID())
	}
}

func TestRegimeTable_FallsBackToDefault(t *testing.T) {
	cfg := testCfg(t)
	assert.Equal(t, consensus.DefaultRegimeWeightTable(), regimeTable(cfg))

	cfg.RegimeWeights = map[string]map[string]float64{"TRENDING": {"ta": 1.4}}
	table := regimeTable(cfg)
	assert.Equal(t, 1.4, table[models.RegimeTrending]["ta"])
	assert.Len(t, table, 1)
}

func TestProvideEngine_UsesEnabledSourcesOnly(t *testing.T) {
	engine, err := ProvideEngine(testCfg(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"momentum", "news", "ta"}, engine.SourceIDs())
}

func TestProvideSignalPublisher_NopWithoutBroker(t *testing.T) {
	assert.IsType(t, internalrepo.NopSignalPublisher{}, ProvideSignalPublisher(testCfg(t), nil))
}

func TestProvideOptionalParts_NilWhenUnconfigured(t *testing.T) {
	cfg := testCfg(t)
	l := logger.Nop()

	producer, cleanup, err := ProvideKafkaProducer(cfg, l)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, producer)

	consumer, err := ProvideKafkaConsumer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	ch, cleanup, err := ProvideClickHouseClient(context.Background(), cfg, l)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, ch)

	assert.Nil(t, ProvideTickStream(cfg, l))
	assert.Nil(t, ProvidePriceCollector(cfg, nil, nil, nil, l))
	assert.Nil(t, ProvideKafkaTicksHandler(cfg, nil, nil))
}

func TestProvideOpinionSources_OnePerEnabledSource(t *testing.T) {
	cfg := testCfg(t)
	l := logger.Nop()
	srcs := ProvideOpinionSources(cfg, nil, ProvideSourceLimiter(cfg), ProvideBreakers(cfg, nopMetrics{}, l), ProvideHealthTracker(), nil, l)

	ids := make([]string, len(srcs))
	for i, s := range srcs {
		ids[i] = s.SourceID()
	}
	assert.Equal(t, []string{"momentum", "ta", "news"}, ids)
}

// InitializeApp registers collectors on the default Prometheus registry, so it
// is exercised once per test binary.
func TestInitializeApp_MemoryBackends(t *testing.T) {
	app, cleanup, err := InitializeApp(context.Background(), testCfg(t))
	require.NoError(t, err)
	require.NotNil(t, app)
	cleanup()
}

type nopMetrics struct{}

func (nopMetrics) RecordSourceFetch(string, string, float64) {}
func (nopMetrics) RecordCacheLookup(string, bool)            {}
func (nopMetrics) RecordBreakerState(string, int)            {}
func (nopMetrics) RecordCycle(float64, map[string]int)       {}
func (nopMetrics) RecordSignal(string, string)               {}
func (nopMetrics) RecordSignalsLost(int)                     {}
func (nopMetrics) RecordOutcome(string)                      {}
func (nopMetrics) RecordLastPrice(string, float64)           {}
func (nopMetrics) RecordError(string)                        {}

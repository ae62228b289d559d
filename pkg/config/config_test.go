package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
engine:
  symbols: [BTCUSDT, AAPL]
sources:
  - {id: market_data, kind: market_data, weight: 0.6}
  - {id: sentiment, kind: sentiment, weight: 0.4, url: "http://sentiment:8001"}
prices:
  url: http://prices:8000
`

func TestParse_FillsDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, time.Minute, c.Engine.Interval)
	assert.Equal(t, 75.0, c.Engine.Threshold)
	assert.Equal(t, 0.005, c.Engine.SkipPriceMove)
	assert.Equal(t, "clickhouse", c.Store.Backend)
	assert.Equal(t, 2*time.Second, c.Store.MaxLatency)
	assert.Equal(t, 720*time.Hour, c.Outcomes.Horizon)
	assert.Equal(t, "5m", c.Prices.Timeframe)
	assert.Equal(t, 0.03, c.Risk.StopPct)

	require.Len(t, c.Sources, 2)
	assert.Equal(t, 30*time.Second, c.Sources[0].CacheTTL)
	assert.Equal(t, 5, c.Sources[1].Breaker.FailureThreshold)
	assert.Equal(t, map[string]float64{"market_data": 0.6, "sentiment": 0.4}, c.SourceWeights())
	assert.Equal(t, []string{"BTCUSDT", "AAPL"}, c.TickerSymbols())
	assert.False(t, c.Kafka.Enabled())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("ARGO_SYMBOLS", "ETHUSDT, SOLUSDT")
	t.Setenv("ARGO_STORE_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FINNHUB_API_KEY", "secret")
	t.Setenv("ARGO_MAX_TICK_RPS", "25")

	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, c.Engine.Symbols)
	assert.Equal(t, "memory", c.Store.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Finnhub.Enabled())
	assert.Equal(t, 25, c.Prices.MaxTickRPS)
}

func TestParse_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"weights do not sum to one": `
engine: {symbols: [X]}
prices: {url: "http://p"}
sources:
  - {id: a, kind: market_data, weight: 0.5}
  - {id: b, kind: technical, weight: 0.3}
`,
		"duplicate source": `
engine: {symbols: [X]}
prices: {url: "http://p"}
sources:
  - {id: a, kind: market_data, weight: 0.5}
  - {id: a, kind: technical, weight: 0.5}
`,
		"remote source without url": `
engine: {symbols: [X]}
prices: {url: "http://p"}
sources:
  - {id: a, kind: sentiment, weight: 1}
`,
		"unknown regime": `
engine: {symbols: [X], min_sources: 1}
prices: {url: "http://p"}
sources:
  - {id: a, kind: market_data, weight: 1}
regime_weights:
  SIDEWAYS: {a: 1.1}
`,
		"no symbols": `
prices: {url: "http://p"}
sources:
  - {id: a, kind: market_data, weight: 1}
`,
		"postgres without dsn": `
engine: {symbols: [X], min_sources: 1}
prices: {url: "http://p"}
store: {backend: postgres}
sources:
  - {id: a, kind: market_data, weight: 1}
`,
		"min sources above enabled": `
engine: {symbols: [X], min_sources: 3}
prices: {url: "http://p"}
sources:
  - {id: a, kind: market_data, weight: 0.5}
  - {id: b, kind: technical, weight: 0.5}
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("config/config.yaml not present")
	}
	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.EnabledSources(), 4)
	assert.Equal(t, 1.2, c.RegimeWeights["TRENDING"]["market_data"])
}

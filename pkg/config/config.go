package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"Argo/pkg/util"
)

// Config is the root of the YAML configuration.
type Config struct {
	Environment   string                        `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server        ServerConfig                  `yaml:"server"`
	Logging       LoggingConfig                 `yaml:"logging"`
	Engine        EngineConfig                  `yaml:"engine"`
	Sources       []SourceConfig                `yaml:"sources" validate:"min=1,dive"`
	RegimeWeights map[string]map[string]float64 `yaml:"regime_weights"`
	Regime        RegimeConfig                  `yaml:"regime"`
	Risk          RiskConfig                    `yaml:"risk"`
	Calibration   CalibrationConfig             `yaml:"calibration"`
	Outcomes      OutcomesConfig                `yaml:"outcomes"`
	Store         StoreConfig                   `yaml:"store"`
	Cache         CacheConfig                   `yaml:"cache"`
	Prices        PricesConfig                  `yaml:"prices"`
	ClickHouse    ClickHouseConfig              `yaml:"clickhouse"`
	Postgres      PostgresConfig                `yaml:"postgres"`
	Redis         RedisConfig                   `yaml:"redis"`
	Kafka         KafkaConfig                   `yaml:"kafka"`
	Finnhub       FinnhubConfig                 `yaml:"finnhub"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	// per client address on the read API
	ClientRPS   float64 `yaml:"client_rps" default:"20" validate:"gt=0"`
	ClientBurst int     `yaml:"client_burst" default:"40" validate:"gte=1"`
}

type LoggingConfig struct {
	Level             string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format            string        `yaml:"format" default:"json" validate:"oneof=json console"`
	Output            string        `yaml:"output" default:"stdout"`
	CollectorTopic    string        `yaml:"collector_topic"`
	CollectorInterval time.Duration `yaml:"collector_interval" default:"30s"`
}

// EngineConfig tunes the consensus cycle.
type EngineConfig struct {
	Symbols       []string      `yaml:"symbols" validate:"min=1,dive,required"`
	Interval      time.Duration `yaml:"interval" default:"60s" validate:"gte=1s"`
	CycleTimeout  time.Duration `yaml:"cycle_timeout" default:"45s" validate:"gte=100ms"`
	SourceTimeout time.Duration `yaml:"source_timeout" default:"5s" validate:"gte=10ms"`
	MaxConcurrent int           `yaml:"max_concurrent" default:"8" validate:"gte=1"`
	MinSources    int           `yaml:"min_sources" default:"2" validate:"gte=1"`
	Threshold     float64       `yaml:"threshold" default:"75" validate:"gt=0,lte=100"`
	// early exit is on unless disabled
	DisableEarlyExit bool          `yaml:"disable_early_exit"`
	SkipMaxAge       time.Duration `yaml:"skip_max_age" default:"15m"`
	SkipPriceMove    float64       `yaml:"skip_price_move" default:"0.005" validate:"gte=0,lt=1"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" default:"5" validate:"gt=0"`
	Burst int     `yaml:"burst" default:"10" validate:"gte=1"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" default:"5" validate:"gte=1"`
	SuccessThreshold int           `yaml:"success_threshold" default:"2" validate:"gte=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" default:"30s" validate:"gt=0"`
}

// SourceConfig describes one signal source.
type SourceConfig struct {
	ID        string          `yaml:"id" validate:"required"`
	Kind      string          `yaml:"kind" validate:"oneof=market_data technical sentiment ai_model"`
	Weight    float64         `yaml:"weight" validate:"gt=0,lte=1"`
	Disabled  bool            `yaml:"disabled"`
	URL       string          `yaml:"url" validate:"omitempty,url"`
	APIKey    string          `yaml:"api_key"`
	Horizon   string          `yaml:"horizon" default:"15m"`
	Timeout   time.Duration   `yaml:"timeout" default:"5s"`
	CacheTTL  time.Duration   `yaml:"cache_ttl" default:"30s"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
}

// NeedsURL reports whether the source kind talks to a remote service.
func (s SourceConfig) NeedsURL() bool {
	return s.Kind == "sentiment" || s.Kind == "ai_model"
}

type RegimeConfig struct {
	ServiceURL     string        `yaml:"service_url" validate:"omitempty,url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout" default:"3s"`
	HighVolatility float64       `yaml:"high_volatility" default:"0.8" validate:"gt=0"`
	TrendingER     float64       `yaml:"trending_er" default:"0.35" validate:"gt=0,lte=1"`
	ChoppyER       float64       `yaml:"choppy_er" default:"0.15" validate:"gte=0,lte=1"`
	MinBars        int           `yaml:"min_bars" default:"30" validate:"gte=3"`
}

type RiskConfig struct {
	StopPct   float64 `yaml:"stop_pct" default:"0.03" validate:"gt=0,lt=1"`
	TargetPct float64 `yaml:"target_pct" default:"0.05" validate:"gt=0,lt=1"`
}

type CalibrationConfig struct {
	MinSamplesPerSymbol int           `yaml:"min_samples_per_symbol" default:"30" validate:"gte=1"`
	MinSamplesGlobal    int           `yaml:"min_samples_global" default:"50" validate:"gte=1"`
	BucketWidth         float64       `yaml:"bucket_width" default:"5" validate:"gt=0,lte=50"`
	Lookback            time.Duration `yaml:"lookback" default:"2160h"`
	Interval            time.Duration `yaml:"interval" default:"6h"`
}

type OutcomesConfig struct {
	Interval  time.Duration `yaml:"interval" default:"5m" validate:"gte=1s"`
	Horizon   time.Duration `yaml:"horizon" default:"720h" validate:"gte=1m"`
	LockTTL   time.Duration `yaml:"lock_ttl" default:"4m"`
	ScanLimit int           `yaml:"scan_limit" default:"5000" validate:"gte=1,lte=5000"`
}

// StoreConfig selects and tunes the signal store.
type StoreConfig struct {
	Backend       string        `yaml:"backend" default:"clickhouse" validate:"oneof=clickhouse postgres memory"`
	BatchSize     int           `yaml:"batch_size" default:"100" validate:"gte=1,lte=1000"`
	MaxLatency    time.Duration `yaml:"max_latency" default:"2s" validate:"gte=10ms"`
	MaxRetries    int           `yaml:"max_retries" default:"3" validate:"gte=1"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" default:"200ms"`
	QueueCapacity int           `yaml:"queue_capacity" default:"10000"`
	WriteTimeout  time.Duration `yaml:"write_timeout" default:"10s"`
	// EventsTopic receives signal.created and signal.resolved when Kafka is configured.
	EventsTopic string `yaml:"events_topic" default:"argo.signals"`
}

type CacheConfig struct {
	Backend             string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
	DefaultTTL          time.Duration `yaml:"default_ttl" default:"30s"`
	MaxSize             int           `yaml:"max_size" default:"10000" validate:"gte=1"`
	L1Size              int           `yaml:"l1_size" default:"2000"`
	L1TTL               time.Duration `yaml:"l1_ttl" default:"5s"`
	OffHoursMultiplier  float64       `yaml:"off_hours_multiplier" default:"15" validate:"gte=1,lte=15"`
	VolatilityReference float64       `yaml:"volatility_reference" default:"0.3" validate:"gte=0"`
	Floor               time.Duration `yaml:"floor" default:"5s"`
}

type PricesConfig struct {
	Provider  string          `yaml:"provider" default:"http" validate:"oneof=http clickhouse"`
	URL       string          `yaml:"url" validate:"omitempty,url"`
	APIKey    string          `yaml:"api_key"`
	Timeout   time.Duration   `yaml:"timeout" default:"5s"`
	Lookback  int             `yaml:"lookback" default:"120" validate:"gte=30"`
	Timeframe string          `yaml:"timeframe" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
	CacheTTL  time.Duration   `yaml:"cache_ttl" default:"30s"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	// MaxTickRPS throttles live ticks per symbol before the price book; 0 disables.
	MaxTickRPS int `yaml:"max_tick_rps" default:"10" validate:"gte=0,lte=1000"`
}

// ClickHouseConfig holds clickhouse connection settings.
type ClickHouseConfig struct {
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"argo"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	AsyncInsert  bool          `yaml:"async_insert"`
	WaitForAsync bool          `yaml:"wait_for_async_insert"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxConns     int32         `yaml:"max_conns" default:"10"`
	MinConns     int32         `yaml:"min_conns" default:"2"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" default:"30m"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" default:"localhost:6379"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size" default:"10"`
	MinIdleConns int    `yaml:"min_idle_conns" default:"2"`
	Prefix       string `yaml:"prefix" default:"argo"`
}

// KafkaConfig configures signal publishing and tick consumption.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
	// TicksTopic, when set, feeds {symbol,t,c,v} price ticks into the price book.
	TicksTopic string              `yaml:"ticks_topic"`
	Consumer   KafkaConsumerConfig `yaml:"consumer"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"argo"`
	Workers    int           `yaml:"workers" default:"2"`
	BufferSize int           `yaml:"buffer_size" default:"256"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
	DLQTopic   string        `yaml:"dlq_topic"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type FinnhubConfig struct {
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	Symbols        []string      `yaml:"symbols"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
}

// Enabled reports whether an API key is set.
func (f FinnhubConfig) Enabled() bool { return f.APIKey != "" }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads YAML, fills defaults, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and environment overrides, then validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	for i := range c.Sources {
		if err := defaults.Set(&c.Sources[i]); err != nil {
			return nil, fmt.Errorf("config defaults for source %d: %w", i, err)
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ARGO_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("ARGO_SYMBOLS"); v != "" {
		c.Engine.Symbols = util.SplitCSV(v)
	}
	if v := os.Getenv("ARGO_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	c.Prices.MaxTickRPS = util.ParseIntDefault(os.Getenv("ARGO_MAX_TICK_RPS"), c.Prices.MaxTickRPS)
}

var regimeLabels = map[string]bool{"NEUTRAL": true, "TRENDING": true, "CHOPPY": true, "HIGH_VOLATILITY": true}

// Validate runs field tags first, then the checks that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	seen := map[string]bool{}
	var sum float64
	enabled := 0
	for _, s := range c.Sources {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("sources: duplicate id %q", s.ID))
		}
		seen[s.ID] = true
		if s.Disabled {
			continue
		}
		enabled++
		sum += s.Weight
		if s.NeedsURL() && s.URL == "" {
			errs = append(errs, fmt.Errorf("sources.%s: url is required for kind %s", s.ID, s.Kind))
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("sources: at least one source must be enabled"))
	} else if math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("sources: enabled weights sum to %.6f, want 1.0", sum))
	}
	if c.Engine.MinSources > enabled {
		errs = append(errs, fmt.Errorf("engine.min_sources %d exceeds %d enabled sources", c.Engine.MinSources, enabled))
	}
	if c.Engine.CycleTimeout > c.Engine.Interval {
		errs = append(errs, fmt.Errorf("engine.cycle_timeout %s exceeds interval %s", c.Engine.CycleTimeout, c.Engine.Interval))
	}

	for label, mults := range c.RegimeWeights {
		if !regimeLabels[label] {
			errs = append(errs, fmt.Errorf("regime_weights: unknown regime %q", label))
		}
		for id, m := range mults {
			if !seen[id] {
				errs = append(errs, fmt.Errorf("regime_weights.%s: unknown source %q", label, id))
			}
			if m <= 0 {
				errs = append(errs, fmt.Errorf("regime_weights.%s.%s: multiplier must be positive", label, id))
			}
		}
	}

	if c.Regime.ChoppyER >= c.Regime.TrendingER {
		errs = append(errs, errors.New("regime: choppy_er must be below trending_er"))
	}
	if c.Prices.Provider == "http" && c.Prices.URL == "" {
		errs = append(errs, errors.New("prices.url is required for the http provider"))
	}
	if c.Store.Backend == "postgres" && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required for the postgres store"))
	}
	if c.Cache.Backend != "memory" && c.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("redis.addr is required for the %s cache", c.Cache.Backend))
	}
	if c.Logging.CollectorTopic != "" && !c.Kafka.Enabled() {
		errs = append(errs, errors.New("logging.collector_topic needs kafka.brokers"))
	}
	if c.Kafka.TicksTopic != "" && !c.Kafka.Enabled() {
		errs = append(errs, errors.New("kafka.ticks_topic needs kafka.brokers"))
	}
	return errors.Join(errs...)
}

// EnabledSources returns sources in configuration order, disabled ones skipped.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// SourceWeights returns base weights keyed by source name.
func (c *Config) SourceWeights() map[string]float64 {
	w := make(map[string]float64, len(c.Sources))
	for _, s := range c.EnabledSources() {
		w[s.ID] = s.Weight
	}
	return w
}

// TickerSymbols is what the live price stream subscribes to.
func (c *Config) TickerSymbols() []string {
	if len(c.Finnhub.Symbols) > 0 {
		return c.Finnhub.Symbols
	}
	return c.Engine.Symbols
}

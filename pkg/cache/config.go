package cache

import "time"

// RedisOption configures a RedisCache.
type RedisOption func(*RedisConfig)

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	Prefix       string
}

// WithRedisAddr sets redis address.
func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

// WithRedisPassword sets redis password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

// WithRedisDB sets redis database index.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

// WithRedisPool sets connection pool sizes.
func WithRedisPool(poolSize, minIdleConns int) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
	}
}

// WithRedisPrefix namespaces every key as "<prefix>:<key>".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
	// SweepLimit bounds how many entries one cleanup tick inspects.
	SweepLimit int
	Now        func() time.Time
}

// WithMemoryMaxSize sets maximum number of entries.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

// WithMemoryCleanup sets sweep interval and entries checked per sweep.
func WithMemoryCleanup(interval time.Duration, sweepLimit int) MemoryOption {
	return func(c *MemoryConfig) {
		c.CleanupInterval = interval
		c.SweepLimit = sweepLimit
	}
}

// WithMemoryClock overrides time source, for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) { c.Now = now }
}

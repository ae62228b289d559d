package repository

import (
	"context"

	"Argo/internal/domain/models"
)

// SignalRepository is the durable, append-only signal log. Implementations
// must serve range scans on (symbol, created_at), (symbol, outcome) and
// (created_at, outcome) from an index.
type SignalRepository interface {
	Init(ctx context.Context) error
	InsertBatch(ctx context.Context, signals []models.Signal) error
	// SaveResolution persists a resolved signal. Resolving an already closed
	// signal is a no-op that reports applied=false.
	SaveResolution(ctx context.Context, s models.Signal) (applied bool, err error)
	Query(ctx context.Context, f models.SignalFilter) ([]models.Signal, error)
	GetByID(ctx context.Context, id string) (models.Signal, error)
	Health(ctx context.Context) error
	Close() error
}

// SignalPublisher streams signal lifecycle events to downstream consumers.
type SignalPublisher interface {
	PublishCreated(ctx context.Context, signals []models.Signal) error
	PublishResolved(ctx context.Context, s models.Signal) error
	Close() error
}

// TickStream is a live trade feed.
type TickStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics is the observability port; pkg/metrics provides the Prometheus implementation.
type Metrics interface {
	RecordSourceFetch(source, result string, seconds float64)
	RecordCacheLookup(namespace string, hit bool)
	RecordBreakerState(source string, state int)
	RecordCycle(seconds float64, results map[string]int)
	RecordSignal(symbol, result string)
	RecordSignalsLost(n int)
	RecordOutcome(outcome string)
	RecordLastPrice(symbol string, price float64)
	RecordError(kind string)
}

// LatestPrices is the last traded price per symbol, fed by live streams.
type LatestPrices interface {
	Last(symbol string) (models.Tick, bool)
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	"Argo/internal/repository"
)

type recordingPublisher struct {
	mu       sync.Mutex
	created  [][]models.Signal
	resolved []models.Signal
	err      error
}

func (p *recordingPublisher) PublishCreated(_ context.Context, signals []models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, append([]models.Signal(nil), signals...))
	return p.err
}

func (p *recordingPublisher) PublishResolved(_ context.Context, s models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) resolvedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resolved)
}

func openSignal(id, symbol string, dir models.Direction, entry, stop, target float64, created time.Time) models.Signal {
	s := models.Signal{
		ID:                   id,
		Symbol:               symbol,
		Direction:            dir,
		EntryPrice:           entry,
		StopPrice:            stop,
		TargetPrice:          target,
		RawConfidence:        80,
		CalibratedConfidence: 80,
		Regime:               models.RegimeNeutral,
		CreatedAt:            created.UTC().Truncate(time.Millisecond),
		Status:               models.StatusOpen,
	}
	s.ContentHash = models.ComputeContentHash(s)
	return s
}

func storedCount(t *testing.T, repo *repository.MemorySignalRepository) int {
	t.Helper()
	all, err := repo.Query(context.Background(), models.SignalFilter{})
	require.NoError(t, err)
	return len(all)
}

func TestSignalStore_FlushWritesAndPublishes(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	pub := &recordingPublisher{}
	store := NewSignalStore(SignalStoreConfig{BatchSize: 2, MaxLatency: time.Hour}, repo, pub, "memory", nil, nil)
	now := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(openSignal(id, "BTCUSDT", models.DirectionLong, 100, 97, 105, now.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, store.Flush(context.Background()))

	assert.Equal(t, 3, storedCount(t, repo))
	require.Len(t, pub.created, 2)
	assert.Len(t, pub.created[0], 2)
	assert.Len(t, pub.created[1], 1)

	stats := store.Stats(context.Background())
	assert.Equal(t, int64(3), stats.Written)
	assert.Equal(t, 0, stats.Pending)
	assert.True(t, stats.Reachable)
}

func TestSignalStore_QueuedSignalsAreReadable(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	store := NewSignalStore(SignalStoreConfig{BatchSize: 50, MaxLatency: time.Hour}, repo, nil, "memory", nil, nil)
	now := time.Now()

	older := openSignal("old", "BTCUSDT", models.DirectionLong, 100, 97, 105, now.Add(-time.Minute))
	require.NoError(t, repo.InsertBatch(context.Background(), []models.Signal{older}))
	require.NoError(t, store.Append(openSignal("new", "BTCUSDT", models.DirectionShort, 100, 103, 95, now)))

	got, err := store.Query(context.Background(), models.SignalFilter{Symbol: "BTCUSDT", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)

	s, err := store.GetByID(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionShort, s.Direction)

	_, err = store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrSignalNotFound)
}

func TestSignalStore_DropsBatchAfterRetries(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	repo.SetFailure(errors.New("disk full"))
	store := NewSignalStore(SignalStoreConfig{BatchSize: 10, MaxLatency: time.Hour, MaxRetries: 2}, repo, nil, "memory", nil, nil)

	require.NoError(t, store.Append(openSignal("a", "BTCUSDT", models.DirectionLong, 100, 97, 105, time.Now())))
	require.NoError(t, store.Append(openSignal("b", "ETHUSDT", models.DirectionLong, 100, 97, 105, time.Now())))

	err := store.Flush(context.Background())
	require.Error(t, err)

	stats := store.Stats(context.Background())
	assert.Equal(t, int64(2), stats.Lost)
	assert.Equal(t, int64(1), stats.FailedFlushes)
	assert.Equal(t, 0, stats.Pending)
	assert.False(t, stats.Reachable)
	assert.Contains(t, stats.LastError, "disk full")

	repo.SetFailure(nil)
	assert.Equal(t, 0, storedCount(t, repo))
}

func TestSignalStore_RejectsWhenQueueFull(t *testing.T) {
	store := NewSignalStore(SignalStoreConfig{BatchSize: 2, MaxLatency: time.Hour, QueueCapacity: 2}, repository.NewMemorySignalRepository(), nil, "memory", nil, nil)

	require.NoError(t, store.Append(openSignal("a", "X", models.DirectionLong, 100, 97, 105, time.Now())))
	require.NoError(t, store.Append(openSignal("b", "X", models.DirectionLong, 100, 97, 105, time.Now())))
	assert.ErrorIs(t, store.Append(openSignal("c", "X", models.DirectionLong, 100, 97, 105, time.Now())), ErrStoreFull)
	assert.Equal(t, int64(1), store.Stats(context.Background()).Lost)
}

func TestSignalStore_FlushesFullBatchInBackground(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	store := NewSignalStore(SignalStoreConfig{BatchSize: 2, MaxLatency: time.Hour}, repo, nil, "memory", nil, nil)
	store.Start(context.Background())
	defer store.Close(context.Background())

	require.NoError(t, store.Append(openSignal("a", "X", models.DirectionLong, 100, 97, 105, time.Now())))
	require.NoError(t, store.Append(openSignal("b", "X", models.DirectionLong, 100, 97, 105, time.Now())))

	require.Eventually(t, func() bool { return storedCount(t, repo) == 2 }, time.Second, 5*time.Millisecond)
}

func TestSignalStore_FlushesAfterMaxLatency(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	store := NewSignalStore(SignalStoreConfig{BatchSize: 100, MaxLatency: 20 * time.Millisecond}, repo, nil, "memory", nil, nil)
	store.Start(context.Background())
	defer store.Close(context.Background())

	require.NoError(t, store.Append(openSignal("a", "X", models.DirectionLong, 100, 97, 105, time.Now())))

	require.Eventually(t, func() bool { return storedCount(t, repo) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSignalStore_CloseFlushesRemaining(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	store := NewSignalStore(SignalStoreConfig{BatchSize: 100, MaxLatency: time.Hour}, repo, nil, "memory", nil, nil)
	store.Start(context.Background())

	require.NoError(t, store.Append(openSignal("a", "X", models.DirectionLong, 100, 97, 105, time.Now())))
	require.NoError(t, store.Close(context.Background()))

	assert.Equal(t, 1, storedCount(t, repo))
}

// gatedRepo blocks InsertBatch until release is closed.
type gatedRepo struct {
	*repository.MemorySignalRepository
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) InsertBatch(ctx context.Context, signals []models.Signal) error {
	close(r.entered)
	<-r.release
	return r.MemorySignalRepository.InsertBatch(ctx, signals)
}

func TestSignalStore_InFlightSignalsStayReadable(t *testing.T) {
	repo := &gatedRepo{
		MemorySignalRepository: repository.NewMemorySignalRepository(),
		entered:                make(chan struct{}),
		release:                make(chan struct{}),
	}
	store := NewSignalStore(SignalStoreConfig{BatchSize: 10, MaxLatency: time.Hour}, repo, nil, "memory", nil, nil)
	require.NoError(t, store.Append(openSignal("a", "BTCUSDT", models.DirectionLong, 100, 97, 105, time.Now())))

	done := make(chan error, 1)
	go func() { done <- store.Flush(context.Background()) }()
	<-repo.entered

	s, err := store.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", s.ID)
	got, err := store.Query(context.Background(), models.SignalFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, store.Stats(context.Background()).Pending)

	close(repo.release)
	require.NoError(t, <-done)

	got, err = store.Query(context.Background(), models.SignalFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 0, store.Stats(context.Background()).Pending)
}

func TestSignalStore_LatestOpenForgetsResolvedSignals(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	store := NewSignalStore(SignalStoreConfig{BatchSize: 10, MaxLatency: time.Hour}, repo, nil, "memory", nil, nil)
	ctx := context.Background()
	sig := openSignal("a", "BTCUSDT", models.DirectionLong, 100, 97, 105, time.Now().Add(-time.Minute))

	require.NoError(t, store.Append(sig))
	last, ok := store.LatestOpen(ctx, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "a", last.ID)

	require.NoError(t, store.Flush(ctx))
	_, ok = store.LatestOpen(ctx, "BTCUSDT")
	require.True(t, ok)

	closed, err := sig.Resolve(models.Resolution{Outcome: models.OutcomeLoss, ExitPrice: 97, ClosedAt: time.Now()})
	require.NoError(t, err)
	applied, err := repo.SaveResolution(ctx, closed)
	require.NoError(t, err)
	require.True(t, applied)

	_, ok = store.LatestOpen(ctx, "BTCUSDT")
	assert.False(t, ok)
}

func TestSignalStore_LatestOpenForgetsLostSignals(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	repo.SetFailure(errors.New("disk full"))
	store := NewSignalStore(SignalStoreConfig{BatchSize: 10, MaxLatency: time.Hour, MaxRetries: 1}, repo, nil, "memory", nil, nil)

	require.NoError(t, store.Append(openSignal("a", "BTCUSDT", models.DirectionLong, 100, 97, 105, time.Now())))
	require.Error(t, store.Flush(context.Background()))
	repo.SetFailure(nil)

	_, ok := store.LatestOpen(context.Background(), "BTCUSDT")
	assert.False(t, ok)
}

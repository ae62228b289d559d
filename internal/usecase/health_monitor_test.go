package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	"Argo/internal/repository"
	"Argo/internal/service/breaker"
	"Argo/internal/services/sources"
)

type fakeCycles struct {
	h        models.CycleHealth
	interval time.Duration
}

func (f fakeCycles) Stats() models.CycleHealth { return f.h }
func (f fakeCycles) Interval() time.Duration   { return f.interval }

func healthFixture(t *testing.T, cycles fakeCycles) (*HealthMonitor, *repository.MemorySignalRepository, *breaker.Registry) {
	t.Helper()
	tracker := sources.NewHealthTracker()
	tracker.RecordSuccess("technical", 20*time.Millisecond)
	tracker.RecordFailure("sentiment", errors.New("503"), 40*time.Millisecond)

	reg := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, nil, nil)
	reg.Get("technical")
	_ = reg.Get("sentiment").Call(func() error { return errors.New("503") })

	repo := repository.NewMemorySignalRepository()
	store := NewSignalStore(SignalStoreConfig{}, repo, nil, "memory", nil, nil)
	m := NewHealthMonitor(tracker, reg, nil, cycles, store, []string{"market_data", "sentiment", "technical"})
	return m, repo, reg
}

func TestHealthMonitor_ReportsSourcesAndBreakers(t *testing.T) {
	now := time.Now()
	m, _, _ := healthFixture(t, fakeCycles{h: models.CycleHealth{Cycles: 3, LastRunAt: now, AvgDurationMs: 120}, interval: time.Minute})

	snap := m.Snapshot(context.Background())

	assert.True(t, snap.Healthy)
	assert.Empty(t, snap.Reasons)
	require.Len(t, snap.Sources, 3)
	assert.Equal(t, "market_data", snap.Sources[0].SourceID)
	assert.Equal(t, "CLOSED", snap.Sources[0].BreakerState)
	assert.Equal(t, "sentiment", snap.Sources[1].SourceID)
	assert.Equal(t, "OPEN", snap.Sources[1].BreakerState)
	assert.Equal(t, int64(1), snap.Sources[1].Failures)
	assert.Equal(t, 1.0, snap.Sources[2].SuccessRate)
	assert.Equal(t, int64(3), snap.Cycle.Cycles)
	assert.Equal(t, "memory", snap.Store.Backend)
	assert.True(t, snap.Store.Reachable)
}

func TestHealthMonitor_UnreachableStoreIsUnhealthy(t *testing.T) {
	m, repo, _ := healthFixture(t, fakeCycles{interval: time.Minute})
	repo.SetFailure(errors.New("connection refused"))

	snap := m.Snapshot(context.Background())

	assert.False(t, snap.Healthy)
	assert.Contains(t, snap.Reasons, "signal store unreachable")
}

func TestHealthMonitor_StalledCycleIsUnhealthy(t *testing.T) {
	m, _, _ := healthFixture(t, fakeCycles{
		h:        models.CycleHealth{Cycles: 5, LastRunAt: time.Now().Add(-10 * time.Minute)},
		interval: time.Minute,
	})

	snap := m.Snapshot(context.Background())

	assert.False(t, snap.Healthy)
	require.Len(t, snap.Reasons, 1)
	assert.Contains(t, snap.Reasons[0], "no cycle since")
}

func TestHealthMonitor_AllBreakersOpenIsUnhealthy(t *testing.T) {
	m, _, reg := healthFixture(t, fakeCycles{interval: time.Minute})
	for _, id := range []string{"market_data", "technical"} {
		_ = reg.Get(id).Call(func() error { return errors.New("down") })
	}

	snap := m.Snapshot(context.Background())

	assert.False(t, snap.Healthy)
	assert.Contains(t, snap.Reasons, "all source breakers open")
}

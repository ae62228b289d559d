package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/service/breaker"
	"Argo/internal/service/cache"
	"Argo/internal/services/sources"
)

type CycleStatser interface {
	Stats() models.CycleHealth
	Interval() time.Duration
}

type StoreStatser interface {
	Stats(ctx context.Context) models.StoreHealth
}

// HealthMonitor assembles the monitoring snapshot. Only an unreachable store,
// a stalled cycle, or every breaker open marks the service unhealthy; single
// source failures show up in the per-source section only.
type HealthMonitor struct {
	tracker  *sources.HealthTracker
	breakers *breaker.Registry
	cache    *cache.AdaptiveCache
	cycles   CycleStatser
	store    StoreStatser
	sources  []string
	now      func() time.Time
}

func NewHealthMonitor(tracker *sources.HealthTracker, breakers *breaker.Registry, c *cache.AdaptiveCache, cycles CycleStatser, store StoreStatser, sourceIDs []string) *HealthMonitor {
	return &HealthMonitor{
		tracker:  tracker,
		breakers: breakers,
		cache:    c,
		cycles:   cycles,
		store:    store,
		sources:  sourceIDs,
		now:      time.Now,
	}
}

func (m *HealthMonitor) Snapshot(ctx context.Context) models.HealthSnapshot {
	snap := models.HealthSnapshot{GeneratedAt: m.now().UTC(), Healthy: true}

	byID := map[string]models.SourceHealth{}
	if m.tracker != nil {
		for _, sh := range m.tracker.Snapshot() {
			byID[sh.SourceID] = sh
		}
	}
	for _, id := range m.sources {
		if _, ok := byID[id]; !ok {
			byID[id] = models.SourceHealth{SourceID: id}
		}
	}

	var states map[string]breaker.State
	if m.breakers != nil {
		states = m.breakers.States()
	}
	open := 0
	for id, sh := range byID {
		st, ok := states[id]
		if !ok {
			st = breaker.StateClosed
		}
		sh.BreakerState = st.String()
		if st == breaker.StateOpen {
			open++
		}
		byID[id] = sh
	}
	for _, sh := range byID {
		snap.Sources = append(snap.Sources, sh)
	}
	sort.Slice(snap.Sources, func(i, j int) bool { return snap.Sources[i].SourceID < snap.Sources[j].SourceID })

	if m.cache != nil {
		snap.CacheHitRate = m.cache.HitRate()
	}

	if m.cycles != nil {
		snap.Cycle = m.cycles.Stats()
		limit := 3 * m.cycles.Interval()
		if snap.Cycle.Cycles > 0 && limit > 0 && m.now().Sub(snap.Cycle.LastRunAt) > limit {
			snap.Healthy = false
			snap.Reasons = append(snap.Reasons, fmt.Sprintf("no cycle since %s", snap.Cycle.LastRunAt.UTC().Format(time.RFC3339)))
		}
	}

	if m.store != nil {
		snap.Store = m.store.Stats(ctx)
		if !snap.Store.Reachable {
			snap.Healthy = false
			snap.Reasons = append(snap.Reasons, "signal store unreachable")
		}
	}

	if len(snap.Sources) > 0 && open == len(snap.Sources) {
		snap.Healthy = false
		snap.Reasons = append(snap.Reasons, "all source breakers open")
	}
	return snap
}

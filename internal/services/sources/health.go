package sources

import (
	"sort"
	"sync"
	"time"

	"Argo/internal/domain/models"
)

type sourceStats struct {
	successes     int64
	failures      int64
	shortCircuits int64
	cacheHits     int64
	totalLatency  time.Duration
	lastErr       string
	lastSuccessAt time.Time
}

// HealthTracker accumulates per-source fetch outcomes for monitoring. It is
// written by every guarded call and read only by health reporting.
type HealthTracker struct {
	mu    sync.Mutex
	stats map[string]*sourceStats
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{stats: make(map[string]*sourceStats)}
}

func (h *HealthTracker) get(source string) *sourceStats {
	s, ok := h.stats[source]
	if !ok {
		s = &sourceStats{}
		h.stats[source] = s
	}
	return s
}

func (h *HealthTracker) RecordSuccess(source string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(source)
	s.successes++
	s.totalLatency += latency
	s.lastSuccessAt = time.Now().UTC()
}

func (h *HealthTracker) RecordFailure(source string, err error, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(source)
	s.failures++
	s.totalLatency += latency
	if err != nil {
		s.lastErr = err.Error()
	}
}

func (h *HealthTracker) RecordShortCircuit(source string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.get(source).shortCircuits++
}

func (h *HealthTracker) RecordCacheHit(source string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.get(source).cacheHits++
}

// Snapshot returns one entry per source seen so far, sorted by id. Breaker
// state is left empty for the caller to fill.
func (h *HealthTracker) Snapshot() []models.SourceHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.SourceHealth, 0, len(h.stats))
	for id, s := range h.stats {
		sh := models.SourceHealth{
			SourceID:      id,
			Successes:     s.successes,
			Failures:      s.failures,
			ShortCircuits: s.shortCircuits,
			CacheHits:     s.cacheHits,
			LastError:     s.lastErr,
			LastSuccessAt: s.lastSuccessAt,
		}
		if calls := s.successes + s.failures; calls > 0 {
			sh.AvgLatencyMs = float64(s.totalLatency.Microseconds()) / 1000 / float64(calls)
		}
		if attempts := s.successes + s.failures + s.shortCircuits; attempts > 0 {
			sh.SuccessRate = float64(s.successes) / float64(attempts)
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

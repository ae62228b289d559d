package models

import "time"

type SourceHealth struct {
	SourceID      string    `json:"source_id"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
	ShortCircuits int64     `json:"short_circuits"`
	CacheHits     int64     `json:"cache_hits"`
	SuccessRate   float64   `json:"success_rate"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	BreakerState  string    `json:"breaker_state"`
	LastError     string    `json:"last_error,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
}

type StoreHealth struct {
	Backend       string `json:"backend"`
	Reachable     bool   `json:"reachable"`
	Pending       int    `json:"pending"`
	Written       int64  `json:"written"`
	Lost          int64  `json:"lost"`
	FailedFlushes int64  `json:"failed_flushes"`
	LastError     string `json:"last_error,omitempty"`
}

type CycleHealth struct {
	Cycles        int64     `json:"cycles"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	Published     int64     `json:"published"`
	Reused        int64     `json:"reused"`
	Failed        int64     `json:"failed"`
}

// HealthSnapshot is a plain read for external monitoring; nothing in the
// decision path consumes it.
type HealthSnapshot struct {
	Healthy      bool           `json:"healthy"`
	Reasons      []string       `json:"reasons,omitempty"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Sources      []SourceHealth `json:"sources"`
	CacheHitRate float64        `json:"cache_hit_rate"`
	Cycle        CycleHealth    `json:"cycle"`
	Store        StoreHealth    `json:"store"`
}

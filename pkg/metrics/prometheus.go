package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the domain Metrics port with Prometheus collectors.
type Recorder struct {
	sourceFetches *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
	cycleSymbols  *prometheus.CounterVec
	signals       *prometheus.CounterVec
	signalsLost   prometheus.Counter
	outcomes      *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		sourceFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argo_source_fetches_total",
			Help: "Upstream fetch attempts by source and result",
		}, []string{"source", "result"}),
		sourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argo_source_fetch_seconds",
			Help:    "Upstream fetch latency",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"source"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argo_cache_lookups_total",
			Help: "Adaptive cache lookups by namespace and result",
		}, []string{"namespace", "result"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "argo_circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half_open, 2=open)",
		}, []string{"source"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "argo_cycle_duration_seconds",
			Help:    "Orchestrator cycle duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10},
		}),
		cycleSymbols: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argo_cycle_symbols_total",
			Help: "Per-symbol task results across cycles",
		}, []string{"result"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argo_signals_total",
			Help: "Consensus decisions by symbol and result",
		}, []string{"symbol", "result"}),
		signalsLost: f.NewCounter(prometheus.CounterOpts{
			Name: "argo_signals_lost_total",
			Help: "Signals dropped after exhausting store write retries",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argo_signal_outcomes_total",
			Help: "Resolved signal outcomes",
		}, []string{"outcome"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "argo_last_price",
			Help: "Last observed price per symbol",
		}, []string{"symbol"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argo_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
	}
}

// RecordSourceFetch observes one source call.
func (r *Recorder) RecordSourceFetch(source, result string, seconds float64) {
	r.sourceFetches.WithLabelValues(source, result).Inc()
	if seconds > 0 {
		r.sourceLatency.WithLabelValues(source).Observe(seconds)
	}
}

func (r *Recorder) RecordCacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordBreakerState sets the breaker state gauge.
func (r *Recorder) RecordBreakerState(source string, state int) {
	r.breakerState.WithLabelValues(source).Set(float64(state))
}

// RecordCycle observes one consensus cycle.
func (r *Recorder) RecordCycle(seconds float64, results map[string]int) {
	r.cycleDuration.Observe(seconds)
	for result, n := range results {
		r.cycleSymbols.WithLabelValues(result).Add(float64(n))
	}
}

func (r *Recorder) RecordSignal(symbol, result string) {
	r.signals.WithLabelValues(symbol, result).Inc()
}

// RecordSignalsLost counts signals dropped by the store.
func (r *Recorder) RecordSignalsLost(n int) {
	r.signalsLost.Add(float64(n))
}

func (r *Recorder) RecordOutcome(outcome string) {
	r.outcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

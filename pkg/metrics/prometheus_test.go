package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordSourceFetch("sentiment", "error", 0.2)
	r.RecordSourceFetch("sentiment", "error", 0.1)
	r.RecordCacheLookup("opinion", true)
	r.RecordSignalsLost(3)
	r.RecordBreakerState("sentiment", 2)
	r.RecordCycle(0.4, map[string]int{"published": 2, "failed": 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sourceFetches.WithLabelValues("sentiment", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("opinion", "hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.signalsLost))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.breakerState.WithLabelValues("sentiment")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cycleSymbols.WithLabelValues("published")))
}

func TestNew_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

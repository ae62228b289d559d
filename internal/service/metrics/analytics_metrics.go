package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	xhttp "Argo/pkg/http"
)

var (
	once sync.Once

	AnalyticsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "argo",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Latency of calls to remote analytics services",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"endpoint"},
	)

	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "argo",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Failed remote analytics calls by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)
)

// Register adds the analytics collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyticsLatency, AnalyticsErrors)
	})
}

// ObserveCall records one remote call. Errors are labelled with the HTTP
// status when the service answered and "transport" when it did not.
func ObserveCall(endpoint string, took time.Duration, err error) {
	AnalyticsLatency.WithLabelValues(endpoint).Observe(took.Seconds())
	if err != nil {
		AnalyticsErrors.WithLabelValues(endpoint, errorStatus(err)).Inc()
	}
}

func errorStatus(err error) string {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.StatusCode)
	}
	return "transport"
}

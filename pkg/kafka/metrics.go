package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	producerMsgsTotal     *prometheus.CounterVec
	producerBytesTotal    *prometheus.CounterVec
	producerLatency       *prometheus.HistogramVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerResults       *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetMetricsRegisterer swaps the registerer used for producer and consumer metrics.
// Must be called before the first producer or consumer is built.
func SetMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		metricsRegisterer = reg
	}
}

func initMetrics() {
	metricsOnce.Do(func() {
		producerMsgsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "argo_kafka_producer_messages_total", Help: "Messages published to Kafka"},
			[]string{"topic", "compression", "result"},
		)
		producerBytesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "argo_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic"},
		)
		producerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "argo_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)
		consumerQueueDepth = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "argo_kafka_consumer_queue_depth", Help: "Messages waiting for a worker"},
			[]string{"topic"},
		)
		consumerHandleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "argo_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "argo_kafka_consumer_messages_total", Help: "Consumed messages by result"},
			[]string{"topic", "result"},
		)

		for _, c := range []prometheus.Collector{
			producerMsgsTotal, producerBytesTotal, producerLatency,
			consumerQueueDepth, consumerHandleLatency, consumerResults,
		} {
			if err := metricsRegisterer.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}

func observeProduce(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgsTotal.WithLabelValues(topic, comp, result).Add(float64(count))
	producerBytesTotal.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	pkgkafka "Argo/pkg/kafka"
	"Argo/pkg/util"
)

var errStreamClosed = errors.New("tick stream closed")

// KafkaTicksHandler feeds ticks from a Kafka topic into a TickSink.
// Message schema: {symbol, t, c, v} with t in unix seconds or milliseconds.
type KafkaTicksHandler struct {
	topic   string
	sink    TickSink
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, sink TickSink, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Symbol string          `json:"symbol"`
		T      json.RawMessage `json:"t"`
		C      float64         `json:"c"`
		V      float64         `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("tick_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	ts, ok := util.ParseTime(string(trimQuotes(m.T)))
	if !ok || m.Symbol == "" || m.C <= 0 {
		h.recordError("tick_invalid")
		return fmt.Errorf("invalid tick %q", b)
	}

	h.sink.Update(models.Tick{Symbol: m.Symbol, Price: m.C, Volume: m.V, Timestamp: ts})
	return nil
}

func (h *KafkaTicksHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

func trimQuotes(b []byte) []byte {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

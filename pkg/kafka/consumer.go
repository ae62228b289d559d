package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"Argo/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer fans messages from one reader per topic into a bounded worker pool.
// Offsets are committed after successful handling, or after a DLQ write when
// retries are exhausted.
type Consumer struct {
	cfg      *ConsumerConfig
	l        *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	msgChan  chan kafka.Message
	dlq      *kafka.Writer
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer creates a consumer group reader.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "argo",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers are required")
	}

	initMetrics()

	c := &Consumer{
		cfg:      cfg,
		l:        cfg.Logger,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		msgChan:  make(chan kafka.Message, cfg.BufferSize),
		stopChan: make(chan struct{}),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("kafka handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start begins reading and dispatching to workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker()
	}

	var readersWG sync.WaitGroup
	for topic, reader := range c.readers {
		readersWG.Add(1)
		go func(topic string, reader *kafka.Reader) {
			defer readersWG.Done()
			c.consume(topic, reader)
		}(topic, reader)
	}

	// Workers drain msgChan; close it only once every reader has stopped sending.
	go func() {
		readersWG.Wait()
		close(c.msgChan)
	}()

	c.l.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
	)
	return nil
}

// Stop waits for workers to drain or ctx to expire.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("kafka consumer: timeout waiting for workers: %w", ctx.Err())
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.l.Warn("kafka reader close failed", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.l.Warn("kafka dlq close failed", logger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) consume(topic string, reader *kafka.Reader) {
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.l.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			}
			continue
		}

		// blocking send applies backpressure to the reader
		select {
		case c.msgChan <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for msg := range c.msgChan {
		c.process(msg)
	}
}

func (c *Consumer) process(msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.l.Error("kafka handler panic", logger.String("topic", msg.Topic), logger.Any("panic", r))
			consumerResults.WithLabelValues(msg.Topic, "panic").Inc()
		}
		consumerHandleLatency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
	}()

	var err error
	for attempt := 1; ; attempt++ {
		err = handler.Handle(context.Background(), msg.Value)
		if err == nil || attempt > c.cfg.RetryMax {
			break
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return
		}
	}

	result := "ok"
	if err != nil {
		result = "failed"
		c.l.Error("kafka message handling failed",
			logger.String("topic", msg.Topic),
			logger.Int("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
			logger.Error(err),
		)
		if c.dlq == nil {
			consumerResults.WithLabelValues(msg.Topic, result).Inc()
			return
		}
		if dlqErr := c.dlq.WriteMessages(context.Background(), kafka.Message{
			Topic:   c.cfg.DLQTopic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.Topic)}},
		}); dlqErr != nil {
			c.l.Error("kafka dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(dlqErr))
			consumerResults.WithLabelValues(msg.Topic, result).Inc()
			return
		}
		result = "dead_lettered"
	}
	consumerResults.WithLabelValues(msg.Topic, result).Inc()

	if reader := c.readers[msg.Topic]; reader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.l.Warn("kafka commit failed", logger.String("topic", msg.Topic), logger.Error(err))
		}
		cancel()
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	// up to 50% jitter
	return exp - time.Duration(rand.Int63n(int64(exp)/2+1))
}

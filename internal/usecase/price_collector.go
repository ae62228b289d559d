package usecase

import (
	"context"
	"sync"

	"Argo/internal/domain/models"
	drepo "Argo/internal/domain/repository"
	"Argo/pkg/logger"
)

// PriceCollector pumps a live tick stream into a TickSink and reconnects
// when the stream drops.
type PriceCollector struct {
	stream  drepo.TickStream
	sink    TickSink
	symbols []string
	metrics drepo.Metrics
	l       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPriceCollector(stream drepo.TickStream, sink TickSink, symbols []string, metrics drepo.Metrics, l *logger.Logger) *PriceCollector {
	return &PriceCollector{stream: stream, sink: sink, symbols: symbols, metrics: metrics, l: l}
}

func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx, c.symbols); err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(ctx)
	}()
	return nil
}

func (c *PriceCollector) loop(ctx context.Context) {
	for ctx.Err() == nil {
		ticks, errs := c.stream.Read(ctx)
		if err := c.consume(ctx, ticks, errs); err != nil {
			if c.metrics != nil {
				c.metrics.RecordError("tick_stream")
			}
			c.l.Warn("tick stream dropped, reconnecting", logger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil && ctx.Err() == nil {
				c.l.Error("tick stream reconnect failed", logger.Error(rerr))
			}
		}
	}
}

func (c *PriceCollector) consume(ctx context.Context, ticks <-chan models.Tick, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
			errs = nil
		case t, ok := <-ticks:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if errs != nil {
					if err, ok := <-errs; ok && err != nil {
						return err
					}
				}
				return errStreamClosed
			}
			c.sink.Update(t)
		}
	}
}

func (c *PriceCollector) Shutdown(context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	c.wg.Wait()
	return err
}

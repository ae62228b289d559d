package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
)

// TickSink receives ticks that made it through the pipeline.
type TickSink interface {
	Update(t models.Tick) bool
}

// TickPipeline sits between the live feeds and the price book. It drops
// malformed ticks and throttles each symbol to maxRPS forwards per second.
// Throttled ticks are coalesced: the newest one per symbol is held and
// forwarded by the background flush, so the last price is never lost.
type TickPipeline struct {
	sink    TickSink
	metrics domrepo.Metrics
	maxRPS  int
	now     func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
	pending  map[string]models.Tick

	stopCh  chan struct{}
	done    chan struct{}
	started bool
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max forwards per second per symbol; zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *TickPipeline) { p.now = now }
}

func NewTickPipeline(sink TickSink, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:     sink,
		metrics:  metrics,
		maxRPS:   10,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
		pending:  make(map[string]models.Tick),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TickPipeline) gap() time.Duration {
	return time.Second / time.Duration(p.maxRPS)
}

// Start launches the background flush of coalesced ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.maxRPS == 0 {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.gap())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.Flush()
				return
			case <-p.stopCh:
				p.Flush()
				return
			case <-ticker.C:
				p.Flush()
			}
		}
	}()
}

// Stop halts the flush loop after forwarding whatever is still held.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
}

// Update reports whether the tick was forwarded or held for the next flush.
func (p *TickPipeline) Update(t models.Tick) bool {
	if err := validateTick(t); err != nil {
		p.recordError("pipeline_invalid_tick")
		return false
	}
	if p.maxRPS == 0 {
		return p.sink.Update(t)
	}

	now := p.now()
	p.mu.Lock()
	if last, ok := p.lastSent[t.Symbol]; ok && now.Sub(last) < p.gap() {
		if held, ok := p.pending[t.Symbol]; !ok || !t.Timestamp.Before(held.Timestamp) {
			p.pending[t.Symbol] = t
		}
		p.mu.Unlock()
		return true
	}
	p.lastSent[t.Symbol] = now
	delete(p.pending, t.Symbol)
	p.mu.Unlock()

	return p.sink.Update(t)
}

// Flush forwards held ticks whose symbol is out of its throttle window.
func (p *TickPipeline) Flush() {
	now := p.now()
	p.mu.Lock()
	var due []models.Tick
	for sym, t := range p.pending {
		if now.Sub(p.lastSent[sym]) >= p.gap() {
			due = append(due, t)
			p.lastSent[sym] = now
			delete(p.pending, sym)
		}
	}
	p.mu.Unlock()

	for _, t := range due {
		p.sink.Update(t)
	}
}

// Held is the number of symbols with a coalesced tick waiting.
func (p *TickPipeline) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *TickPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return errors.New("symbol empty")
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp missing")
	}
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return errors.New("price not positive")
	}
	if t.Volume < 0 {
		return errors.New("negative volume")
	}
	return nil
}

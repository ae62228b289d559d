package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	domsvc "Argo/internal/domain/service"
	"Argo/internal/services/consensus"
	"Argo/pkg/logger"
)

// MarketContextProvider builds the per-cycle market view of a symbol.
type MarketContextProvider interface {
	MarketContext(ctx context.Context, symbol string) (models.MarketContext, error)
	Volatility(symbol string) float64
	LatestPrice(symbol string) (float64, bool)
}

// OpinionSource is a guarded upstream. Fetch returns nil when the source has
// nothing usable this cycle.
type OpinionSource interface {
	SourceID() string
	Fetch(ctx context.Context, mc models.MarketContext) *models.SourceOpinion
}

type SignalBuilder interface {
	Build(res models.ConsensusResult, mc models.MarketContext) (models.Signal, error)
}

type SignalSink interface {
	Append(s models.Signal) error
	LatestOpen(ctx context.Context, symbol string) (models.Signal, bool)
}

// Per-symbol task results.
const (
	ResultPublished   = "published"
	ResultReused      = "reused"
	ResultNoConsensus = "no_consensus"
	ResultFailed      = "failed"
	ResultCancelled   = "cancelled"
)

type OrchestratorConfig struct {
	Symbols       []string
	Interval      time.Duration
	CycleTimeout  time.Duration
	SourceTimeout time.Duration
	MaxConcurrent int
	SkipMaxAge    time.Duration
	SkipPriceMove float64 // fraction, 0.005 = 0.5%
}

type SymbolResult struct {
	Symbol    string
	Result    string
	Signal    *models.Signal
	Consensus *models.ConsensusResult
	Err       error
	Duration  time.Duration
}

type CycleReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Order     []string
	Results   map[string]SymbolResult
}

// Count returns how many symbols ended with the given result.
func (r CycleReport) Count(result string) int {
	n := 0
	for _, sr := range r.Results {
		if sr.Result == result {
			n++
		}
	}
	return n
}

// Orchestrator drives the signal cycle: one task per symbol, bounded by a
// cycle deadline, with per-source fan-out feeding a consensus session.
type Orchestrator struct {
	cfg     OrchestratorConfig
	feed    MarketContextProvider
	sources []OpinionSource
	regime  domsvc.RegimeDetector
	engine  *consensus.Engine
	builder SignalBuilder
	sink    SignalSink
	metrics domrepo.Metrics
	l       *logger.Logger
	now     func() time.Time

	running atomic.Bool

	statsMu       sync.Mutex
	cycles        int64
	totalDuration time.Duration
	lastRunAt     time.Time
	published     int64
	reused        int64
	failed        int64
}

func NewOrchestrator(cfg OrchestratorConfig, feed MarketContextProvider, sources []OpinionSource, regime domsvc.RegimeDetector, engine *consensus.Engine, builder SignalBuilder, sink SignalSink, metrics domrepo.Metrics, l *logger.Logger) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.CycleTimeout <= 0 || cfg.CycleTimeout > cfg.Interval {
		cfg.CycleTimeout = cfg.Interval
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 5 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Orchestrator{
		cfg:     cfg,
		feed:    feed,
		sources: sources,
		regime:  regime,
		engine:  engine,
		builder: builder,
		sink:    sink,
		metrics: metrics,
		l:       l,
		now:     time.Now,
	}
}

// Run executes a cycle immediately and then every Interval until ctx ends.
// A cycle that overruns the interval delays the next tick instead of stacking.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.l.Info("orchestrator started",
		logger.Int("symbols", len(o.cfg.Symbols)),
		logger.Int("sources", len(o.sources)),
		logger.Duration("interval", o.cfg.Interval),
	)
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()
	for {
		o.RunCycle(ctx)
		select {
		case <-ctx.Done():
			o.l.Info("orchestrator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) Running() bool { return o.running.Load() }

// RunCycle processes every configured symbol once.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	o.running.Store(true)
	defer o.running.Store(false)

	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout)
	defer cancel()

	order := o.prioritize(o.cfg.Symbols)
	report := CycleReport{StartedAt: start, Order: order, Results: make(map[string]SymbolResult, len(order))}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrent)
	for _, symbol := range order {
		g.Go(func() error {
			t0 := time.Now()
			res := o.runSymbol(cctx, symbol)
			res.Duration = time.Since(t0)
			mu.Lock()
			report.Results[symbol] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = o.now().Sub(start)
	o.record(report)
	return report
}

// prioritize orders symbols by last known volatility, most volatile first.
func (o *Orchestrator) prioritize(symbols []string) []string {
	out := append([]string(nil), symbols...)
	vols := make(map[string]float64, len(out))
	for _, s := range out {
		vols[s] = o.feed.Volatility(s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if vols[out[i]] != vols[out[j]] {
			return vols[out[i]] > vols[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func (o *Orchestrator) runSymbol(ctx context.Context, symbol string) (res SymbolResult) {
	res.Symbol = symbol
	defer func() {
		if r := recover(); r != nil {
			res.Result = ResultFailed
			res.Err = fmt.Errorf("symbol %s panic: %v", symbol, r)
			o.l.Error("symbol task panic", logger.String("symbol", symbol), logger.Any("panic", r))
		}
		if o.metrics != nil {
			o.metrics.RecordSignal(symbol, res.Result)
		}
	}()

	if ctx.Err() != nil {
		res.Result = ResultCancelled
		return res
	}

	var mc models.MarketContext
	haveMC := false
	if last, ok := o.sink.LatestOpen(ctx, symbol); ok && o.fresh(last) {
		price, ok := o.feed.LatestPrice(symbol)
		if !ok {
			var err error
			if mc, err = o.feed.MarketContext(ctx, symbol); err != nil {
				return o.fail(ctx, res, err)
			}
			haveMC = true
			price = mc.Price
		}
		if moved(last.EntryPrice, price) < o.cfg.SkipPriceMove {
			res.Result = ResultReused
			res.Signal = &last
			return res
		}
	}

	if !haveMC {
		var err error
		if mc, err = o.feed.MarketContext(ctx, symbol); err != nil {
			return o.fail(ctx, res, err)
		}
	}

	regime := models.RegimeNeutral
	if o.regime != nil {
		if r, err := o.regime.Detect(ctx, mc); err == nil && r.Label.Valid() {
			regime = r.Label
		}
	}

	session := o.collect(ctx, symbol, regime, mc)
	if ctx.Err() != nil {
		res.Result = ResultCancelled
		return res
	}

	cr := session.Calculate()
	if cr == nil {
		ev := session.Evaluate()
		o.l.Debug("no consensus",
			logger.String("symbol", symbol),
			logger.String("direction", string(ev.Direction)),
			logger.Float64("confidence", ev.Confidence),
			logger.Bool("early_exit", session.ExitedEarly()),
			logger.Strings("sources", ev.ContributingSources),
		)
		res.Result = ResultNoConsensus
		return res
	}
	res.Consensus = cr

	sig, err := o.builder.Build(*cr, mc)
	if err != nil {
		return o.fail(ctx, res, err)
	}
	// a deadline that fired while building still discards the result
	if ctx.Err() != nil {
		res.Result = ResultCancelled
		return res
	}
	if err := o.sink.Append(sig); err != nil {
		return o.fail(ctx, res, err)
	}

	o.l.Info("signal published",
		logger.String("symbol", symbol),
		logger.String("id", sig.ID),
		logger.String("direction", string(sig.Direction)),
		logger.Float64("confidence", sig.RawConfidence),
		logger.Float64("calibrated", sig.CalibratedConfidence),
		logger.String("regime", string(sig.Regime)),
		logger.Bool("partial", cr.Partial),
	)
	res.Result = ResultPublished
	res.Signal = &sig
	return res
}

type arrival struct {
	source  string
	opinion *models.SourceOpinion
}

// collect fans out to every source and feeds answers to a consensus session
// as they land. Sources still running when the session is done are cancelled.
func (o *Orchestrator) collect(ctx context.Context, symbol string, regime models.RegimeLabel, mc models.MarketContext) *consensus.Session {
	session := o.engine.NewSession(symbol, regime)

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	arrivals := make(chan arrival, len(o.sources))
	for _, src := range o.sources {
		go func(src OpinionSource) {
			sctx, scancel := context.WithTimeout(fctx, o.cfg.SourceTimeout)
			defer scancel()
			arrivals <- arrival{source: src.SourceID(), opinion: src.Fetch(sctx, mc)}
		}(src)
	}

	for received := 0; received < len(o.sources) && !session.Done(); received++ {
		select {
		case <-ctx.Done():
			return session
		case a := <-arrivals:
			if a.opinion != nil {
				session.Add(*a.opinion)
			} else {
				session.MarkMissing(a.source)
			}
		}
	}

	// weighted sources without a live adapter, or stragglers past an early exit
	for _, id := range session.Pending() {
		if session.Done() {
			break
		}
		session.MarkMissing(id)
	}
	return session
}

func (o *Orchestrator) fresh(last models.Signal) bool {
	return o.cfg.SkipMaxAge > 0 && o.cfg.SkipPriceMove > 0 && o.now().Sub(last.CreatedAt) < o.cfg.SkipMaxAge
}

func moved(from, to float64) float64 {
	if from <= 0 {
		return math.Inf(1)
	}
	return math.Abs(to/from - 1)
}

func (o *Orchestrator) fail(ctx context.Context, res SymbolResult, err error) SymbolResult {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		res.Result = ResultCancelled
		return res
	}
	res.Result = ResultFailed
	res.Err = err
	o.l.Warn("symbol task failed", logger.String("symbol", res.Symbol), logger.Error(err))
	return res
}

func (o *Orchestrator) record(r CycleReport) {
	counts := map[string]int{
		ResultPublished:   r.Count(ResultPublished),
		ResultReused:      r.Count(ResultReused),
		ResultNoConsensus: r.Count(ResultNoConsensus),
		ResultFailed:      r.Count(ResultFailed),
		ResultCancelled:   r.Count(ResultCancelled),
	}

	o.statsMu.Lock()
	o.cycles++
	o.totalDuration += r.Duration
	o.lastRunAt = r.StartedAt
	o.published += int64(counts[ResultPublished])
	o.reused += int64(counts[ResultReused])
	o.failed += int64(counts[ResultFailed] + counts[ResultCancelled])
	o.statsMu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordCycle(r.Duration.Seconds(), counts)
	}
	o.l.Info("cycle finished",
		logger.Duration("duration", r.Duration),
		logger.Int("published", counts[ResultPublished]),
		logger.Int("reused", counts[ResultReused]),
		logger.Int("no_consensus", counts[ResultNoConsensus]),
		logger.Int("failed", counts[ResultFailed]),
		logger.Int("cancelled", counts[ResultCancelled]),
	)
}

func (o *Orchestrator) Stats() models.CycleHealth {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	h := models.CycleHealth{
		Cycles:    o.cycles,
		LastRunAt: o.lastRunAt,
		Published: o.published,
		Reused:    o.reused,
		Failed:    o.failed,
	}
	if o.cycles > 0 {
		h.AvgDurationMs = float64(o.totalDuration.Milliseconds()) / float64(o.cycles)
	}
	return h
}

func (o *Orchestrator) Interval() time.Duration { return o.cfg.Interval }

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	pkgcache "Argo/pkg/cache"
	"Argo/pkg/logger"
)

const outcomeLockKey = "outcomes:lock"

// Retrainer refreshes the calibration model after new outcomes land.
type Retrainer interface {
	Retrain(ctx context.Context) error
}

type OutcomeConfig struct {
	Interval  time.Duration
	Horizon   time.Duration
	Timeframe domrepo.Timeframe
	LockTTL   time.Duration
	ScanLimit int // page size; a pass pages through every OPEN signal
}

func DefaultOutcomeConfig() OutcomeConfig {
	return OutcomeConfig{
		Interval:  5 * time.Minute,
		Horizon:   30 * 24 * time.Hour,
		Timeframe: domrepo.TF5m,
		LockTTL:   4 * time.Minute,
		ScanLimit: 5000,
	}
}

type OutcomeReport struct {
	Scanned  int
	Won      int
	Lost     int
	Expired  int
	Skipped  int
	Errors   int
	LockHeld bool
}

func (r OutcomeReport) Resolved() int { return r.Won + r.Lost + r.Expired }

// OutcomeTracker resolves OPEN signals against the bars printed since they were
// created. It reads committed signals only and writes resolutions through the
// repository, so it never contends with the signal store's append path.
type OutcomeTracker struct {
	cfg       OutcomeConfig
	repo      domrepo.SignalRepository
	bars      domrepo.BarRangeProvider
	prices    domrepo.LatestPrices
	publisher domrepo.SignalPublisher
	retrainer Retrainer
	lock      pkgcache.Service
	metrics   domrepo.Metrics
	l         *logger.Logger
	now       func() time.Time
}

func NewOutcomeTracker(cfg OutcomeConfig, repo domrepo.SignalRepository, bars domrepo.BarRangeProvider, prices domrepo.LatestPrices, publisher domrepo.SignalPublisher, retrainer Retrainer, lock pkgcache.Service, metrics domrepo.Metrics, l *logger.Logger) *OutcomeTracker {
	def := DefaultOutcomeConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	if !domrepo.IsValidTimeframe(cfg.Timeframe) {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = def.ScanLimit
	}
	return &OutcomeTracker{
		cfg:       cfg,
		repo:      repo,
		bars:      bars,
		prices:    prices,
		publisher: publisher,
		retrainer: retrainer,
		lock:      lock,
		metrics:   metrics,
		l:         l,
		now:       time.Now,
	}
}

func (t *OutcomeTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := t.RunOnce(ctx); err != nil && ctx.Err() == nil {
			t.l.Error("outcome pass failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce scans every OPEN signal once. Only one replica runs a pass at a time.
func (t *OutcomeTracker) RunOnce(ctx context.Context) (OutcomeReport, error) {
	var rep OutcomeReport
	if t.lock != nil {
		ok, err := t.lock.TryLock(ctx, outcomeLockKey, t.cfg.LockTTL)
		if err != nil {
			return rep, fmt.Errorf("outcome lock: %w", err)
		}
		if !ok {
			rep.LockHeld = true
			t.l.Debug("outcome pass skipped, lock held elsewhere")
			return rep, nil
		}
		defer func() {
			if err := t.lock.Unlock(context.WithoutCancel(ctx), outcomeLockKey); err != nil {
				t.l.Warn("outcome unlock failed", logger.Error(err))
			}
		}()
	}

	now := t.now()
	page := models.SignalFilter{Status: models.StatusOpen, Limit: t.cfg.ScanLimit, OldestFirst: true}
	for {
		open, err := t.repo.Query(ctx, page)
		if err != nil {
			return rep, fmt.Errorf("query open signals: %w", err)
		}
		if len(open) == 0 {
			break
		}
		for _, s := range open {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			t.check(ctx, s, now, &rep)
		}
		page.After = models.CursorOf(open[len(open)-1])
	}

	if rep.Resolved() > 0 {
		t.l.Info("outcomes resolved",
			logger.Int("won", rep.Won),
			logger.Int("lost", rep.Lost),
			logger.Int("expired", rep.Expired),
			logger.Int("scanned", rep.Scanned),
		)
		if t.retrainer != nil {
			if err := t.retrainer.Retrain(ctx); err != nil {
				t.l.Warn("calibration retrain skipped", logger.Error(err))
			}
		}
	}
	return rep, nil
}

func (t *OutcomeTracker) check(ctx context.Context, s models.Signal, now time.Time, rep *OutcomeReport) {
	rep.Scanned++

	res, ok, err := t.decide(ctx, s, now)
	if err != nil {
		rep.Errors++
		t.l.Warn("outcome check failed", logger.String("id", s.ID), logger.String("symbol", s.Symbol), logger.Error(err))
		return
	}
	if !ok {
		rep.Skipped++
		return
	}

	applied, err := t.apply(ctx, s, res)
	if err != nil {
		rep.Errors++
		t.l.Error("outcome write failed", logger.String("id", s.ID), logger.Error(err))
		return
	}
	if !applied {
		rep.Skipped++
		return
	}
	switch res.Outcome {
	case models.OutcomeWin:
		rep.Won++
	case models.OutcomeLoss:
		rep.Lost++
	case models.OutcomeExpired:
		rep.Expired++
	}
}

// decide walks the bars printed inside the signal's horizon in order. Prices
// after the horizon never count: a signal still untouched at expiry is EXPIRED
// however late the pass runs. Within one bar the stop is
// checked before the target, so a bar that spans both resolves as a loss.
func (t *OutcomeTracker) decide(ctx context.Context, s models.Signal, now time.Time) (models.Resolution, bool, error) {
	if !s.Direction.Actionable() {
		return models.Resolution{}, false, fmt.Errorf("signal %s has direction %q", s.ID, s.Direction)
	}

	expiry := s.CreatedAt.Add(t.cfg.Horizon)
	end := now
	if expiry.Before(end) {
		end = expiry
	}

	last := s.EntryPrice
	if t.bars != nil {
		bars, err := t.bars.FetchBarsBetween(ctx, s.Symbol, s.CreatedAt, end, t.cfg.Timeframe)
		if err != nil {
			return models.Resolution{}, false, fmt.Errorf("bars %s: %w", s.Symbol, err)
		}
		step := t.cfg.Timeframe.Duration()
		for _, b := range bars {
			if !b.Bucket.Before(end) {
				break
			}
			closedAt := b.Bucket.Add(step)
			if closedAt.After(end) {
				closedAt = end
			}
			if r, ok := touch(s, b.Low, b.High, closedAt); ok {
				return r, true, nil
			}
			last = b.Close
		}
	}

	if t.prices != nil {
		if tick, ok := t.prices.Last(s.Symbol); ok && tick.Timestamp.After(s.CreatedAt) && tick.Timestamp.Before(end) {
			if r, ok := touch(s, tick.Price, tick.Price, tick.Timestamp); ok {
				return r, true, nil
			}
			last = tick.Price
		}
	}

	if !now.Before(expiry) {
		return models.Resolution{Outcome: models.OutcomeExpired, ExitPrice: last, ClosedAt: expiry}, true, nil
	}
	return models.Resolution{}, false, nil
}

func touch(s models.Signal, low, high float64, at time.Time) (models.Resolution, bool) {
	var hitStop, hitTarget bool
	switch s.Direction {
	case models.DirectionLong:
		hitStop = low <= s.StopPrice
		hitTarget = high >= s.TargetPrice
	case models.DirectionShort:
		hitStop = high >= s.StopPrice
		hitTarget = low <= s.TargetPrice
	}
	switch {
	case hitStop:
		return models.Resolution{Outcome: models.OutcomeLoss, ExitPrice: s.StopPrice, ClosedAt: at}, true
	case hitTarget:
		return models.Resolution{Outcome: models.OutcomeWin, ExitPrice: s.TargetPrice, ClosedAt: at}, true
	}
	return models.Resolution{}, false
}

func (t *OutcomeTracker) apply(ctx context.Context, s models.Signal, r models.Resolution) (bool, error) {
	resolved, err := s.Resolve(r)
	if err != nil {
		if errors.Is(err, models.ErrSignalNotOpen) {
			return false, nil
		}
		if t.metrics != nil && errors.Is(err, models.ErrSignalTampered) {
			t.metrics.RecordError("signal_tampered")
		}
		return false, err
	}

	applied, err := t.repo.SaveResolution(ctx, resolved)
	if err != nil || !applied {
		return false, err
	}

	if t.metrics != nil {
		t.metrics.RecordOutcome(string(resolved.Outcome))
	}
	if t.publisher != nil {
		if err := t.publisher.PublishResolved(ctx, resolved); err != nil {
			t.l.Warn("resolution publish failed", logger.String("id", s.ID), logger.Error(err))
		}
	}
	return true, nil
}

package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Argo/internal/domain/models"
	pkgcache "Argo/pkg/cache"
	"Argo/pkg/logger"
)

var ErrInsufficientData = errors.New("not enough resolved signals to calibrate")

const snapshotKey = "calibration:model"

type Config struct {
	MinSamplesPerSymbol int
	MinSamplesGlobal    int
	BucketWidth         float64
}

func DefaultConfig() Config {
	return Config{MinSamplesPerSymbol: 30, MinSamplesGlobal: 50, BucketWidth: 5}
}

// Model is immutable once built.
type Model struct {
	Global    *Curve            `json:"global,omitempty"`
	PerSymbol map[string]*Curve `json:"per_symbol"`
	// History counts resolved signals per symbol, including symbols below the
	// per-symbol minimum.
	History   map[string]int `json:"history"`
	Samples   int            `json:"samples"`
	TrainedAt time.Time      `json:"trained_at"`
}

// Calibrator maps raw consensus confidence to empirical win probability.
// Readers load the current model through an atomic pointer; Retrain builds
// a new model off to the side and swaps it in whole.
type Calibrator struct {
	cfg   Config
	model atomic.Pointer[Model]
	train sync.Mutex
	store pkgcache.Service
	now   func() time.Time
	l     *logger.Logger
}

// New starts with the identity mapping. store may be nil; when set the model
// is shared through it.
func New(cfg Config, store pkgcache.Service, l *logger.Logger) *Calibrator {
	def := DefaultConfig()
	if cfg.MinSamplesPerSymbol <= 0 {
		cfg.MinSamplesPerSymbol = def.MinSamplesPerSymbol
	}
	if cfg.MinSamplesGlobal <= 0 {
		cfg.MinSamplesGlobal = def.MinSamplesGlobal
	}
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = def.BucketWidth
	}
	return &Calibrator{cfg: cfg, store: store, now: time.Now, l: l}
}

// Calibrate never fails. A symbol with no resolved history maps to itself;
// a symbol below the per-symbol minimum borrows the global curve.
func (c *Calibrator) Calibrate(symbol string, raw float64) float64 {
	m := c.model.Load()
	if m == nil || m.History[symbol] == 0 {
		return raw
	}
	if curve, ok := m.PerSymbol[symbol]; ok {
		return curve.Apply(raw)
	}
	if m.Global != nil {
		return m.Global.Apply(raw)
	}
	return raw
}

func (c *Calibrator) Model() *Model {
	return c.model.Load()
}

// Retrain fits a model from resolved signals and swaps it in. On error the
// previous model keeps serving.
func (c *Calibrator) Retrain(signals []models.Signal) (*Model, error) {
	c.train.Lock()
	defer c.train.Unlock()

	bySymbol := map[string][]sample{}
	var all []sample
	for _, s := range signals {
		if s.Outcome == models.OutcomeNone {
			continue
		}
		sm := sample{raw: s.RawConfidence, win: s.Outcome == models.OutcomeWin}
		bySymbol[s.Symbol] = append(bySymbol[s.Symbol], sm)
		all = append(all, sm)
	}

	if len(all) < c.cfg.MinSamplesGlobal {
		return nil, fmt.Errorf("retrain with %d outcomes (need %d): %w", len(all), c.cfg.MinSamplesGlobal, ErrInsufficientData)
	}

	global, ok := fitCurve(all, c.cfg.BucketWidth)
	if !ok {
		return nil, fmt.Errorf("retrain: global curve fit failed")
	}

	m := &Model{
		Global:    global,
		PerSymbol: map[string]*Curve{},
		History:   map[string]int{},
		Samples:   len(all),
		TrainedAt: c.now().UTC(),
	}
	for symbol, ss := range bySymbol {
		m.History[symbol] = len(ss)
		if len(ss) < c.cfg.MinSamplesPerSymbol {
			continue
		}
		if curve, ok := fitCurve(ss, c.cfg.BucketWidth); ok {
			m.PerSymbol[symbol] = curve
		}
	}

	c.model.Store(m)
	c.l.Info("calibration model swapped",
		logger.Int("samples", m.Samples),
		logger.Int("symbols", len(m.PerSymbol)),
	)
	return m, nil
}

// SaveSnapshot publishes the current model to the shared store.
func (c *Calibrator) SaveSnapshot(ctx context.Context) error {
	m := c.model.Load()
	if c.store == nil || m == nil {
		return nil
	}
	if err := c.store.Set(ctx, snapshotKey, m, 0); err != nil {
		return fmt.Errorf("save calibration snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot adopts a shared model if one exists. A missing snapshot is not an error.
func (c *Calibrator) LoadSnapshot(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	var m Model
	if err := c.store.Get(ctx, snapshotKey, &m); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("load calibration snapshot: %w", err)
	}
	if cur := c.model.Load(); cur != nil && !m.TrainedAt.After(cur.TrainedAt) {
		return false, nil
	}
	c.model.Store(&m)
	return true, nil
}

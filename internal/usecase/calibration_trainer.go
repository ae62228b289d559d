package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	"Argo/internal/services/calibration"
	"Argo/pkg/logger"
)

// CalibrationTrainer feeds resolved signals from the repository to the
// calibrator and shares the resulting model.
type CalibrationTrainer struct {
	repo       domrepo.SignalRepository
	calibrator *calibration.Calibrator
	lookback   time.Duration
	limit      int
	l          *logger.Logger
	now        func() time.Time
}

func NewCalibrationTrainer(repo domrepo.SignalRepository, calibrator *calibration.Calibrator, lookback time.Duration, limit int, l *logger.Logger) *CalibrationTrainer {
	if limit <= 0 {
		limit = 5000
	}
	return &CalibrationTrainer{repo: repo, calibrator: calibrator, lookback: lookback, limit: limit, l: l, now: time.Now}
}

// Warm adopts a model another replica already trained, then retrains from
// the repository if nothing was shared.
func (t *CalibrationTrainer) Warm(ctx context.Context) {
	loaded, err := t.calibrator.LoadSnapshot(ctx)
	if err != nil {
		t.l.Warn("calibration snapshot unavailable", logger.Error(err))
	}
	if loaded {
		t.l.Info("calibration model loaded from snapshot")
		return
	}
	if err := t.Retrain(ctx); err != nil {
		t.l.Info("calibration starts with identity mapping", logger.Error(err))
	}
}

// Retrain reports ErrInsufficientData when there is not enough history; the
// previous model stays in place in every failure case.
func (t *CalibrationTrainer) Retrain(ctx context.Context) error {
	var from time.Time
	if t.lookback > 0 {
		from = t.now().Add(-t.lookback)
	}

	var resolved []models.Signal
	for _, status := range []models.SignalStatus{models.StatusClosed, models.StatusExpired} {
		batch, err := t.repo.Query(ctx, models.SignalFilter{Status: status, From: from, Limit: t.limit})
		if err != nil {
			return fmt.Errorf("load %s signals: %w", status, err)
		}
		resolved = append(resolved, batch...)
	}

	m, err := t.calibrator.Retrain(resolved)
	if err != nil {
		if errors.Is(err, calibration.ErrInsufficientData) {
			t.l.Debug("calibration retrain skipped", logger.Int("resolved", len(resolved)))
		}
		return err
	}
	if err := t.calibrator.SaveSnapshot(ctx); err != nil {
		t.l.Warn("calibration snapshot not saved", logger.Error(err))
	}
	t.l.Info("calibration retrained", logger.Int("samples", m.Samples))
	return nil
}

// Run retrains on a fixed interval in addition to the retrains the outcome
// tracker triggers after each resolving pass.
func (t *CalibrationTrainer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.Retrain(ctx); err != nil && !errors.Is(err, calibration.ErrInsufficientData) && ctx.Err() == nil {
				t.l.Warn("scheduled calibration retrain failed", logger.Error(err))
			}
		}
	}
}

var _ Retrainer = (*CalibrationTrainer)(nil)

package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	"Argo/internal/repository"
	"Argo/internal/services/calibration"
	pkgcache "Argo/pkg/cache"
)

func TestSignalQuery_FiltersAndOrders(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	require.NoError(t, repo.InsertBatch(context.Background(), []models.Signal{
		openSignal("a", "BTCUSDT", models.DirectionLong, 100, 97, 105, base),
		openSignal("b", "BTCUSDT", models.DirectionShort, 100, 103, 95, base.Add(time.Hour)),
		openSignal("c", "ETHUSDT", models.DirectionLong, 100, 97, 105, base.Add(2*time.Hour)),
	}))
	q := NewSignalQuery(repo, time.Second)

	got, err := q.GetLatestSignals(context.Background(), models.ListSignalsRequest{Symbol: "BTCUSDT", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	got, err = q.GetLatestSignals(context.Background(), models.ListSignalsRequest{
		From:  base.Add(30 * time.Minute).Format(time.RFC3339),
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got, err = q.GetLatestSignals(context.Background(), models.ListSignalsRequest{Symbol: "DOGE"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = q.GetLatestSignals(context.Background(), models.ListSignalsRequest{From: "last week"})
	assert.Error(t, err)
}

func TestSignalQuery_GetByID(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	require.NoError(t, repo.InsertBatch(context.Background(), []models.Signal{
		openSignal("a", "BTCUSDT", models.DirectionLong, 100, 97, 105, time.Now()),
	}))
	q := NewSignalQuery(repo, 0)

	s, err := q.GetSignalByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", s.Symbol)

	_, err = q.GetSignalByID(context.Background(), "zzz")
	assert.ErrorIs(t, err, models.ErrSignalNotFound)
}

func resolvedSignals(t *testing.T, symbol string, n, wins int, created time.Time) []models.Signal {
	t.Helper()
	out := make([]models.Signal, 0, n)
	for i := 0; i < n; i++ {
		s := openSignal(fmt.Sprintf("%s-%d", symbol, i), symbol, models.DirectionLong, 100, 97, 105, created.Add(time.Duration(i)*time.Minute))
		res := models.Resolution{Outcome: models.OutcomeLoss, ExitPrice: 97, ClosedAt: created.Add(24 * time.Hour)}
		if i < wins {
			res = models.Resolution{Outcome: models.OutcomeWin, ExitPrice: 105, ClosedAt: created.Add(24 * time.Hour)}
		}
		r, err := s.Resolve(res)
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestCalibrationTrainer_RetrainsAndShares(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	created := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.InsertBatch(context.Background(), resolvedSignals(t, "BTCUSDT", 60, 36, created)))
	shared := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0, 0))

	cal := calibration.New(calibration.DefaultConfig(), shared, nil)
	trainer := NewCalibrationTrainer(repo, cal, 90*24*time.Hour, 0, nil)
	require.NoError(t, trainer.Retrain(context.Background()))

	require.NotNil(t, cal.Model())
	assert.Equal(t, 60, cal.Model().Samples)
	assert.InDelta(t, 60.0, cal.Calibrate("BTCUSDT", 80), 1e-9)

	replica := calibration.New(calibration.DefaultConfig(), shared, nil)
	NewCalibrationTrainer(repository.NewMemorySignalRepository(), replica, 0, 0, nil).Warm(context.Background())
	require.NotNil(t, replica.Model())
	assert.InDelta(t, 60.0, replica.Calibrate("BTCUSDT", 80), 1e-9)
}

func TestCalibrationTrainer_KeepsIdentityWithoutHistory(t *testing.T) {
	repo := repository.NewMemorySignalRepository()
	require.NoError(t, repo.InsertBatch(context.Background(), resolvedSignals(t, "BTCUSDT", 10, 5, time.Now().Add(-time.Hour))))
	cal := calibration.New(calibration.DefaultConfig(), nil, nil)

	err := NewCalibrationTrainer(repo, cal, 0, 0, nil).Retrain(context.Background())

	assert.ErrorIs(t, err, calibration.ErrInsufficientData)
	assert.Nil(t, cal.Model())
	assert.Equal(t, 77.0, cal.Calibrate("BTCUSDT", 77))
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	"Argo/internal/service/ratelimit"
)

const knownID = "3f2b8c1e-4d5a-4e6f-9a7b-1c2d3e4f5a6b"

type fakeQuery struct {
	last    models.ListSignalsRequest
	signals []models.Signal
	err     error
}

func (f *fakeQuery) GetLatestSignals(_ context.Context, req models.ListSignalsRequest) ([]models.Signal, error) {
	f.last = req
	return f.signals, f.err
}

func (f *fakeQuery) GetSignalByID(_ context.Context, id string) (models.Signal, error) {
	if f.err != nil {
		return models.Signal{}, f.err
	}
	for _, s := range f.signals {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Signal{}, models.ErrSignalNotFound
}

type fakeHealth struct{ snap models.HealthSnapshot }

func (f fakeHealth) Snapshot(context.Context) models.HealthSnapshot { return f.snap }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *SignalsEchoHandler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func sampleSignal() models.Signal {
	return models.Signal{
		ID:            knownID,
		Symbol:        "BTCUSDT",
		Direction:     models.DirectionLong,
		EntryPrice:    100,
		StopPrice:     97,
		TargetPrice:   105,
		RawConfidence: 79,
		Status:        models.StatusOpen,
		CreatedAt:     time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}
}

func TestListSignals_AppliesDefaultsAndFilters(t *testing.T) {
	q := &fakeQuery{signals: []models.Signal{sampleSignal()}}
	h := NewSignalsEchoHandler(nil, q, fakeHealth{}, nil)

	rec, env := serve(t, h, "/api/signals?symbol=BTCUSDT&status=OPEN")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BTCUSDT", q.last.Symbol)
	assert.Equal(t, "OPEN", q.last.Status)
	assert.Equal(t, 50, q.last.Limit)

	var list struct {
		Rows  []models.Signal `json:"rows"`
		Total int64           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, knownID, list.Rows[0].ID)
	assert.Equal(t, int64(1), list.Total)
}

func TestListSignals_RejectsInvalidQuery(t *testing.T) {
	h := NewSignalsEchoHandler(nil, &fakeQuery{}, fakeHealth{}, nil)

	rec, _ := serve(t, h, "/api/signals?status=PENDING")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, h, "/api/signals?limit=9000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSignals_StoreFailureIsUnavailable(t *testing.T) {
	h := NewSignalsEchoHandler(nil, &fakeQuery{err: errors.New("clickhouse down")}, fakeHealth{}, nil)

	rec, env := serve(t, h, "/api/signals")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_UNAVAILABLE")
}

func TestGetSignal(t *testing.T) {
	h := NewSignalsEchoHandler(nil, &fakeQuery{signals: []models.Signal{sampleSignal()}}, fakeHealth{}, nil)

	rec, env := serve(t, h, "/api/signals/"+knownID)
	require.Equal(t, http.StatusOK, rec.Code)
	var s models.Signal
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 105.0, s.TargetPrice)

	rec, env = serve(t, h, "/api/signals/9a0b1c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_NOT_FOUND")

	rec, _ = serve(t, h, "/api/signals/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth_StatusFollowsSnapshot(t *testing.T) {
	h := NewSignalsEchoHandler(nil, &fakeQuery{}, fakeHealth{snap: models.HealthSnapshot{Healthy: true, CacheHitRate: 0.5}}, nil)
	rec, env := serve(t, h, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.HealthSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 0.5, snap.CacheHitRate)

	h = NewSignalsEchoHandler(nil, &fakeQuery{}, fakeHealth{snap: models.HealthSnapshot{Reasons: []string{"signal store unreachable"}}}, nil)
	rec, _ = serve(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSignals_PerClientRateLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Limit{RPS: 0.001, Burst: 1}, nil)
	h := NewSignalsEchoHandler(nil, &fakeQuery{}, fakeHealth{snap: models.HealthSnapshot{Healthy: true}}, limiter)

	rec, _ := serve(t, h, "/api/signals")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := serve(t, h, "/api/signals")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_RATE_LIMITED")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec, _ = serve(t, h, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

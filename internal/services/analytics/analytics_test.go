package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
)

func serve(t *testing.T, h http.HandlerFunc) *HTTPServiceBase {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPServiceBase(srv.URL, time.Second, "k")
}

func bars(closes ...float64) []models.Candle {
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Bucket: start.Add(time.Duration(i) * 5 * time.Minute), Close: c, Open: c, High: c, Low: c}
	}
	return out
}

func TestHTTPEdgeScorer(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/edge/predict", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req edgeReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AAPL", req.Symbol)
		assert.Contains(t, req.Features, "rsi_14")
		_, _ = w.Write([]byte(`{"proba_up":0.28,"regime":"bear","sigma":0.01}`))
	})

	op, err := NewHTTPEdgeScorer("ai_model", base, "").FetchOpinion(context.Background(), models.MarketContext{Symbol: "AAPL", Series: bars(1, 2, 3)})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionShort, op.Direction)
	assert.InDelta(t, 0.72, op.RawConfidence, 1e-9)
	assert.NoError(t, op.Validate())
}

func TestHTTPEdgeScorer_RejectsBadProbability(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"proba_up":1.4}`))
	})
	_, err := NewHTTPEdgeScorer("ai_model", base, "").FetchOpinion(context.Background(), models.MarketContext{Symbol: "AAPL"})
	assert.Error(t, err)
}

func TestHTTPOpinionClient(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/opinion", r.URL.Path)
		assert.Equal(t, "TSLA", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"direction":"bullish","raw_confidence":0.66,"reason":"news flow"}`))
	})

	op, err := NewHTTPOpinionClient("sentiment", base).FetchOpinion(context.Background(), models.MarketContext{Symbol: "TSLA"})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionLong, op.Direction)
	assert.Equal(t, 0.66, op.RawConfidence)
	assert.Equal(t, "sentiment", op.SourceID)
	assert.False(t, op.ObservedAt.IsZero())
}

func TestHTTPOpinionClient_UnknownDirection(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"direction":"sideways","raw_confidence":0.5}`))
	})
	_, err := NewHTTPOpinionClient("sentiment", base).FetchOpinion(context.Background(), models.MarketContext{Symbol: "TSLA"})
	assert.Error(t, err)
}

func TestHTTPPriceSeries(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5m", r.URL.Query().Get("tf"))
		b := bars(100, 101, 102)
		// out of order on purpose
		b[0], b[2] = b[2], b[0]
		_ = json.NewEncoder(w).Encode(priceSeriesResp{Symbol: "AAPL", Candles: b})
	})

	got, err := NewHTTPPriceSeries(base).FetchPriceSeries(context.Background(), "AAPL", 2, repository.TF5m)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 101.0, got[0].Close)
	assert.Equal(t, 102.0, got[1].Close)
	assert.Equal(t, "AAPL", got[0].Symbol)
}

func TestHTTPPriceSeries_EmptyIsError(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candles":[]}`))
	})
	_, err := NewHTTPPriceSeries(base).FetchPriceSeries(context.Background(), "AAPL", 10, repository.TF5m)
	assert.Error(t, err)
}

func TestHTTPRegimeDetector_RetriesServerErrors(t *testing.T) {
	calls := 0
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"state":"volatile","confidence":0.8}`))
	})

	r, err := NewHTTPRegimeDetector(base).Detect(context.Background(), models.MarketContext{Symbol: "AAPL", Series: bars(1, 2, 3)})
	require.NoError(t, err)
	assert.Equal(t, models.RegimeHighVolatility, r.Label)
	assert.Equal(t, 2, calls)
}

func TestLocalRegimeDetector(t *testing.T) {
	d := LocalRegimeDetector{HighVolatility: 5, TrendingER: 0.5, ChoppyER: 0.2, MinBars: 5, Timeframe: repository.TF5m}

	trend, _ := d.Detect(context.Background(), models.MarketContext{Symbol: "X", Series: bars(100, 100.1, 100.2, 100.3, 100.4, 100.5), Volatility: 0.1})
	assert.Equal(t, models.RegimeTrending, trend.Label)

	chop, _ := d.Detect(context.Background(), models.MarketContext{Symbol: "X", Series: bars(100, 101, 100, 101, 100, 101, 100), Volatility: 0.1})
	assert.Equal(t, models.RegimeChoppy, chop.Label)

	wild, _ := d.Detect(context.Background(), models.MarketContext{Symbol: "X", Series: bars(100, 101, 100, 101, 100, 101), Volatility: 9})
	assert.Equal(t, models.RegimeHighVolatility, wild.Label)

	short, _ := d.Detect(context.Background(), models.MarketContext{Symbol: "X", Series: bars(100, 101)})
	assert.Equal(t, models.RegimeNeutral, short.Label)
}

type failingDetector struct{}

func (failingDetector) Detect(context.Context, models.MarketContext) (models.Regime, error) {
	return models.Regime{}, assert.AnError
}

func TestFallbackRegimeDetector(t *testing.T) {
	local := LocalRegimeDetector{HighVolatility: 5, TrendingER: 0.5, ChoppyER: 0.2, MinBars: 5, Timeframe: repository.TF5m}
	d := NewFallbackRegimeDetector(failingDetector{}, local, nil)

	r, err := d.Detect(context.Background(), models.MarketContext{Symbol: "X", Series: bars(100, 100.1, 100.2, 100.3, 100.4, 100.5)})
	require.NoError(t, err)
	assert.Equal(t, "local", r.Detector)
	assert.Equal(t, models.RegimeTrending, r.Label)
}

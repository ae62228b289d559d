package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	pkgch "Argo/pkg/clickhouse"
	"Argo/pkg/logger"
)

// ClickHousePriceSeries reads OHLCV bars from candle tables named
// <database>.candles_<tf>, one per timeframe.
type ClickHousePriceSeries struct {
	db       *sql.DB
	database string
	l        *logger.Logger
}

func NewClickHousePriceSeries(ch *pkgch.Client, database string, l *logger.Logger) *ClickHousePriceSeries {
	return newClickHousePriceSeries(ch.DB(), database, l)
}

func newClickHousePriceSeries(db *sql.DB, database string, l *logger.Logger) *ClickHousePriceSeries {
	if database == "" {
		database = "argo"
	}
	return &ClickHousePriceSeries{db: db, database: database, l: l}
}

func (s *ClickHousePriceSeries) FetchPriceSeries(ctx context.Context, symbol string, lookback int, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := s.tableFor(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT bucket, symbol, open, high, low, close, volume
FROM %s
WHERE symbol = ?
ORDER BY bucket DESC
LIMIT ?`, table)

	out, err := s.query(ctx, "latest_candles", table, q, symbol, lookback)
	if err != nil {
		return nil, err
	}
	// newest first from the query; callers want oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *ClickHousePriceSeries) FetchBarsBetween(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := s.tableFor(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT bucket, symbol, open, high, low, close, volume
FROM %s
WHERE symbol = ? AND bucket >= ? AND bucket < ?
ORDER BY bucket ASC`, table)
	return s.query(ctx, "candles_between", table, q, symbol, from.UTC(), to.UTC())
}

func (s *ClickHousePriceSeries) query(ctx context.Context, op, table, q string, args ...interface{}) ([]models.Candle, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error",
			logger.String("table", table),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 128)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Bucket = c.Bucket.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Debug("clickhouse "+op+" ok",
		logger.String("table", table),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *ClickHousePriceSeries) tableFor(tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return fmt.Sprintf("%s.candles_%s", s.database, tf), nil
}

var (
	_ domrepo.PriceSeriesProvider = (*ClickHousePriceSeries)(nil)
	_ domrepo.BarRangeProvider    = (*ClickHousePriceSeries)(nil)
)

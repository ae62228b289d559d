package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
	pkgpg "Argo/pkg/postgres"
	"Argo/pkg/logger"
)

// PostgresSignalRepository keeps one row per signal. Resolution is a
// conditional UPDATE that only touches rows still OPEN.
type PostgresSignalRepository struct {
	pool *pgxpool.Pool
	l    *logger.Logger
}

func NewPostgresSignalRepository(pg *pkgpg.Client, l *logger.Logger) *PostgresSignalRepository {
	return &PostgresSignalRepository{pool: pg.Pool(), l: l}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    direction TEXT NOT NULL CHECK (direction IN ('LONG', 'SHORT')),
    entry_price DOUBLE PRECISION NOT NULL,
    stop_price DOUBLE PRECISION NOT NULL,
    target_price DOUBLE PRECISION NOT NULL,
    raw_confidence DOUBLE PRECISION NOT NULL,
    calibrated_confidence DOUBLE PRECISION NOT NULL,
    regime TEXT NOT NULL,
    reasoning TEXT NOT NULL DEFAULT '',
    content_hash CHAR(64) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('OPEN', 'CLOSED', 'EXPIRED')),
    outcome TEXT NOT NULL DEFAULT '',
    exit_price DOUBLE PRECISION,
    pnl_pct DOUBLE PRECISION,
    closed_at TIMESTAMPTZ,
    CHECK ((status = 'OPEN') = (outcome = ''))
)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol_created ON signals (symbol, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol_outcome ON signals (symbol, outcome)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_created_outcome ON signals (created_at, outcome)`,
}

func (r *PostgresSignalRepository) Init(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres signals schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresSignalRepository) InsertBatch(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO signals (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO NOTHING`, signalColumns)

	batch := &pgx.Batch{}
	for _, s := range signals {
		batch.Queue(q, signalArgs(s)...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres insert signals: %w", err)
	}
	return nil
}

func (r *PostgresSignalRepository) SaveResolution(ctx context.Context, s models.Signal) (bool, error) {
	if s.IsOpen() {
		return false, fmt.Errorf("save resolution %s: %w", s.ID, models.ErrInvalidTransition)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE signals
SET status = $2, outcome = $3, exit_price = $4, pnl_pct = $5, closed_at = $6
WHERE id = $1 AND status = 'OPEN'`,
		s.ID, string(s.Status), string(s.Outcome), nullFloat(s.ExitPrice), nullFloat(s.PnLPct), nullTime(s.ClosedAt))
	if err != nil {
		return false, fmt.Errorf("save resolution %s: %w", s.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSignalRepository) Query(ctx context.Context, f models.SignalFilter) ([]models.Signal, error) {
	q, args := postgresQuery(f)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.l.Error("postgres signals query error", logger.String("symbol", f.Symbol), logger.Error(err))
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Signal, 0, 64)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresSignalRepository) GetByID(ctx context.Context, id string) (models.Signal, error) {
	q := fmt.Sprintf("SELECT %s FROM signals WHERE id = $1", signalColumns)
	s, err := scanSignal(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Signal{}, models.ErrSignalNotFound
		}
		return models.Signal{}, fmt.Errorf("get signal %s: %w", id, err)
	}
	return s, nil
}

func (r *PostgresSignalRepository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to pkg/postgres.Client.
func (r *PostgresSignalRepository) Close() error {
	return nil
}

func postgresQuery(f models.SignalFilter) (string, []interface{}) {
	where, args := filterClause(f, func(n int) string { return fmt.Sprintf("$%d", n) })
	args = append(args, clampLimit(f.Limit))
	return fmt.Sprintf("SELECT %s FROM signals%s ORDER BY %s LIMIT $%d", signalColumns, where, orderClause(f), len(args)), args
}

var _ repository.SignalRepository = (*PostgresSignalRepository)(nil)

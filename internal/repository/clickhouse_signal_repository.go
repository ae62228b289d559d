package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
	pkgch "Argo/pkg/clickhouse"
	"Argo/pkg/logger"
)

// ClickHouseSignalRepository stores signals in a ReplacingMergeTree. A
// resolution is a new row version of the same id, so the table itself stays
// append-only and reads use FINAL to see the latest version.
type ClickHouseSignalRepository struct {
	db    *sql.DB
	table string
	l     *logger.Logger
}

func NewClickHouseSignalRepository(ch *pkgch.Client, database string, l *logger.Logger) *ClickHouseSignalRepository {
	return newClickHouseSignalRepository(ch.DB(), database, l)
}

func newClickHouseSignalRepository(db *sql.DB, database string, l *logger.Logger) *ClickHouseSignalRepository {
	if database == "" {
		database = "argo"
	}
	return &ClickHouseSignalRepository{db: db, table: database + ".signals", l: l}
}

// Schema returns the DDL. Reads go through FINAL, which ignores projections,
// so every access path is the primary key plus data skipping indexes:
// (symbol, created_at) is the sort key, (symbol, outcome) is the key prefix
// plus idx_outcome, and (created_at, outcome) is idx_created plus idx_outcome.
func (r *ClickHouseSignalRepository) Schema() []string {
	db := strings.SplitN(r.table, ".", 2)[0]
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id String,
    symbol LowCardinality(String),
    direction LowCardinality(String),
    entry_price Float64,
    stop_price Float64,
    target_price Float64,
    raw_confidence Float64,
    calibrated_confidence Float64,
    regime LowCardinality(String),
    reasoning String,
    content_hash String,
    created_at DateTime64(3, 'UTC'),
    status LowCardinality(String),
    outcome LowCardinality(String),
    exit_price Nullable(Float64),
    pnl_pct Nullable(Float64),
    closed_at Nullable(DateTime64(3, 'UTC')),
    version UInt64,
    INDEX idx_status status TYPE set(4) GRANULARITY 4,
    INDEX idx_outcome outcome TYPE set(8) GRANULARITY 4,
    INDEX idx_created created_at TYPE minmax GRANULARITY 1
) ENGINE = ReplacingMergeTree(version)
PARTITION BY toYYYYMM(created_at)
ORDER BY (symbol, created_at, id)`, r.table),
	}
}

func (r *ClickHouseSignalRepository) Init(ctx context.Context) error {
	for _, stmt := range r.Schema() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse signals schema: %w", err)
		}
	}
	return nil
}

func (r *ClickHouseSignalRepository) InsertBatch(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	start := time.Now()

	const chunkSize = 1000
	for from := 0; from < len(signals); from += chunkSize {
		to := min(from+chunkSize, len(signals))

		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*18)
		for _, s := range signals[from:to] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, signalArgs(s)...)
			args = append(args, rowVersion(s))
		}
		q := fmt.Sprintf("INSERT INTO %s (%s, version) VALUES %s", r.table, signalColumns, strings.Join(values, ","))
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("clickhouse insert signals: %w", err)
		}
	}

	r.l.Debug("clickhouse signals inserted",
		logger.Int("rows", len(signals)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (r *ClickHouseSignalRepository) SaveResolution(ctx context.Context, s models.Signal) (bool, error) {
	if s.IsOpen() {
		return false, fmt.Errorf("save resolution %s: %w", s.ID, models.ErrInvalidTransition)
	}

	var status string
	q := fmt.Sprintf("SELECT status FROM %s FINAL WHERE id = ? LIMIT 1", r.table)
	if err := r.db.QueryRowContext(ctx, q, s.ID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("save resolution %s: %w", s.ID, models.ErrSignalNotFound)
		}
		return false, fmt.Errorf("save resolution %s: %w", s.ID, err)
	}
	if models.SignalStatus(status) != models.StatusOpen {
		return false, nil
	}

	ins := fmt.Sprintf("INSERT INTO %s (%s, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", r.table, signalColumns)
	args := append(signalArgs(s), rowVersion(s))
	if _, err := r.db.ExecContext(ctx, ins, args...); err != nil {
		return false, fmt.Errorf("save resolution %s: %w", s.ID, err)
	}
	return true, nil
}

func (r *ClickHouseSignalRepository) Query(ctx context.Context, f models.SignalFilter) ([]models.Signal, error) {
	where, args := filterClause(f, func(int) string { return "?" })
	q := fmt.Sprintf("SELECT %s FROM %s FINAL%s ORDER BY %s LIMIT ?", signalColumns, r.table, where, orderClause(f))
	args = append(args, clampLimit(f.Limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		r.l.Error("clickhouse signals query error", logger.String("symbol", f.Symbol), logger.Error(err))
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *ClickHouseSignalRepository) GetByID(ctx context.Context, id string) (models.Signal, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE id = ? LIMIT 1", signalColumns, r.table)
	s, err := scanSignal(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Signal{}, models.ErrSignalNotFound
		}
		return models.Signal{}, fmt.Errorf("get signal %s: %w", id, err)
	}
	return s, nil
}

func (r *ClickHouseSignalRepository) Health(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (r *ClickHouseSignalRepository) Close() error {
	return nil
}

// rowVersion orders versions of one signal: the OPEN row first, resolutions after.
func rowVersion(s models.Signal) uint64 {
	if s.ClosedAt != nil {
		return uint64(s.ClosedAt.UnixMilli())
	}
	return 1
}

// filterClause renders f as " WHERE ..." with placeholders from ph(n), n starting at 1.
func filterClause(f models.SignalFilter, ph func(n int) string) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(col string, op string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s %s %s", col, op, ph(len(args))))
	}
	if f.Symbol != "" {
		add("symbol", "=", f.Symbol)
	}
	if f.Status != "" {
		add("status", "=", string(f.Status))
	}
	if f.Outcome != "" {
		add("outcome", "=", string(f.Outcome))
	}
	if f.Direction != "" {
		add("direction", "=", string(f.Direction))
	}
	if !f.From.IsZero() {
		add("created_at", ">=", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("created_at", "<", f.To.UTC())
	}
	if f.OldestFirst && !f.After.IsZero() {
		args = append(args, f.After.CreatedAt.UTC(), f.After.ID)
		conds = append(conds, fmt.Sprintf("(created_at, id) > (%s, %s)", ph(len(args)-1), ph(len(args))))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(f models.SignalFilter) string {
	if f.OldestFirst {
		return "created_at ASC, id ASC"
	}
	return "created_at DESC"
}

var _ repository.SignalRepository = (*ClickHouseSignalRepository)(nil)

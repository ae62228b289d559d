package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	pkgkafka "Argo/pkg/kafka"
)

var signalCols = strings.Split(strings.ReplaceAll(signalColumns, " ", ""), ",")

func sampleSignal(id string) models.Signal {
	s := models.Signal{
		ID:                   id,
		Symbol:               "AAPL",
		Direction:            models.DirectionLong,
		EntryPrice:           100,
		StopPrice:            97,
		TargetPrice:          105,
		RawConfidence:        79,
		CalibratedConfidence: 64.3,
		Regime:               models.RegimeTrending,
		Reasoning:            "LONG consensus",
		CreatedAt:            time.Date(2026, 3, 2, 15, 4, 5, 123000000, time.UTC),
		Status:               models.StatusOpen,
	}
	s.ContentHash = models.ComputeContentHash(s)
	return s
}

func signalRow(s models.Signal) []driver.Value {
	var exit, pnl, closed driver.Value
	if s.ExitPrice != nil {
		exit = *s.ExitPrice
	}
	if s.PnLPct != nil {
		pnl = *s.PnLPct
	}
	if s.ClosedAt != nil {
		closed = *s.ClosedAt
	}
	return []driver.Value{s.ID, s.Symbol, string(s.Direction), s.EntryPrice, s.StopPrice, s.TargetPrice,
		s.RawConfidence, s.CalibratedConfidence, string(s.Regime), s.Reasoning, s.ContentHash,
		s.CreatedAt, string(s.Status), string(s.Outcome), exit, pnl, closed}
}

func newMockRepo(t *testing.T) (*ClickHouseSignalRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return newClickHouseSignalRepository(db, "argo", nil), mock
}

func TestClickHouseSignalRepository_InsertBatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO argo.signals (id, symbol")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.InsertBatch(context.Background(), []models.Signal{sampleSignal("a"), sampleSignal("b")})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseSignalRepository_QueryAppliesFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	closed := sampleSignal("b")
	exit, pnl, at := 105.0, 5.0, closed.CreatedAt.Add(time.Hour)
	closed.Status, closed.Outcome, closed.ExitPrice, closed.PnLPct, closed.ClosedAt = models.StatusClosed, models.OutcomeWin, &exit, &pnl, &at

	mock.ExpectQuery(regexp.QuoteMeta("FROM argo.signals FINAL WHERE symbol = ? AND outcome = ? AND created_at >= ? ORDER BY created_at DESC LIMIT ?")).
		WithArgs("AAPL", "WIN", from, 10).
		WillReturnRows(sqlmock.NewRows(signalCols).AddRow(signalRow(closed)...))

	got, err := repo.Query(context.Background(), models.SignalFilter{Symbol: "AAPL", Outcome: models.OutcomeWin, From: from, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.OutcomeWin, got[0].Outcome)
	require.NotNil(t, got[0].ExitPrice)
	assert.Equal(t, 105.0, *got[0].ExitPrice)
	assert.True(t, got[0].VerifyHash())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseSignalRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	s := sampleSignal("a")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ? LIMIT 1")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows(signalCols).AddRow(signalRow(s)...))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ? LIMIT 1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(signalCols))

	got, err := repo.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrSignalNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseSignalRepository_SaveResolutionOnlyFromOpen(t *testing.T) {
	repo, mock := newMockRepo(t)
	open := sampleSignal("a")
	closed, err := open.Resolve(models.Resolution{Outcome: models.OutcomeWin, ExitPrice: 105, ClosedAt: open.CreatedAt.Add(time.Hour)})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM argo.signals FINAL WHERE id = ?")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OPEN"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO argo.signals")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM argo.signals FINAL WHERE id = ?")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CLOSED"))

	applied, err := repo.SaveResolution(context.Background(), closed)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.SaveResolution(context.Background(), closed)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = repo.SaveResolution(context.Background(), open)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseSignalRepository_SchemaIndexesQueryPaths(t *testing.T) {
	repo, _ := newMockRepo(t)
	ddl := strings.Join(repo.Schema(), "\n")
	assert.Contains(t, ddl, "ReplacingMergeTree(version)")
	assert.Contains(t, ddl, "ORDER BY (symbol, created_at, id)")
	assert.Contains(t, ddl, "INDEX idx_outcome outcome TYPE set(8)")
	assert.Contains(t, ddl, "INDEX idx_created created_at TYPE minmax")
	assert.NotContains(t, ddl, "PROJECTION")
}

func TestClickHouseSignalRepository_OldestFirstPage(t *testing.T) {
	repo, mock := newMockRepo(t)
	s := sampleSignal("b")
	after := models.Cursor{CreatedAt: s.CreatedAt, ID: "a"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM argo.signals FINAL WHERE status = ? AND (created_at, id) > (?, ?) ORDER BY created_at ASC, id ASC LIMIT ?")).
		WithArgs("OPEN", after.CreatedAt, "a", 2).
		WillReturnRows(sqlmock.NewRows(signalCols).AddRow(signalRow(s)...))

	got, err := repo.Query(context.Background(), models.SignalFilter{Status: models.StatusOpen, Limit: 2, OldestFirst: true, After: after})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuery(t *testing.T) {
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q, args := postgresQuery(models.SignalFilter{Symbol: "AAPL", Status: models.StatusOpen, To: to})
	assert.True(t, strings.HasSuffix(q, "FROM signals WHERE symbol = $1 AND status = $2 AND created_at < $3 ORDER BY created_at DESC LIMIT $4"), q)
	assert.Equal(t, []interface{}{"AAPL", "OPEN", to, 5000}, args)

	q, args = postgresQuery(models.SignalFilter{Limit: 20})
	assert.True(t, strings.HasSuffix(q, "FROM signals ORDER BY created_at DESC LIMIT $1"), q)
	assert.Equal(t, []interface{}{20}, args)

	q, args = postgresQuery(models.SignalFilter{Status: models.StatusOpen, Limit: 50, OldestFirst: true, After: models.Cursor{CreatedAt: to, ID: "x"}})
	assert.True(t, strings.HasSuffix(q, "FROM signals WHERE status = $1 AND (created_at, id) > ($2, $3) ORDER BY created_at ASC, id ASC LIMIT $4"), q)
	assert.Equal(t, []interface{}{"OPEN", to, "x", 50}, args)
}

func TestMemorySignalRepository_OldestFirstPaging(t *testing.T) {
	repo := NewMemorySignalRepository()
	ctx := context.Background()
	base := sampleSignal("x").CreatedAt
	var all []models.Signal
	for i, id := range []string{"c", "a", "b", "d"} {
		s := sampleSignal(id)
		if i == 3 {
			s.CreatedAt = base.Add(-time.Hour)
		}
		all = append(all, s)
	}
	require.NoError(t, repo.InsertBatch(ctx, all))

	f := models.SignalFilter{Limit: 2, OldestFirst: true}
	var ids []string
	for {
		page, err := repo.Query(ctx, f)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, s := range page {
			ids = append(ids, s.ID)
		}
		f.After = models.CursorOf(page[len(page)-1])
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestMemorySignalRepository(t *testing.T) {
	repo := NewMemorySignalRepository()
	ctx := context.Background()
	a, b := sampleSignal("a"), sampleSignal("b")
	b.CreatedAt = a.CreatedAt.Add(time.Minute)
	require.NoError(t, repo.InsertBatch(ctx, []models.Signal{a, b, a}))

	all, err := repo.Query(ctx, models.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)

	closed, err := a.Resolve(models.Resolution{Outcome: models.OutcomeLoss, ExitPrice: 97, ClosedAt: time.Now()})
	require.NoError(t, err)
	applied, err := repo.SaveResolution(ctx, closed)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repo.SaveResolution(ctx, closed)
	require.NoError(t, err)
	assert.False(t, applied)

	open, err := repo.Query(ctx, models.SignalFilter{Status: models.StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].ID)

	_, err = repo.GetByID(ctx, "zzz")
	assert.ErrorIs(t, err, models.ErrSignalNotFound)
}

func TestClickHousePriceSeries_OldestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t0 := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	cols := []string{"bucket", "symbol", "open", "high", "low", "close", "volume"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM argo.candles_5m")).
		WithArgs("AAPL", 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(t0.Add(5*time.Minute), "AAPL", 101.0, 102.0, 100.0, 101.5, 10.0).
			AddRow(t0, "AAPL", 100.0, 101.0, 99.0, 100.5, 12.0))

	ps := newClickHousePriceSeries(db, "argo", nil)
	bars, err := ps.FetchPriceSeries(context.Background(), "AAPL", 2, domrepo.TF5m)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, t0, bars[0].Bucket)
	assert.Equal(t, 101.5, bars[1].Close)

	_, err = ps.FetchPriceSeries(context.Background(), "AAPL", 2, domrepo.Timeframe("7m"))
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type recordingProducer struct {
	topic  string
	single []interface{}
	batch  []pkgkafka.Message
}

func (p *recordingProducer) Publish(_ context.Context, topic string, _ []byte, value interface{}) error {
	p.topic = topic
	p.single = append(p.single, value)
	return nil
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	p.batch = append(p.batch, msgs...)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaSignalPublisher(t *testing.T) {
	prod := &recordingProducer{}
	pub := newKafkaSignalPublisher(prod, "argo.signals")
	s := sampleSignal("a")

	require.NoError(t, pub.PublishCreated(context.Background(), []models.Signal{s}))
	require.NoError(t, pub.PublishResolved(context.Background(), s))
	require.NoError(t, pub.PublishCreated(context.Background(), nil))

	assert.Equal(t, "argo.signals", prod.topic)
	require.Len(t, prod.batch, 1)
	assert.Equal(t, []byte("AAPL"), prod.batch[0].Key)
	ev := prod.batch[0].Value.(SignalEvent)
	assert.Equal(t, EventSignalCreated, ev.Type)
	assert.Equal(t, s.ContentHash, ev.SignalHash)
	require.Len(t, prod.single, 1)
	assert.Equal(t, EventSignalResolved, prod.single[0].(SignalEvent).Type)
}

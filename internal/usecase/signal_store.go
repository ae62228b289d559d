package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Argo/internal/domain/models"
	domrepo "Argo/internal/domain/repository"
	"Argo/pkg/logger"
)

var ErrStoreFull = errors.New("signal store queue full")

type SignalStoreConfig struct {
	BatchSize     int
	MaxLatency    time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	QueueCapacity int
	WriteTimeout  time.Duration
}

func DefaultSignalStoreConfig() SignalStoreConfig {
	return SignalStoreConfig{
		BatchSize:     100,
		MaxLatency:    2 * time.Second,
		MaxRetries:    3,
		RetryBackoff:  200 * time.Millisecond,
		QueueCapacity: 10000,
		WriteTimeout:  10 * time.Second,
	}
}

// SignalStore buffers appended signals and writes them to the repository in
// batches. A batch is written when it reaches BatchSize or when its oldest
// entry has waited MaxLatency, whichever comes first. A batch that still fails
// after MaxRetries is dropped and counted as lost.
type SignalStore struct {
	cfg       SignalStoreConfig
	repo      domrepo.SignalRepository
	publisher domrepo.SignalPublisher
	backend   string
	metrics   domrepo.Metrics
	l         *logger.Logger

	mu       sync.Mutex
	pending  []models.Signal
	inflight []models.Signal // taken by Flush, not yet committed or dropped
	latest   map[string]models.Signal

	flushMu sync.Mutex // serializes writers so batches land in append order
	kick    chan struct{}

	statsMu       sync.Mutex
	written       int64
	lost          int64
	failedFlushes int64
	lastErr       string

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSignalStore(cfg SignalStoreConfig, repo domrepo.SignalRepository, publisher domrepo.SignalPublisher, backend string, metrics domrepo.Metrics, l *logger.Logger) *SignalStore {
	def := DefaultSignalStoreConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = def.MaxLatency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.QueueCapacity < cfg.BatchSize {
		cfg.QueueCapacity = cfg.BatchSize * 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &SignalStore{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		backend:   backend,
		metrics:   metrics,
		l:         l,
		latest:    make(map[string]models.Signal),
		kick:      make(chan struct{}, 1),
	}
}

// Start launches the background flusher. Stop it with Close.
func (s *SignalStore) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.flushLoop(ctx)
}

func (s *SignalStore) flushLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.MaxLatency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}
		if err := s.Flush(ctx); err != nil && ctx.Err() == nil {
			s.l.Error("signal batch dropped", logger.Error(err))
		}
	}
}

// Append queues a signal for the next batch write.
func (s *SignalStore) Append(sig models.Signal) error {
	s.mu.Lock()
	if len(s.pending) >= s.cfg.QueueCapacity {
		s.mu.Unlock()
		s.recordLost(1, ErrStoreFull)
		return ErrStoreFull
	}
	s.pending = append(s.pending, sig)
	if cur, ok := s.latest[sig.Symbol]; !ok || !cur.CreatedAt.After(sig.CreatedAt) {
		s.latest[sig.Symbol] = sig
	}
	full := len(s.pending) >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// LatestOpen returns the newest signal appended for symbol in this process
// while it is still OPEN. Queued signals are open by construction; written
// ones are re-read so a resolution recorded by the outcome tracker is seen.
func (s *SignalStore) LatestOpen(ctx context.Context, symbol string) (models.Signal, bool) {
	s.mu.Lock()
	sig, ok := s.latest[symbol]
	_, queued := s.queuedLocked(sig.ID)
	s.mu.Unlock()
	if !ok {
		return models.Signal{}, false
	}
	if queued {
		return sig, true
	}

	cur, err := s.repo.GetByID(ctx, sig.ID)
	switch {
	case errors.Is(err, models.ErrSignalNotFound):
		// dropped batch
		s.forgetLatest(symbol, sig.ID)
		return models.Signal{}, false
	case err != nil:
		s.l.Debug("latest signal refresh failed", logger.String("id", sig.ID), logger.Error(err))
		return models.Signal{}, false
	case !cur.IsOpen():
		s.forgetLatest(symbol, sig.ID)
		return models.Signal{}, false
	}
	return cur, true
}

func (s *SignalStore) forgetLatest(symbol, id string) {
	s.mu.Lock()
	if cur, ok := s.latest[symbol]; ok && cur.ID == id {
		delete(s.latest, symbol)
	}
	s.mu.Unlock()
}

// queuedLocked finds id among pending and in-flight signals. Callers hold mu.
func (s *SignalStore) queuedLocked(id string) (models.Signal, bool) {
	for _, q := range [][]models.Signal{s.pending, s.inflight} {
		for _, sig := range q {
			if sig.ID == id {
				return sig, true
			}
		}
	}
	return models.Signal{}, false
}

// Flush writes everything queued so far. The returned error reports the last
// batch that had to be dropped.
func (s *SignalStore) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.inflight = batch
	s.mu.Unlock()

	var lastErr error
	for start := 0; start < len(batch); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(batch))
		if err := s.writeBatch(ctx, batch[start:end]); err != nil {
			lastErr = err
		}
		s.mu.Lock()
		s.inflight = batch[end:]
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
	return lastErr
}

func (s *SignalStore) writeBatch(ctx context.Context, batch []models.Signal) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		err = s.repo.InsertBatch(wctx, batch)
		cancel()
		if err == nil {
			break
		}
		s.l.Warn("signal batch write failed",
			logger.Int("attempt", attempt),
			logger.Int("size", len(batch)),
			logger.Error(err),
		)
		if attempt < s.cfg.MaxRetries && s.cfg.RetryBackoff > 0 {
			time.Sleep(s.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	if err != nil {
		s.recordLost(len(batch), err)
		return fmt.Errorf("write batch of %d after %d attempts: %w", len(batch), s.cfg.MaxRetries, err)
	}

	s.statsMu.Lock()
	s.written += int64(len(batch))
	s.statsMu.Unlock()
	for _, sig := range batch {
		if s.metrics != nil {
			s.metrics.RecordSignal(sig.Symbol, "stored")
		}
	}

	if s.publisher != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		if perr := s.publisher.PublishCreated(pctx, batch); perr != nil {
			s.l.Warn("signal publish failed", logger.Int("size", len(batch)), logger.Error(perr))
			if s.metrics != nil {
				s.metrics.RecordError("signal_publish")
			}
		}
		cancel()
	}
	return nil
}

func (s *SignalStore) recordLost(n int, err error) {
	s.statsMu.Lock()
	s.lost += int64(n)
	s.failedFlushes++
	s.lastErr = err.Error()
	s.statsMu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordSignalsLost(n)
	}
	s.l.Error("signals lost", logger.Int("count", n), logger.Error(err))
}

// Query reads through to the repository and overlays signals still waiting
// for their batch or being written, so a just-published signal is visible
// immediately.
func (s *SignalStore) Query(ctx context.Context, f models.SignalFilter) ([]models.Signal, error) {
	stored, err := s.repo.Query(ctx, f)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var queued []models.Signal
	for _, q := range [][]models.Signal{s.inflight, s.pending} {
		for _, sig := range q {
			if f.Matches(sig) {
				queued = append(queued, sig)
			}
		}
	}
	s.mu.Unlock()
	if len(queued) == 0 {
		return stored, nil
	}

	seen := make(map[string]struct{}, len(stored))
	for _, sig := range stored {
		seen[sig.ID] = struct{}{}
	}
	out := stored
	for _, sig := range queued {
		if _, ok := seen[sig.ID]; !ok {
			out = append(out, sig)
		}
	}
	f.Sort(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *SignalStore) GetByID(ctx context.Context, id string) (models.Signal, error) {
	s.mu.Lock()
	sig, ok := s.queuedLocked(id)
	s.mu.Unlock()
	if ok {
		return sig, nil
	}
	return s.repo.GetByID(ctx, id)
}

func (s *SignalStore) Stats(ctx context.Context) models.StoreHealth {
	s.mu.Lock()
	pending := len(s.pending) + len(s.inflight)
	s.mu.Unlock()

	s.statsMu.Lock()
	h := models.StoreHealth{
		Backend:       s.backend,
		Pending:       pending,
		Written:       s.written,
		Lost:          s.lost,
		FailedFlushes: s.failedFlushes,
		LastError:     s.lastErr,
	}
	s.statsMu.Unlock()

	h.Reachable = s.repo.Health(ctx) == nil
	return h
}

// Close stops the flusher and writes whatever is still queued.
func (s *SignalStore) Close(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return s.Flush(ctx)
}

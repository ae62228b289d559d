package repository

import (
	"context"
	"sync"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
)

// MemorySignalRepository is the process-local backend for development and tests.
type MemorySignalRepository struct {
	mu    sync.RWMutex
	byID  map[string]models.Signal
	order []string
	fail  error
}

func NewMemorySignalRepository() *MemorySignalRepository {
	return &MemorySignalRepository{byID: make(map[string]models.Signal)}
}

func (r *MemorySignalRepository) Init(context.Context) error { return nil }

func (r *MemorySignalRepository) InsertBatch(_ context.Context, signals []models.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, s := range signals {
		if _, ok := r.byID[s.ID]; ok {
			continue
		}
		r.byID[s.ID] = s
		r.order = append(r.order, s.ID)
	}
	return nil
}

func (r *MemorySignalRepository) SaveResolution(_ context.Context, s models.Signal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[s.ID]
	if !ok {
		return false, models.ErrSignalNotFound
	}
	if !cur.IsOpen() {
		return false, nil
	}
	r.byID[s.ID] = s
	return true, nil
}

func (r *MemorySignalRepository) Query(_ context.Context, f models.SignalFilter) ([]models.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Signal, 0)
	for _, id := range r.order {
		if s := r.byID[id]; f.Matches(s) {
			out = append(out, s)
		}
	}
	f.Sort(out)
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySignalRepository) GetByID(_ context.Context, id string) (models.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return models.Signal{}, models.ErrSignalNotFound
	}
	return s, nil
}

func (r *MemorySignalRepository) Health(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fail
}

func (r *MemorySignalRepository) Close() error { return nil }

// SetFailure makes InsertBatch and Health return err until cleared with nil.
func (r *MemorySignalRepository) SetFailure(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

var _ repository.SignalRepository = (*MemorySignalRepository)(nil)

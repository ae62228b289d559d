package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Argo/internal/domain/models"
	"Argo/pkg/util"
)

const maxQueryLimit = 500

type SignalReader interface {
	Query(ctx context.Context, f models.SignalFilter) ([]models.Signal, error)
	GetByID(ctx context.Context, id string) (models.Signal, error)
}

// SignalQuery is the read side exposed to the API layer.
type SignalQuery struct {
	reader  SignalReader
	timeout time.Duration
}

func NewSignalQuery(reader SignalReader, timeout time.Duration) *SignalQuery {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SignalQuery{reader: reader, timeout: timeout}
}

// GetLatestSignals returns the newest signals matching the request, newest first.
func (q *SignalQuery) GetLatestSignals(ctx context.Context, req models.ListSignalsRequest) ([]models.Signal, error) {
	f, err := filterFromRequest(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	out, err := q.reader.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	if out == nil {
		out = []models.Signal{}
	}
	return out, nil
}

// GetSignalByID returns models.ErrSignalNotFound for unknown ids.
func (q *SignalQuery) GetSignalByID(ctx context.Context, id string) (models.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.reader.GetByID(ctx, id)
}

func filterFromRequest(req models.ListSignalsRequest) (models.SignalFilter, error) {
	f := models.SignalFilter{
		Symbol:    strings.TrimSpace(req.Symbol),
		Status:    models.SignalStatus(req.Status),
		Outcome:   models.Outcome(req.Outcome),
		Direction: models.Direction(req.Direction),
		Limit:     req.Limit,
	}
	if f.Limit <= 0 || f.Limit > maxQueryLimit {
		f.Limit = maxQueryLimit
	}
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return f, fmt.Errorf("invalid from %q", req.From)
		}
		f.From = t
	}
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return f, fmt.Errorf("invalid to %q", req.To)
		}
		f.To = t
	}
	return f, nil
}

package analytics

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"Argo/internal/domain/models"
	domsvc "Argo/internal/domain/service"
)

// HTTPOpinionClient reads a ready-made opinion from an upstream such as a
// sentiment provider: GET /opinion?symbol=X -> {direction, raw_confidence, reason}.
type HTTPOpinionClient struct {
	id   string
	base *HTTPServiceBase
}

func NewHTTPOpinionClient(sourceID string, base *HTTPServiceBase) *HTTPOpinionClient {
	return &HTTPOpinionClient{id: sourceID, base: base}
}

type opinionResp struct {
	Direction     string    `json:"direction"`
	RawConfidence float64   `json:"raw_confidence"`
	Reason        string    `json:"reason"`
	ObservedAt    time.Time `json:"observed_at"`
}

func (c *HTTPOpinionClient) SourceID() string { return c.id }

func (c *HTTPOpinionClient) FetchOpinion(ctx context.Context, mc models.MarketContext) (models.SourceOpinion, error) {
	var resp opinionResp
	if err := c.base.GetJSON(ctx, "/opinion", url.Values{"symbol": {mc.Symbol}}, &resp); err != nil {
		return models.SourceOpinion{}, fmt.Errorf("opinion %s: %w", mc.Symbol, err)
	}

	dir, ok := ParseDirection(resp.Direction)
	if !ok {
		return models.SourceOpinion{}, fmt.Errorf("opinion %s: unknown direction %q", mc.Symbol, resp.Direction)
	}
	observed := resp.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	return models.SourceOpinion{
		SourceID:      c.id,
		Direction:     models.Direction(dir),
		RawConfidence: resp.RawConfidence,
		ObservedAt:    observed,
		Reason:        resp.Reason,
	}, nil
}

var _ domsvc.OpinionFetcher = (*HTTPOpinionClient)(nil)

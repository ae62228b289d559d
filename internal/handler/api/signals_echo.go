package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"Argo/internal/domain/models"
	"Argo/internal/service/ratelimit"
	xhttp "Argo/pkg/http"
	xlogger "Argo/pkg/logger"
)

type SignalQuerier interface {
	GetLatestSignals(ctx context.Context, req models.ListSignalsRequest) ([]models.Signal, error)
	GetSignalByID(ctx context.Context, id string) (models.Signal, error)
}

type HealthReporter interface {
	Snapshot(ctx context.Context) models.HealthSnapshot
}

// SignalsEchoHandler serves the read-only signal API.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	query   SignalQuerier
	health  HealthReporter
	limiter *ratelimit.Limiter
}

// limiter may be nil to disable per-client limits.
func NewSignalsEchoHandler(logger *xlogger.Logger, query SignalQuerier, health HealthReporter, limiter *ratelimit.Limiter) *SignalsEchoHandler {
	return &SignalsEchoHandler{logger: logger, query: query, health: health, limiter: limiter}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.ListSignals, h.rateLimit)
	g.GET("/signals/:id", h.GetSignal, h.rateLimit)
	g.GET("/health", h.Health)
}

func (h *SignalsEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if h.limiter != nil && !h.limiter.Allow(ip) {
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError(h.limiter.RetryAfter(ip)))
		}
		return next(c)
	}
}

func (h *SignalsEchoHandler) ListSignals(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.query.GetLatestSignals(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("list signals failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableErrorf("signal store unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsEchoHandler) GetSignal(c echo.Context) error {
	req := &models.GetSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	s, err := h.query.GetSignalByID(c.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrSignalNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("signal %s not found", req.ID))
		}
		h.logger.Error("get signal failed", xlogger.String("id", req.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableErrorf("signal store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, s)
}

// Health answers 503 when the snapshot is unhealthy so load balancers can act on the status alone.
func (h *SignalsEchoHandler) Health(c echo.Context) error {
	snap := h.health.Snapshot(c.Request().Context())
	if !snap.Healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, snap)
	}
	return xhttp.SuccessResponse(c, snap)
}

package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"Argo/pkg/logger"
)

// RequestID reuses the caller's X-Request-ID or mints one, and echoes it back.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
				c.Request().Header.Set(echo.HeaderXRequestID, id)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// RequestLogging writes one line per request: debug normally, warn on 5xx.
// Scrapes of /metrics are not logged.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []logger.Field{
				logger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				logger.String("method", c.Request().Method),
				logger.String("route", c.Path()),
				logger.String("uri", c.Request().RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", status),
				logger.Duration("took", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				if err != nil {
					fields = append(fields, logger.Error(err))
				}
				l.Warn("http request failed", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

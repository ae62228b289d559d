package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"Argo/pkg/logger"
)

// Recover turns a handler panic into a logged 500. If the handler already
// started writing, the response is left as is.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				l.Error("http handler panic",
					logger.String("panic", fmt.Sprint(r)),
					logger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
					logger.String("method", c.Request().Method),
					logger.String("route", c.Path()),
					logger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}

package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	CodeNotFound    = "ERR_NOT_FOUND"
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeRateLimited = "ERR_RATE_LIMITED"
	CodeUnavailable = "ERR_UNAVAILABLE"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// AppError is an error that knows its HTTP status and public code. A
// RetryAfter hint is sent as the Retry-After header.
type AppError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Field      string        `json:"field,omitempty"`
	Status     int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

func newAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// NotFoundErrorf returns a 404 AppError.
func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return newAppError(CodeNotFound, fmt.Sprintf(format, a...), http.StatusNotFound)
}

// BadRequestErrorf returns a 400 AppError.
func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return newAppError(CodeBadRequest, fmt.Sprintf(format, a...), http.StatusBadRequest)
}

// TooManyRequestsError returns a 429 AppError with Retry-After set.
func TooManyRequestsError(retryAfter time.Duration) *AppError {
	return newAppError(CodeRateLimited, "too many requests", http.StatusTooManyRequests).WithRetryAfter(retryAfter)
}

// ServiceUnavailableErrorf returns a 503 AppError.
func ServiceUnavailableErrorf(format string, a ...interface{}) *AppError {
	return newAppError(CodeUnavailable, fmt.Sprintf(format, a...), http.StatusServiceUnavailable)
}

// DataResponse writes the envelope with statusCode as both HTTP status and body status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes data with status 200.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// ListResponse writes rows and their total.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse renders an AppError with its own status; anything else is a 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.RetryAfter > 0 {
			secs := int(appErr.RetryAfter.Round(time.Second) / time.Second)
			c.Response().Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		}
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}

package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"Argo/internal/service/metrics"
	xhttp "Argo/pkg/http"
)

// HTTPServiceBase is the shared JSON client for upstream analytics services.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	headers map[string]string
}

func NewHTTPServiceBase(baseURL string, timeout time.Duration, apiKey string) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	metrics.Register()
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		headers: headers,
	}
}

func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	if b.baseURL == "" {
		return fmt.Errorf("get %s: base url not configured", path)
	}
	start := time.Now()
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		Headers:     b.headers,
		QueryParams: query,
	}, dest)
	metrics.ObserveCall(path, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}

func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if b.baseURL == "" {
		return fmt.Errorf("post %s: base url not configured", path)
	}
	start := time.Now()
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: b.headers,
		Body:    payload,
	}, dest)
	metrics.ObserveCall(path, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries 429/5xx responses with linear backoff. Other errors return immediately.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload, dest interface{}, attempts int) error {
	var err error
	for i := 1; i <= max(attempts, 1); i++ {
		if err = b.PostJSON(ctx, path, payload, dest); err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if !errors.As(err, &se) || !se.Temporary() {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// ParseDirection accepts the vocabularies upstreams actually use.
func ParseDirection(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY", "BULLISH", "UP":
		return "LONG", true
	case "SHORT", "SELL", "BEARISH", "DOWN":
		return "SHORT", true
	case "NEUTRAL", "HOLD", "FLAT":
		return "NEUTRAL", true
	}
	return "", false
}

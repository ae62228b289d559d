package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	xhttp "Argo/pkg/http"
)

func TestObserveCall_LabelsErrorsByStatus(t *testing.T) {
	Register()
	Register()

	before503 := testutil.ToFloat64(AnalyticsErrors.WithLabelValues("/edge/predict", "503"))
	beforeTransport := testutil.ToFloat64(AnalyticsErrors.WithLabelValues("/edge/predict", "transport"))

	ObserveCall("/edge/predict", 20*time.Millisecond, nil)
	ObserveCall("/edge/predict", 30*time.Millisecond, fmt.Errorf("post: %w", &xhttp.StatusError{StatusCode: 503}))
	ObserveCall("/edge/predict", time.Second, errors.New("connection refused"))

	assert.Equal(t, before503+1, testutil.ToFloat64(AnalyticsErrors.WithLabelValues("/edge/predict", "503")))
	assert.Equal(t, beforeTransport+1, testutil.ToFloat64(AnalyticsErrors.WithLabelValues("/edge/predict", "transport")))
}

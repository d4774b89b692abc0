package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSweepMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepMetrics(reg)

	m.ObserveRun("subscription-expiry", OutcomeSuccess, 2*time.Second, 3, 1)
	m.ObserveRun("subscription-expiry", OutcomeFailure, time.Second, 0, 0)
	m.ObserveSkip("subscription-expiry")

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("subscription-expiry", OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("subscription-expiry", OutcomeFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("subscription-expiry", OutcomeSkipped)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.notifications.WithLabelValues("subscription-expiry")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.stepFailures.WithLabelValues("subscription-expiry")))
}

func TestHTTPMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg, "api")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/limits/{kind}/availability", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Handle("/metrics", Handler(reg))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/limits/students/availability", nil))
	require.Equal(t, http.StatusConflict, resp.Code)

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("api", http.MethodGet, "/api/v1/limits/{kind}/availability", "409")))

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "http_requests_total"))
}

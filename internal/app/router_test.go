package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/facturia/facturia/internal/observability"
	"github.com/facturia/facturia/internal/submission"
)

type noopSubmitter struct{}

func (noopSubmitter) Submit(context.Context, submission.Request) (submission.Result, error) {
	return submission.Result{AuthorizationCode: "XYZ", VoucherNumber: 1}, nil
}

func newTestRouter(t *testing.T, checks ...ReadinessCheck) (http.Handler, *observability.Metrics) {
	t.Helper()
	cfg := &Config{MaxBodyBytes: 256, RateLimitPerMinute: 0}
	metrics := observability.NewMetrics()
	return NewRouter(RouterParams{
		Logger:            zerolog.Nop(),
		Config:            cfg,
		SubmissionHandler: submission.NewHandler(noopSubmitter{}, nil, nil, zerolog.Nop()),
		Readiness:         checks,
		Metrics:           metrics,
	}), metrics
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestRootIsLiveness(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := serve(router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "FacturIA backend is running", rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = serve(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReadiness(t *testing.T) {
	healthy := ReadinessCheck{Name: "authority", Probe: func(context.Context) error { return nil }}
	router, _ := newTestRouter(t, healthy)
	rr := serve(router, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ready"}`, rr.Body.String())

	down := ReadinessCheck{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }}
	router, _ = newTestRouter(t, healthy, down)
	rr = serve(router, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"unavailable","dependency":"redis"}`, rr.Body.String())
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := serve(router, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = serve(router, http.MethodGet, "/api/create-invoice", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestOversizedBodyIsInvalidRequest(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"auth":{"certificate":"` + strings.Repeat("A", 1024) + `"}}`

	rr := serve(router, http.MethodPost, "/api/create-invoice", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid_request")
	require.Contains(t, rr.Body.String(), "exceeds 256 bytes")
}

func TestRequestsAreCounted(t *testing.T) {
	router, _ := newTestRouter(t)

	serve(router, http.MethodPost, "/api/create-invoice", `{}`)
	rr := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `facturia_http_requests_total{code="200",route="/api/create-invoice"} 1`)
}

package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/rewearify/rewearify/internal/auth"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "rewearify_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "rewearify_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveAuthOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveAuth("login", nil)
	metrics.ObserveAuth("login", auth.ErrInvalidCredentials)
	metrics.ObserveAuth("login", &auth.TransportError{Err: errors.New("refused")})
	metrics.ObserveAuth("signup", &auth.ValidationError{Fields: map[string]string{"email": "Email is required"}})

	body := scrape(t, metrics)
	for _, want := range []string{
		`rewearify_auth_attempts_total{operation="login",outcome="success"} 1`,
		`rewearify_auth_attempts_total{operation="login",outcome="rejected"} 1`,
		`rewearify_auth_attempts_total{operation="login",outcome="error"} 1`,
		`rewearify_auth_attempts_total{operation="signup",outcome="rejected"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestWatchSessionsGauge(t *testing.T) {
	metrics := NewMetrics()
	n := 3
	metrics.WatchSessions(func() int { return n })
	if body := scrape(t, metrics); !strings.Contains(body, "rewearify_portal_sessions_cached 3") {
		t.Fatalf("expected gauge, got: %s", body)
	}
	n = 5
	if body := scrape(t, metrics); !strings.Contains(body, "rewearify_portal_sessions_cached 5") {
		t.Fatalf("expected updated gauge, got: %s", body)
	}
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveAuth("login", nil)
	metrics.WatchSessions(func() int { return 1 })
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if metrics.Middleware(next) == nil {
		t.Fatal("middleware must pass through")
	}
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

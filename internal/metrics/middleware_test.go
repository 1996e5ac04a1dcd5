package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func queryRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/api/v1/datasets/{dataset}/select_rows", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "dataset") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": []any{}})
	})
	r.Post("/api/v1/datasets/{dataset}/select_groups", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func do(t *testing.T, r http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// The path label must be the chi route pattern, not the raw URL, so a
// thousand dataset names still produce one label pair.
func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := queryRouter()
	pattern := "/api/v1/datasets/{dataset}/select_rows"
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", pattern, "200"))

	for _, ds := range []string{"posts", "reviews", "tickets"} {
		if rr := do(t, r, "POST", "/api/v1/datasets/"+ds+"/select_rows"); rr.Code != 200 {
			t.Fatalf("select_rows on %s: status %d", ds, rr.Code)
		}
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", pattern, "200"))
	if got := after - before; got != 3 {
		t.Errorf("requests_total{%s} grew by %f, want 3", pattern, got)
	}
	for _, ds := range []string{"posts", "reviews", "tickets"} {
		raw := "/api/v1/datasets/" + ds + "/select_rows"
		if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", raw, "200")); v != 0 {
			t.Errorf("raw path %s leaked into labels: %f", raw, v)
		}
	}
}

func TestMiddleware_StatusLabels(t *testing.T) {
	r := queryRouter()

	tests := []struct {
		target  string
		pattern string
		status  string
	}{
		{"/api/v1/datasets/posts/select_rows", "/api/v1/datasets/{dataset}/select_rows", "200"},
		{"/api/v1/datasets/missing/select_rows", "/api/v1/datasets/{dataset}/select_rows", "404"},
		{"/api/v1/datasets/posts/select_groups", "/api/v1/datasets/{dataset}/select_groups", "412"},
	}

	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", tc.pattern, tc.status))
			do(t, r, "POST", tc.target)
			after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", tc.pattern, tc.status))
			if after-before != 1 {
				t.Errorf("requests_total{%s,%s} grew by %f, want 1", tc.pattern, tc.status, after-before)
			}
		})
	}
}

func TestMiddleware_ObservesDuration(t *testing.T) {
	r := queryRouter()
	do(t, r, "GET", "/health")

	if n := testutil.CollectAndCount(httpRequestDuration); n == 0 {
		t.Error("expected http_request_duration_seconds to have observations")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unknown"},
		{"/api/v1/datasets/{dataset}/select_rows", "/api/v1/datasets/{dataset}/select_rows"},
		{"/health", "/health"},
	}

	for _, tc := range tests {
		if got := normalizePath(tc.input); got != tc.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/allaspectsdev/chatproxy/internal/chat"
	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/upstream"
)

func newTestRouter(t *testing.T) (http.Handler, *observe.Recorder, *metrics.Collector) {
	t.Helper()
	rec := observe.NewRecorder()
	col := metrics.NewCollector(prometheus.NewRegistry())
	h := chat.NewHandler(config.DefaultConfig(), upstream.NewClient(rec, col), rec, col)
	return NewRouter(h, rec, col, false), rec, col
}

func TestRouter_AnyPathReachesChat(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, path := range []string{"/", "/api/chat", "/deeply/nested/path"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s: status %d, want 200", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status"`) {
			t.Errorf("GET %s: body %q", path, rr.Body.String())
		}
	}
}

func TestRouter_UnroutableMethodGetsCORS405(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, method := range []string{http.MethodPut, "PROPFIND"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(method, "/api/chat", nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status %d, want 405", method, rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != config.DefaultAllowedOrigin {
			t.Errorf("%s: missing CORS origin header", method)
		}
		if !strings.Contains(rr.Body.String(), `"error"`) {
			t.Errorf("%s: body %q", method, rr.Body.String())
		}
	}
}

func TestRequestID_GeneratedAndPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observe.RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rr.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected a uuid request ID, got %q", id)
	}
	if seen != id {
		t.Errorf("context request ID %q != header %q", seen, id)
	}
}

func TestRequestID_ReusesIncoming(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "edge-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "edge-123" {
		t.Errorf("request ID = %q, want edge-123", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); len(got) > maxRequestIDLen {
		t.Error("oversized incoming request ID should be replaced")
	}
}

func TestInstrument_RecordsRequests(t *testing.T) {
	router, rec, col := newTestRouter(t)

	for _, method := range []string{http.MethodGet, http.MethodOptions, "PROPFIND"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, "/", nil))
	}

	expected := `
# HELP chatproxy_requests_total Inbound requests by method and response status.
# TYPE chatproxy_requests_total counter
chatproxy_requests_total{method="GET",status="200"} 1
chatproxy_requests_total{method="OPTIONS",status="200"} 1
chatproxy_requests_total{method="OTHER",status="405"} 1
`
	if err := testutil.GatherAndCompare(col.Registry(), strings.NewReader(expected), "chatproxy_requests_total"); err != nil {
		t.Error(err)
	}

	events := rec.Find("http.request")
	if len(events) != 3 {
		t.Fatalf("expected 3 http.request events, got %d", len(events))
	}
	if events[0].RequestID == "" {
		t.Error("http.request event should carry the request ID")
	}
}

func TestNewMetrics_ServesRegistry(t *testing.T) {
	col := metrics.NewCollector(prometheus.NewRegistry())
	col.RecordRequest(http.MethodPost, http.StatusOK)
	srv := NewMetrics("127.0.0.1:0", col)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "chatproxy_requests_total") {
		t.Errorf("metrics output missing chatproxy_requests_total:\n%s", body)
	}
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRequest("POST", 200)
	c.RecordRequest("POST", 200)
	c.RecordRequest("DELETE", 405)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("POST", "200")); got != 2 {
		t.Errorf("POST 200: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("DELETE", "405")); got != 1 {
		t.Errorf("DELETE 405: got %v, want 1", got)
	}
}

func TestCollector_RecordFetch(t *testing.T) {
	c := NewCollector(nil)

	c.RecordFetch("shopify.products", OutcomeSuccess, 120*time.Millisecond)
	c.RecordFetch("shopify.products", OutcomeFallback, 3*time.Second)
	c.RecordFetch("shopify.policies", OutcomeSkipped, 0)

	if got := testutil.ToFloat64(c.fetches.WithLabelValues("shopify.products", OutcomeFallback)); got != 1 {
		t.Errorf("products fallback: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.fetches.WithLabelValues("shopify.policies", OutcomeSkipped)); got != 1 {
		t.Errorf("policies skipped: got %v, want 1", got)
	}
	// Only the two real calls are observed in the latency histogram.
	if got := testutil.CollectAndCount(c.fetchDuration); got != 1 {
		t.Errorf("histogram series: got %d, want 1", got)
	}
}

func TestCollector_RecordCompletionUsage(t *testing.T) {
	c := NewCollector(nil)

	c.RecordCompletionUsage("gpt-4o-mini", 900, 60, 0.000171)
	c.RecordCompletionUsage("gpt-4o-mini", 100, 40, 0)

	if got := testutil.ToFloat64(c.tokens.WithLabelValues("gpt-4o-mini", "prompt")); got != 1000 {
		t.Errorf("prompt tokens: got %v, want 1000", got)
	}
	if got := testutil.ToFloat64(c.tokens.WithLabelValues("gpt-4o-mini", "completion")); got != 100 {
		t.Errorf("completion tokens: got %v, want 100", got)
	}
	if got := testutil.ToFloat64(c.costUSD.WithLabelValues("gpt-4o-mini")); got != 0.000171 {
		t.Errorf("cost: got %v, want 0.000171", got)
	}
}

func TestCollector_ActiveRequests_Concurrent(t *testing.T) {
	c := NewCollector(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncrementActive()
			c.DecrementActive()
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(c.activeRequests); got != 0 {
		t.Errorf("active requests: got %v, want 0", got)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	c.RecordRequest("GET", 200)
	c.IncrementActive()
	c.DecrementActive()
	c.RecordFetch("completion", OutcomeSuccess, time.Second)
	c.RecordFallbackReply("completion")
	c.RecordCompletionUsage("gpt-4o-mini", 10, 5, 0.01)
	c.RecordFlaggedMessage("role_confusion")

	if c.Registry() != nil {
		t.Error("nil collector should have no registry")
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	c := NewCollector(nil)
	c.RecordFallbackReply("panic")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `chatproxy_fallback_replies_total{reason="panic"} 1`) {
		t.Errorf("metrics output missing fallback counter:\n%s", body)
	}
}

func TestCollector_RecordFlaggedMessage(t *testing.T) {
	c := NewCollector(nil)

	c.RecordFlaggedMessage("role_confusion")
	c.RecordFlaggedMessage("role_confusion")
	c.RecordFlaggedMessage("sensitive_data")

	if got := testutil.ToFloat64(c.flagged.WithLabelValues("role_confusion")); got != 2 {
		t.Errorf("role_confusion: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.flagged.WithLabelValues("sensitive_data")); got != 1 {
		t.Errorf("sensitive_data: got %v, want 1", got)
	}
}

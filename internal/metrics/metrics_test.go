package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("GET /api/sales", "GET", 200, 15*time.Millisecond)
	m.ObserveRequest("GET /api/sales", "GET", 200, 5*time.Millisecond)
	m.RecordCreated("sales")
	m.AssistantResult("not_configured")
	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved()
	m.Broadcast(true)
	m.Digest(false)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET /api/sales", "GET", "200")); got != 2 {
		t.Fatalf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.recordsCreated.WithLabelValues("sales")); got != 1 {
		t.Fatalf("records created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.subscribers); got != 1 {
		t.Fatalf("subscribers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.digests.WithLabelValues("error")); got != 1 {
		t.Fatalf("digest errors = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"opsdash_http_requests_total", "opsdash_assistant_requests_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("x", "GET", 500, time.Second)
	m.RecordCreated("field")
	m.AssistantResult("failed")
	m.SubscriberAdded()
	m.SubscriberRemoved()
	m.Broadcast(false)
	m.Digest(true)
	if m.Registry() != nil {
		t.Fatal("nil metrics must have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler code = %d, want 404", rec.Code)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordCreated("testing")
	if got := testutil.ToFloat64(b.recordsCreated.WithLabelValues("testing")); got != 0 {
		t.Fatalf("second registry saw %v records", got)
	}
}

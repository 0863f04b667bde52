package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterGetOrCreate(t *testing.T) {
	r := New()
	a := r.Counter("circuit_test_total", "test counter", "op")
	b := r.Counter("circuit_test_total", "ignored", "op")
	if a != b {
		t.Fatal("expected the same family for the same name")
	}
	a.WithLabelValues("connect").Inc()
	b.WithLabelValues("connect").Inc()
	if v := testutil.ToFloat64(a.WithLabelValues("connect")); v != 2 {
		t.Fatalf("expected 2, got %v", v)
	}
}

func TestTypeMismatchPanics(t *testing.T) {
	r := New()
	r.Gauge("circuit_mixed", "gauge")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on type mismatch")
		}
	}()
	r.Counter("circuit_mixed", "counter")
}

func TestHistogramDefaultBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("circuit_latency_seconds", "latency", nil)
	h.WithLabelValues().Observe(0.0002)
	if n := testutil.CollectAndCount(h); n != 1 {
		t.Fatalf("expected 1 series, got %d", n)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.Gauge("circuit_components", "components").WithLabelValues().Set(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "circuit_components 3") {
		t.Fatalf("metric missing from output:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("go collector missing")
	}
}

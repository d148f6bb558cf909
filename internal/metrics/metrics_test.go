package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveJob(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveJob(OutcomeProcessed, time.Now().Add(-time.Second))
	m.ObserveJob(OutcomeProcessed, time.Now())
	m.ObserveJob(OutcomeSkipped, time.Time{})

	if got := testutil.ToFloat64(m.JobsTotal.WithLabelValues(OutcomeProcessed)); got != 2 {
		t.Fatalf("expected 2 processed jobs, got %v", got)
	}
	if got := testutil.ToFloat64(m.JobsTotal.WithLabelValues(OutcomeSkipped)); got != 1 {
		t.Fatalf("expected 1 skipped job, got %v", got)
	}
	if got := testutil.CollectAndCount(m.JobDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SweepTotal.WithLabelValues(SweepRepublished).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `cloudnotes_ocr_sweep_total{action="republished"} 1`) {
		t.Fatalf("sweep counter missing from exposition:\n%s", rec.Body.String())
	}
}

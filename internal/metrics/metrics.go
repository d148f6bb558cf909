package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloudnotes"

// Job outcomes recorded by the worker pool.
const (
	OutcomeProcessed = "processed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeNacked    = "nacked"
)

// Sweep actions recorded by the sweeper.
const (
	SweepRequeued    = "requeued"
	SweepFailed      = "failed"
	SweepRepublished = "republished"
	SweepEnqueued    = "enqueued"
)

type Metrics struct {
	JobsTotal     *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	JobsInFlight  prometheus.Gauge
	SweepTotal    *prometheus.CounterVec
	URLsIssued    *prometheus.CounterVec
	Registrations *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_jobs_total",
			Help:      "OCR jobs handled by the worker pool, by outcome.",
		}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_job_duration_seconds",
			Help:      "Wall time of OCR jobs that reached the recognizer.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ocr_jobs_in_flight",
			Help:      "OCR jobs currently being processed.",
		}),
		SweepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_sweep_total",
			Help:      "Records touched by the stale sweeper, by action.",
		}, []string{"action"}),
		URLsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signed_urls_issued_total",
			Help:      "Signed URLs issued, by operation.",
		}, []string{"operation"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_registered_total",
			Help:      "Upload registrations, by result.",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.JobsTotal,
		m.JobDuration,
		m.JobsInFlight,
		m.SweepTotal,
		m.URLsIssued,
		m.Registrations,
	)
	return m
}

// NewDefault registers on a fresh registry that also carries the Go and
// process collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// Nop returns metrics bound to a private registry nobody scrapes.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveJob(outcome string, started time.Time) {
	m.JobsTotal.WithLabelValues(outcome).Inc()
	if !started.IsZero() {
		m.JobDuration.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

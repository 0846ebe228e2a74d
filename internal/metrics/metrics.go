// Package metrics holds the Prometheus collectors for the caller.
// Every method is nil-safe so components can run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all collectors
type Registry struct {
	reg *prometheus.Registry

	FeedFetches      *prometheus.CounterVec
	FeedCandidates   *prometheus.CounterVec
	FilterRejections *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CyclesSkipped    *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	GainReports      *prometheus.CounterVec
	StateSaves       *prometheus.CounterVec
	AlertedSize      prometheus.Gauge
	TrackingSize     prometheus.Gauge
}

// New creates a registry with every collector registered
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemcaller_feed_fetches_total",
			Help: "Feed fetch attempts by adapter and outcome",
		}, []string{"adapter", "outcome"}),
		FeedCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemcaller_feed_candidates_total",
			Help: "Candidates returned by each adapter",
		}, []string{"adapter"}),
		FilterRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemcaller_filter_rejections_total",
			Help: "Candidates rejected, by first failing predicate",
		}, []string{"predicate"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gemcaller_scan_cycle_seconds",
			Help:    "Scan cycle duration",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemcaller_loop_skipped_total",
			Help: "Loop triggers skipped because the previous run was in flight",
		}, []string{"loop"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemcaller_dispatches_total",
			Help: "Alert dispatch attempts by outcome",
		}, []string{"outcome"}),
		GainReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemcaller_gain_reports_total",
			Help: "Tracker evaluations that closed an entry, by outcome",
		}, []string{"outcome"}),
		StateSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemcaller_state_saves_total",
			Help: "State store writes by outcome",
		}, []string{"outcome"}),
		AlertedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemcaller_alerted_identities",
			Help: "Identities in the alerted set",
		}),
		TrackingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemcaller_tracking_entries",
			Help: "Entries in the tracking map",
		}),
	}

	r.reg.MustRegister(
		r.FeedFetches, r.FeedCandidates, r.FilterRejections, r.CycleDuration,
		r.CyclesSkipped, r.Dispatches, r.GainReports, r.StateSaves,
		r.AlertedSize, r.TrackingSize,
	)
	return r
}

// Handler serves the registry in Prometheus text format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Fetch(adapter, outcome string) {
	if r == nil {
		return
	}
	r.FeedFetches.WithLabelValues(adapter, outcome).Inc()
}

func (r *Registry) Candidates(adapter string, n int) {
	if r == nil {
		return
	}
	r.FeedCandidates.WithLabelValues(adapter).Add(float64(n))
}

func (r *Registry) Rejected(predicate string) {
	if r == nil {
		return
	}
	r.FilterRejections.WithLabelValues(predicate).Inc()
}

func (r *Registry) Cycle(d time.Duration) {
	if r == nil {
		return
	}
	r.CycleDuration.Observe(d.Seconds())
}

func (r *Registry) Skipped(loop string) {
	if r == nil {
		return
	}
	r.CyclesSkipped.WithLabelValues(loop).Inc()
}

func (r *Registry) Dispatch(outcome string) {
	if r == nil {
		return
	}
	r.Dispatches.WithLabelValues(outcome).Inc()
}

func (r *Registry) Report(outcome string) {
	if r == nil {
		return
	}
	r.GainReports.WithLabelValues(outcome).Inc()
}

func (r *Registry) Save(ok bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.StateSaves.WithLabelValues(outcome).Inc()
}

func (r *Registry) StateSize(alerted, tracking int) {
	if r == nil {
		return
	}
	r.AlertedSize.Set(float64(alerted))
	r.TrackingSize.Set(float64(tracking))
}

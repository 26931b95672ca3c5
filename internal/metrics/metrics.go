// Package metrics exposes Prometheus counters for discovery, verification
// and collaborator calls. A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "competitor_intel"

// Recorder holds the engine's collectors, registered on an injected registry.
type Recorder struct {
	discoveryOutcomes *prometheus.CounterVec
	verifyStatuses    *prometheus.CounterVec
	providerCalls     *prometheus.CounterVec
	searchCalls       *prometheus.CounterVec
	searchSpend       *prometheus.CounterVec
	reconciled        *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		discoveryOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "fields_total",
			Help:      "Fields processed by source discovery, by outcome",
		}, []string{"outcome"}),
		verifyStatuses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "fields_total",
			Help:      "Fields checked by verification, by verdict",
		}, []string{"status"}),
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Field-value provider queries, by provider and status",
		}, []string{"provider", "status"}),
		searchCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "calls_total",
			Help:      "Grounded search calls, by engine and status",
		}, []string{"engine", "status"}),
		searchSpend: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "spend_usd_total",
			Help:      "Estimated grounded search spend in USD, by engine",
		}, []string{"engine"}),
		reconciled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "fields_total",
			Help:      "Reconciled fields, by winning method",
		}, []string{"method"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Per-entity run duration, by operation",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"op"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// DiscoveryOutcome counts one field's discovery outcome
// (persisted, skipped, failed).
func (r *Recorder) DiscoveryOutcome(outcome string) {
	if r == nil {
		return
	}
	r.discoveryOutcomes.WithLabelValues(outcome).Inc()
}

// VerificationStatus counts one verification verdict.
func (r *Recorder) VerificationStatus(s string) {
	if r == nil {
		return
	}
	r.verifyStatuses.WithLabelValues(s).Inc()
}

// ProviderCall counts a provider query.
func (r *Recorder) ProviderCall(provider string, err error) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, status(err)).Inc()
}

// SearchCall counts a grounded search call.
func (r *Recorder) SearchCall(engine string, err error) {
	if r == nil {
		return
	}
	r.searchCalls.WithLabelValues(engine, status(err)).Inc()
}

// SearchSpend adds the estimated cost of an answered search call.
func (r *Recorder) SearchSpend(engine string, usd float64) {
	if r == nil || usd <= 0 {
		return
	}
	r.searchSpend.WithLabelValues(engine).Add(usd)
}

// Reconciled counts a reconciled field by method.
func (r *Recorder) Reconciled(method string) {
	if r == nil {
		return
	}
	r.reconciled.WithLabelValues(method).Inc()
}

// ObserveRun records how long one entity run took.
func (r *Recorder) ObserveRun(op string, d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.WithLabelValues(op).Observe(d.Seconds())
}

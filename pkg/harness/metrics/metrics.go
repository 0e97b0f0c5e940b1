// Package metrics exposes per-run counters and a latency histogram as
// Prometheus collectors, so a long-running benchmark harness can be
// scraped while it works instead of only reporting a summary at exit.
// The harness records Operations and OpLatency; Aborts, LockAcqs and
// Retries are registered but nothing in the module increments them.
// Per-thread statistics live in each variant's ThreadData, not here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds one run's collectors, labeled by run ID and variant
// name so multiple runs scraped by the same process don't collide.
type Registry struct {
	reg *prometheus.Registry

	Operations    *prometheus.CounterVec
	Aborts        *prometheus.CounterVec
	LockAcqs      prometheus.Counter
	OpLatency     prometheus.Histogram
	Retries       prometheus.Counter
}

// New creates and registers a fresh collector set for one benchmark run.
func New(runID, variant string) *Registry {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"run_id": runID, "variant": variant}

	r := &Registry{
		reg: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ctreebench",
			Name:        "operations_total",
			Help:        "Completed tree operations, by kind (lookup/insert/delete) and outcome.",
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),
		Aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ctreebench",
			Name:        "aborts_total",
			Help:        "Transaction/validation aborts, classified by category.",
			ConstLabels: constLabels,
		}, []string{"category"}),
		LockAcqs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ctreebench",
			Name:        "fallback_lock_acquisitions_total",
			Help:        "Times an operation escalated to the global fallback lock.",
			ConstLabels: constLabels,
		}),
		OpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ctreebench",
			Name:        "operation_latency_seconds",
			Help:        "Per-operation wall-clock latency.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ctreebench",
			Name:        "retries_total",
			Help:        "Optimistic-path retries before either success or fallback escalation.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(r.Operations, r.Aborts, r.LockAcqs, r.OpLatency, r.Retries)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for wiring into an
// HTTP /metrics endpoint, should a caller want one.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

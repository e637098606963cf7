// Package metrics provides Prometheus collectors for the screening pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "compliance"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheRequests    *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
	rateLimitWait    *prometheus.HistogramVec
	verdicts         *prometheus.CounterVec
	degraded         *prometheus.CounterVec
	exclusions       *prometheus.CounterVec
	auditFailures    prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by namespace, tier and result.",
		}, []string{"namespace", "tier", "result"}),
		providerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Latency of provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		providerRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Retries after transient provider failures.",
		}, []string{"provider"}),
		rateLimitWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a rate-limit token.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"resource"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "verdicts_total",
			Help:      "Verdicts produced by the gateway, by source.",
		}, []string{"verdict", "source"}),
		degraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "degraded_total",
			Help:      "Lookups degraded to unknown after retries were exhausted.",
		}, []string{"provider"}),
		exclusions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "exclusions_total",
			Help:      "Tickers excluded by the filter, by reason.",
		}, []string{"reason"}),
		auditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "append_failures_total",
			Help:      "Audit records that could not be persisted.",
		}),
	}
}

func (m *Metrics) CacheResult(ns, tier, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(ns, tier, result).Inc()
}

func (m *Metrics) ProviderRequest(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ProviderRetry(provider string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(provider).Inc()
}

func (m *Metrics) RateLimitWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWait.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *Metrics) Verdict(verdict, source string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict, source).Inc()
}

func (m *Metrics) Degraded(provider string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(provider).Inc()
}

func (m *Metrics) Exclusion(reason string) {
	if m == nil {
		return
	}
	m.exclusions.WithLabelValues(reason).Inc()
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

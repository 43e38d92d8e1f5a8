// Package metrics provides Prometheus instrumentation for the Heron server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only Heron metrics appear on the /metrics endpoint.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the Heron server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	EvaluationsTotal    *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	RewardsTotal        prometheus.Counter
	PointsGranted       prometheus.Counter
	BadgesEarnedTotal   *prometheus.CounterVec
	LedgerDegradedTotal prometheus.Counter
	ScoreCacheHits      prometheus.Counter
	ScoreCacheMisses    prometheus.Counter
	RuleSetsLoaded      prometheus.Gauge
}

// New creates and registers all Heron metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heron_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heron_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heron_score_evaluations_total",
			Help: "Total number of score evaluations, by resulting tier.",
		}, []string{"tier"}),

		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heron_score_evaluation_duration_seconds",
			Help:    "Score evaluation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		RewardsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heron_rewards_total",
			Help: "Total number of reward computations.",
		}),

		PointsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heron_points_granted_total",
			Help: "Total reward points granted.",
		}),

		BadgesEarnedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heron_badges_earned_total",
			Help: "Total number of first-time badge grants, by badge.",
		}, []string{"badge_id"}),

		LedgerDegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heron_ledger_degraded_total",
			Help: "Total number of reward computations completed with a degraded badge ledger.",
		}),

		ScoreCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heron_score_cache_hits_total",
			Help: "Total number of memoized score results served from cache.",
		}),

		ScoreCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heron_score_cache_misses_total",
			Help: "Total number of score evaluations that missed the cache.",
		}),

		RuleSetsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heron_rule_sets_loaded",
			Help: "Number of rule set versions currently loaded in the engine.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.RewardsTotal,
		m.PointsGranted,
		m.BadgesEarnedTotal,
		m.LedgerDegradedTotal,
		m.ScoreCacheHits,
		m.ScoreCacheMisses,
		m.RuleSetsLoaded,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one HTTP request with its latency.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, seconds float64) {
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(seconds)
}

// RecordEvaluation records one score evaluation with its resulting tier.
func (m *Metrics) RecordEvaluation(tier string, seconds float64) {
	m.EvaluationsTotal.WithLabelValues(tier).Inc()
	m.EvaluationDuration.Observe(seconds)
}

// RecordReward records one reward computation.
func (m *Metrics) RecordReward(points int, newBadges []string, degraded bool) {
	m.RewardsTotal.Inc()
	m.PointsGranted.Add(float64(points))
	for _, badge := range newBadges {
		m.BadgesEarnedTotal.WithLabelValues(badge).Inc()
	}
	if degraded {
		m.LedgerDegradedTotal.Inc()
	}
}

// RecordCacheHit increments the score cache hit counter.
func (m *Metrics) RecordCacheHit() {
	m.ScoreCacheHits.Inc()
}

// RecordCacheMiss increments the score cache miss counter.
func (m *Metrics) RecordCacheMiss() {
	m.ScoreCacheMisses.Inc()
}

// SetRuleSetsLoaded updates the loaded rule set gauge.
func (m *Metrics) SetRuleSetsLoaded(n int) {
	m.RuleSetsLoaded.Set(float64(n))
}

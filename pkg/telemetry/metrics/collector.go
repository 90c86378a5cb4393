package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/covenant/pkg/config"
	"mercator-hq/covenant/pkg/policy/engine"
	"mercator-hq/covenant/pkg/rules"
)

// Collector owns covenant's Prometheus metrics. It implements
// engine.Observer, so passing it to engine.WithObserver records every
// decision and rule set change.
type Collector struct {
	registry *prometheus.Registry

	decisions      *prometheus.CounterVec
	duration       prometheus.Histogram
	riskScore      prometheus.Histogram
	failedRules    *prometheus.CounterVec
	errors         *prometheus.CounterVec
	rulesTotal     prometheus.Gauge
	rulesLoaded    *prometheus.GaugeVec
	rulesByLevel   *prometheus.GaugeVec
	ruleSetUpdates prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	policySyncs    *prometheus.CounterVec
	auditSnapshots *prometheus.CounterVec
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates and registers all metrics. A nil registry gets a
// fresh one with the Go runtime and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	ns := config.DefaultMetricsNamespace
	if cfg != nil && cfg.Namespace != "" {
		ns = cfg.Namespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,

		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "decisions_total",
			Help:      "Enforcement decisions by status.",
		}, []string{"status"}),

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "enforcement_duration_seconds",
			Help:      "Time from request to logged decision.",
			// Enforcement should finish well inside its 100ms budget.
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),

		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "risk_score",
			Help:      "Aggregated risk score per decision.",
			Buckets:   []float64{0, 5, 10, 20, 30, 50, 100},
		}),

		failedRules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rule_failures_total",
			Help:      "Applicable rules that failed, by category and compliance level.",
		}, []string{"category", "compliance_level"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "enforcement_errors_total",
			Help:      "Enforcement failures by the last state reached.",
		}, []string{"state"}),

		rulesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "rules_loaded",
			Help:      "Rules in the active rule set.",
		}),

		rulesLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "rules_loaded_by_category",
			Help:      "Rules in the active rule set by category.",
		}, []string{"category"}),

		rulesByLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "rules_loaded_by_level",
			Help:      "Rules in the active rule set by compliance level.",
		}, []string{"compliance_level"}),

		ruleSetUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rule_set_updates_total",
			Help:      "Rule set publications.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		policySyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "policy_syncs_total",
			Help:      "Policy source syncs by outcome.",
		}, []string{"outcome"}),

		auditSnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "audit_snapshots_total",
			Help:      "Scheduled audit snapshots by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		c.decisions, c.duration, c.riskScore, c.failedRules, c.errors,
		c.rulesTotal, c.rulesLoaded, c.rulesByLevel, c.ruleSetUpdates, c.httpRequests, c.httpDuration,
		c.policySyncs, c.auditSnapshots,
	)
	return c
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveEnforcement records a completed decision.
func (c *Collector) ObserveEnforcement(d *engine.Decision, duration time.Duration) {
	c.decisions.WithLabelValues(d.Status).Inc()
	c.duration.Observe(duration.Seconds())
	c.riskScore.Observe(d.RiskScore)
	for _, r := range d.Validation.Results {
		if !r.Passed {
			c.failedRules.WithLabelValues(categoryLabel(r.Category), string(r.Level)).Inc()
		}
	}
}

// ObserveEnforcementError records a request that produced no decision.
func (c *Collector) ObserveEnforcementError(err *engine.EnforcementError, duration time.Duration) {
	c.errors.WithLabelValues(err.State.String()).Inc()
	c.duration.Observe(duration.Seconds())
}

// ObserveRuleSet replaces the loaded-rules gauge with summary.
func (c *Collector) ObserveRuleSet(summary rules.Summary) {
	c.ruleSetUpdates.Inc()
	c.rulesLoaded.Reset()

	c.rulesByLevel.Reset()
	c.rulesTotal.Set(float64(summary.TotalRules))
	for cat, n := range summary.ByCategory {
		c.rulesLoaded.WithLabelValues(categoryLabel(cat)).Set(float64(n))
	}
	for lvl, n := range summary.ByLevel {
		c.rulesByLevel.WithLabelValues(string(lvl)).Set(float64(n))
	}
}

// categoryLabel lowercases a rule category for use as a label value.
func categoryLabel(c rules.Category) string {
	return strings.ToLower(string(c))
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(route string, code int, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, statusText(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObservePolicySync records the outcome of a policy source sync.
func (c *Collector) ObservePolicySync(err error) {
	c.policySyncs.WithLabelValues(outcome(err)).Inc()
}

// ObserveAuditSnapshot records the outcome of a scheduled snapshot.
func (c *Collector) ObserveAuditSnapshot(err error) {
	c.auditSnapshots.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "failure"
	}
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

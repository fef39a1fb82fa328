// Package metrics exposes policy decision counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/busgate/internal/model"
)

// Entry points a decision can come from.
const (
	EntryOperation = "operation"
	EntryMethod    = "method"
)

// Metrics holds the busgate collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg prometheus.Gatherer

	// Decisions by entry point and verdict.
	Decisions *prometheus.CounterVec

	// Tool requests by tool name and outcome (allowed/denied).
	ToolRequests *prometheus.CounterVec

	// Retained audit records.
	AuditRecords prometheus.Gauge

	// Keys tracked by the rate limiter.
	RateLimitKeys prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a private registry
// that nothing scrapes.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "busgate_decisions_total",
			Help: "Policy decisions by entry point and verdict.",
		}, []string{"entry", "verdict"}),

		ToolRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "busgate_tool_requests_total",
			Help: "Tool requests by tool and outcome.",
		}, []string{"tool", "outcome"}),

		AuditRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "busgate_audit_records",
			Help: "Audit records currently retained in memory.",
		}),

		RateLimitKeys: f.NewGauge(prometheus.GaugeOpts{
			Name: "busgate_rate_limit_keys",
			Help: "Keys currently tracked by the rate limiter.",
		}),
	}
}

// ObserveDecision counts one decision. For operation checks the tool name
// is also counted, which gives per-tool request statistics.
func (m *Metrics) ObserveDecision(entry, tool string, v model.Verdict) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(entry, string(v)).Inc()
	if entry != EntryOperation {
		return
	}
	outcome := "allowed"
	if v.Denied() {
		outcome = "denied"
	}
	m.ToolRequests.WithLabelValues(tool, outcome).Inc()
}

// SetStoreSizes updates the gauges for the engine's in-memory stores.
func (m *Metrics) SetStoreSizes(auditRecords, rateLimitKeys int) {
	if m == nil {
		return
	}
	m.AuditRecords.Set(float64(auditRecords))
	m.RateLimitKeys.Set(float64(rateLimitKeys))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Package telemetry holds the process-wide Prometheus metrics for the
// assistant pipeline.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the full instrument set. Register once via Get; the
// registry is exposed on /metrics by the server.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram

	PlansTotal         *prometheus.CounterVec
	PlanFallbacksTotal prometheus.Counter
	PlanCacheTotal     *prometheus.CounterVec

	ToolCallsTotal *prometheus.CounterVec
	ToolDuration   *prometheus.HistogramVec

	IterationsPerRequest prometheus.Histogram
	AbortedRunsTotal     prometheus.Counter

	LLMTokensTotal *prometheus.CounterVec
	LLMCostTotal   prometheus.Counter
}

var (
	once     sync.Once
	instance *Metrics
)

// Get returns the singleton metrics set, registering instruments on
// first call.
func Get() *Metrics {
	once.Do(func() {
		reg := prometheus.NewRegistry()
		m := &Metrics{registry: reg}

		m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "requests_total",
			Help:      "Chat requests by outcome (concluded, aborted, error).",
		}, []string{"outcome"})
		m.RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowpilot",
			Name:      "request_duration_seconds",
			Help:      "End-to-end chat request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		})

		m.PlansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "plans_total",
			Help:      "Produced plans by query type.",
		}, []string{"query_type"})
		m.PlanFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "plan_fallbacks_total",
			Help:      "Plans replaced by the deterministic fallback plan.",
		})
		m.PlanCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "plan_cache_total",
			Help:      "Plan cache lookups by result (hit, miss).",
		}, []string{"result"})

		m.ToolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome (ok, error).",
		}, []string{"tool", "outcome"})
		m.ToolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowpilot",
			Name:      "tool_duration_seconds",
			Help:      "Per-tool invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"})

		m.IterationsPerRequest = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowpilot",
			Name:      "iterations_per_request",
			Help:      "Tool loop iterations before concluding.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		})
		m.AbortedRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "aborted_runs_total",
			Help:      "Runs that hit the iteration cap or were cancelled.",
		})

		m.LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by model and direction (prompt, completion).",
		}, []string{"model", "direction"})
		m.LLMCostTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowpilot",
			Name:      "llm_cost_dollars_total",
			Help:      "Estimated cumulative LLM spend in dollars.",
		})

		reg.MustRegister(
			m.RequestsTotal, m.RequestDuration,
			m.PlansTotal, m.PlanFallbacksTotal, m.PlanCacheTotal,
			m.ToolCallsTotal, m.ToolDuration,
			m.IterationsPerRequest, m.AbortedRunsTotal,
			m.LLMTokensTotal, m.LLMCostTotal,
		)
		instance = m
	})
	return instance
}

// Registry exposes the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}

// Package metrics exposes Prometheus collectors for LLM usage, retrieval,
// and workflow progress.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ghostline"

var (
	// LLM call metrics
	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"provider", "model", "agent", "status"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total tokens used for LLM calls",
		},
		[]string{"provider", "model", "type"}, // type: prompt/completion
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	LLMCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Total LLM spend in USD",
		},
		[]string{"provider", "model"},
	)

	LLMFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "fallbacks_total",
			Help:      "Total provider failovers",
		},
		[]string{"from", "to"},
	)

	// Retrieval metrics
	RetrievalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Total retrieval searches",
		},
		[]string{"mode", "status"}, // mode: vector/keyword
	)

	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "Retrieval search duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	// Workflow metrics
	WorkflowPhaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "phase_total",
			Help:      "Workflow phase executions by outcome",
		},
		[]string{"phase", "status"},
	)

	WorkflowPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "phase_duration_seconds",
			Help:      "Workflow phase duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	ChapterGateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chapter",
			Name:      "gate_total",
			Help:      "Chapter quality gate outcomes",
		},
		[]string{"gate", "result"}, // gate: voice/fact/cohesion/citations/style, result: pass/fail
	)

	ChapterWordCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chapter",
			Name:      "word_count",
			Help:      "Finalized chapter word count",
			Buckets:   []float64{500, 1000, 2000, 3000, 5000, 10000},
		},
	)

	ActiveWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "active",
			Help:      "Currently executing workflow runs",
		},
	)
)

// ObserveLLMCall records the standard collectors for one call.
func ObserveLLMCall(provider, model, agent string, promptTokens, completionTokens int, costUSD float64, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	LLMCallsTotal.WithLabelValues(provider, model, agent, status).Inc()
	LLMTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	LLMTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	LLMCallDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if costUSD > 0 {
		LLMCostTotal.WithLabelValues(provider, model).Add(costUSD)
	}
}

// ObserveGate records one quality-gate outcome.
func ObserveGate(gate string, passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	ChapterGateTotal.WithLabelValues(gate, result).Inc()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision metrics
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_decisions_total",
			Help: "Total number of engine decisions",
		},
		[]string{"decision_type", "outcome_category"},
	)

	DecisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskpilot_decision_duration_seconds",
			Help:    "End-to-end decision duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"decision_type"},
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskpilot_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	// LLM metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_llm_calls_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "status"}, // status: success|error|rate_limited|timeout
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskpilot_llm_latency_seconds",
			Help:    "LLM provider latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_llm_tokens_total",
			Help: "Total tokens used across LLM calls",
		},
		[]string{"provider", "type"}, // type: input|output
	)

	// Logging write path
	LogWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_log_writes_total",
			Help: "Total decision/tool log writes",
		},
		[]string{"kind", "status"}, // kind: decision|tool_invocation
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskpilot_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"worker"},
	)

	RetentionDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskpilot_retention_deleted_total",
			Help: "Total decision logs removed by the retention sweep",
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(Decisions)
	prometheus.MustRegister(DecisionDuration)

	prometheus.MustRegister(ToolExecutions)
	prometheus.MustRegister(ToolLatency)

	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(LLMLatency)
	prometheus.MustRegister(LLMTokens)

	prometheus.MustRegister(LogWrites)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(RetentionDeleted)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDecision records a completed engine decision
func RecordDecision(decisionType, outcomeCategory string, duration time.Duration) {
	Decisions.WithLabelValues(decisionType, outcomeCategory).Inc()
	DecisionDuration.WithLabelValues(decisionType).Observe(duration.Seconds())
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordLLMCall records an LLM provider call
func RecordLLMCall(provider, status string, latency time.Duration, inputTokens, outputTokens int) {
	LLMCalls.WithLabelValues(provider, status).Inc()
	LLMLatency.WithLabelValues(provider).Observe(latency.Seconds())

	if inputTokens > 0 {
		LLMTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// RecordLogWrite records a log store write attempt
func RecordLogWrite(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	LogWrites.WithLabelValues(kind, status).Inc()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
}

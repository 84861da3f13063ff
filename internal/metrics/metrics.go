package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selam_messages_total",
			Help: "Total inbound messages by source and response source",
		},
		[]string{"source", "response_source"},
	)

	BrainLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "selam_brain_latency_seconds",
			Help: "Reasoning-brain call latency in seconds",
		},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selam_tool_calls_total",
			Help: "Capability invocations by name and outcome",
		},
		[]string{"tool", "status"},
	)

	FallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selam_fallback_total",
			Help: "Requests answered by the deterministic fallback pipeline",
		},
	)

	RenderJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selam_render_jobs_total",
			Help: "Audio render jobs by outcome",
		},
		[]string{"status"},
	)

	RenderInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "selam_render_jobs_in_flight",
			Help: "Audio render jobs currently running",
		},
	)
)

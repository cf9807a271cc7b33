package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	llmmetrics "agentforge/pkg/llm/middleware/metrics"
)

// Collector owns a registry with the LLM request metrics and the
// orchestrator's own tool, index and session metrics.
type Collector struct {
	registry *prometheus.Registry
	llm      *llmmetrics.PrometheusRecorder

	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	indexRebuilds prometheus.Counter
	indexChunks   prometheus.Gauge
	indexDuration prometheus.Histogram
	sessions      *prometheus.CounterVec
	preflight     *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, including the Go
// runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		llm:      llmmetrics.NewPrometheusRecorder(reg),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentforge_tool_calls_total",
				Help: "Tool calls executed by the gateway, by tool and outcome",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentforge_tool_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"tool"},
		),
		indexRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentforge_index_rebuilds_total",
			Help: "Completed retrieval index rebuilds",
		}),
		indexChunks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentforge_index_chunks",
			Help: "Chunks in the current retrieval index snapshot",
		}),
		indexDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentforge_index_rebuild_duration_seconds",
			Help:    "Duration of retrieval index rebuilds in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentforge_sessions_total",
				Help: "Agent sessions that reached a terminal or review state, by status",
			},
			[]string{"status"},
		),
		preflight: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentforge_preflight_runs_total",
				Help: "Pre-flight validation runs, by result",
			},
			[]string{"result"},
		),
	}
}

// LLMRecorder returns the recorder for the LLM metrics middleware.
func (c *Collector) LLMRecorder() llmmetrics.Recorder {
	return c.llm
}

// ObserveTool records one tool call. Its signature matches tools.Observer.
func (c *Collector) ObserveTool(tool string, failed bool, took time.Duration) {
	status := "ok"
	if failed {
		status = "error"
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(took.Seconds())
}

// ObserveRebuild records a completed index rebuild.
func (c *Collector) ObserveRebuild(chunks int, took time.Duration) {
	c.indexRebuilds.Inc()
	c.indexChunks.Set(float64(chunks))
	c.indexDuration.Observe(took.Seconds())
}

// ObserveSession records a session reaching status.
func (c *Collector) ObserveSession(status string) {
	c.sessions.WithLabelValues(status).Inc()
}

// ObservePreflight records a finished pre-flight run.
func (c *Collector) ObservePreflight(hasErrors bool) {
	result := "pass"
	if hasErrors {
		result = "fail"
	}
	c.preflight.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

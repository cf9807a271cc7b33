package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names shared with the query side in pkg/metrics.
const (
	MetricRequestsTotal   = "agentforge_llm_requests_total"
	MetricTokensTotal     = "agentforge_llm_tokens_total"
	MetricRequestDuration = "agentforge_llm_request_duration_seconds"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the LLM metrics with reg. A nil reg uses
// the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Total number of LLM requests by model, session, state, and status",
			},
			[]string{"model", "session_id", "state", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTokensTotal,
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "session_id", "state", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRequestDuration,
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "session_id", "state"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, sessionID, state string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, sessionID, state, status, errorType).Inc()
	if success {
		p.tokensTotal.WithLabelValues(model, sessionID, state, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, sessionID, state, "completion").Add(float64(completionTokens))
	}
	p.requestDuration.WithLabelValues(model, sessionID, state).Observe(duration.Seconds())
}

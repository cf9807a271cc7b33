// Package metrics exposes the orchestrator's Prometheus metrics and queries
// aggregated usage back from a Prometheus server.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	llmmetrics "agentforge/pkg/llm/middleware/metrics"
)

// SessionUsage represents aggregated token usage for one session.
type SessionUsage struct {
	SessionID        string `json:"session_id"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// scalar runs query and returns the first sample's value, or 0 when the result is empty.
func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetSessionUsage retrieves aggregated token usage for a session across all
// models and states.
func (q *QueryService) GetSessionUsage(ctx context.Context, sessionID string) (*SessionUsage, error) {
	return q.usage(ctx, sessionID, fmt.Sprintf(`session_id=%q`, sessionID))
}

// GetSessionUsageByModel retrieves usage for a session broken down by model.
func (q *QueryService) GetSessionUsageByModel(ctx context.Context, sessionID string) (map[string]*SessionUsage, error) {
	modelsQuery := fmt.Sprintf(`group by (model) (%s{session_id=%q})`, llmmetrics.MetricTokensTotal, sessionID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	result := make(map[string]*SessionUsage)
	vector, _ := modelsResult.(model.Vector)
	for _, sample := range vector {
		modelName, ok := sample.Metric["model"]
		if !ok {
			continue
		}
		usage, err := q.usage(ctx, sessionID, fmt.Sprintf(`session_id=%q, model=%q`, sessionID, string(modelName)))
		if err != nil {
			return nil, err
		}
		result[string(modelName)] = usage
	}
	return result, nil
}

func (q *QueryService) usage(ctx context.Context, sessionID, selector string) (*SessionUsage, error) {
	usage := &SessionUsage{SessionID: sessionID}

	prompt, err := q.scalar(ctx, fmt.Sprintf(`sum(%s{%s, type="prompt"})`, llmmetrics.MetricTokensTotal, selector))
	if err != nil {
		return nil, err
	}
	completion, err := q.scalar(ctx, fmt.Sprintf(`sum(%s{%s, type="completion"})`, llmmetrics.MetricTokensTotal, selector))
	if err != nil {
		return nil, err
	}
	requests, err := q.scalar(ctx, fmt.Sprintf(`sum(%s{%s})`, llmmetrics.MetricRequestsTotal, selector))
	if err != nil {
		return nil, err
	}

	usage.PromptTokens = int64(prompt)
	usage.CompletionTokens = int64(completion)
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	usage.Requests = int64(requests)
	return usage, nil
}

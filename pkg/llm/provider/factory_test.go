package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/config"
	"agentforge/pkg/llm"
	"agentforge/pkg/llm/middleware/metrics"
)

func TestNewRawClient(t *testing.T) {
	tests := []struct {
		provider string
		model    string
	}{
		{config.ProviderAnthropic, "claude-sonnet-4-5"},
		{config.ProviderOpenAI, "gpt-5"},
		{config.ProviderGoogle, "gemini-2.5-pro"},
		{config.ProviderOllama, "qwen2.5-coder:7b"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := NewRawClient(tt.provider, tt.model, "key-or-host")
			require.NoError(t, err)
			assert.Equal(t, tt.model, c.GetModelName())
		})
	}

	_, err := NewRawClient("acme", "m", "k")
	assert.Error(t, err)
}

func TestCreateClientNeedsKey(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "")
	cfg := config.Default()
	cfg.LLM.Model = "claude-sonnet-4-5"
	cfg.LLM.Provider = config.ProviderAnthropic

	_, err := NewFactory(cfg, nil).CreateClient(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvAnthropicAPIKey)

	t.Setenv(config.EnvAnthropicAPIKey, "sk-test")
	c, err := NewFactory(cfg, nil).CreateClient(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", c.GetModelName())
}

func TestWrapRecordsMetrics(t *testing.T) {
	rec := metrics.NewInternalRecorder()
	f := NewFactory(config.Default(), rec)
	client := f.Wrap(llm.NewMockClient([]llm.CompletionResponse{{Content: "ok", Usage: llm.Usage{InputTokens: 5, OutputTokens: 1}}}, nil),
		metrics.StaticLabels{SessionID: "abc", State: "planning"}, nil)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	got := rec.GetSessionMetrics("abc")
	require.NotNil(t, got)
	assert.Equal(t, int64(6), got.TotalTokens)
}

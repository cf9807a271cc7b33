// Package provider builds LLM clients for the configured provider with the
// standard middleware chain applied.
package provider

import (
	"fmt"

	"agentforge/pkg/config"
	"agentforge/pkg/llm"
	"agentforge/pkg/llm/internal/llmimpl/anthropic"
	"agentforge/pkg/llm/internal/llmimpl/google"
	"agentforge/pkg/llm/internal/llmimpl/ollama"
	"agentforge/pkg/llm/internal/llmimpl/openai"
	"agentforge/pkg/llm/middleware/logging"
	"agentforge/pkg/llm/middleware/metrics"
	"agentforge/pkg/llm/middleware/timeout"
	"agentforge/pkg/logx"
)

// Factory creates LLM clients with properly configured middleware chains.
type Factory struct {
	cfg      *config.Config
	recorder metrics.Recorder
}

// NewFactory creates a factory. A nil recorder disables metrics.
func NewFactory(cfg *config.Config, recorder metrics.Recorder) *Factory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Factory{cfg: cfg, recorder: recorder}
}

// CreateClient creates a client for the configured model. labels attach the
// calling session's ID and state to recorded metrics.
func (f *Factory) CreateClient(labels metrics.LabelProvider, logger *logx.Logger) (llm.Client, error) {
	provider := f.cfg.LLM.Provider
	if provider == "" {
		provider = config.ProviderForModel(f.cfg.LLM.Model)
	}
	key, err := f.cfg.APIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}
	raw, err := NewRawClient(provider, f.cfg.LLM.Model, key)
	if err != nil {
		return nil, err
	}
	return f.Wrap(raw, labels, logger), nil
}

// Wrap applies the middleware chain to client:
// Metrics -> Logging -> Timeout -> raw client.
func (f *Factory) Wrap(client llm.Client, labels metrics.LabelProvider, logger *logx.Logger) llm.Client {
	if logger == nil {
		logger = logx.NewLogger("llm")
	}
	var metricsLogger *logx.Logger
	if f.cfg.Debug.Enabled {
		metricsLogger = logger
	}
	return llm.Chain(client,
		metrics.Middleware(f.recorder, nil, labels, metricsLogger),
		logging.Middleware(logger, f.cfg.LLM.DebugPrompt),
		timeout.Middleware(f.cfg.LLM.Timeout),
	)
}

// NewRawClient creates an unwrapped client. For Ollama, key is the host URL.
func NewRawClient(provider, model, key string) (llm.Client, error) {
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(key, model), nil
	case config.ProviderOpenAI:
		return openai.NewOfficialClientWithModel(key, model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(key, model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(key, model), nil
	}
	return nil, fmt.Errorf("unsupported provider: %q", provider)
}

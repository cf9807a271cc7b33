package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/config"
)

func TestCheckEnvironmentMissingKey(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "")
	cfg := config.Default()
	cfg.ProjectDir = t.TempDir()

	results := CheckEnvironment(context.Background(), cfg)
	assert.False(t, results.Passed)
	assert.Contains(t, results.Summary, "1 of 2")
	assert.Contains(t, FormatEnvResults(results), "ANTHROPIC_API_KEY")
}

func TestCheckEnvironmentWithKeyAndRepo(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "sk-test")
	cfg := config.Default()
	cfg.ProjectDir = t.TempDir()
	_, err := git.PlainInit(cfg.ProjectDir, false)
	require.NoError(t, err)

	results := CheckEnvironment(context.Background(), cfg)
	assert.True(t, results.Passed)
	require.Len(t, results.Checks, 2)
	assert.Equal(t, "Git repository found", results.Checks[1].Message)
}

func TestCheckOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5-coder:32b","model":"qwen2.5-coder:32b"}]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderOllama
	cfg.LLM.OllamaHost = srv.URL
	cfg.LLM.Model = "qwen2.5-coder:32b"

	res := checkOllama(context.Background(), cfg)
	assert.True(t, res.Passed, res.Message)

	cfg.LLM.Model = "llama3:8b"
	res = checkOllama(context.Background(), cfg)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "llama3:8b")
}

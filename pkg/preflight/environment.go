package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/ollama/ollama/api"

	"agentforge/pkg/config"
)

// EnvCheck is the outcome of one environment check run before a session starts.
type EnvCheck struct {
	Error   error
	Name    string
	Message string
	Passed  bool
}

// EnvResults contains all environment check results.
type EnvResults struct {
	Summary string
	Checks  []EnvCheck
	Passed  bool
}

// CheckEnvironment verifies that the configured LLM provider is usable and
// reports whether the project is a git repository. Only provider failures fail
// the run; a missing repository disables git_diff but is not fatal.
func CheckEnvironment(ctx context.Context, cfg *config.Config) *EnvResults {
	results := &EnvResults{Passed: true}

	provider := checkProvider(ctx, cfg)
	results.Checks = append(results.Checks, provider, checkRepository(cfg))

	failed := 0
	if !provider.Passed {
		results.Passed = false
		failed++
	}
	if results.Passed {
		results.Summary = fmt.Sprintf("All %d environment checks passed", len(results.Checks))
	} else {
		results.Summary = fmt.Sprintf("%d of %d environment checks failed", failed, len(results.Checks))
	}
	return results
}

func checkProvider(ctx context.Context, cfg *config.Config) EnvCheck {
	name := cfg.LLM.Provider
	if name == config.ProviderOllama {
		return checkOllama(ctx, cfg)
	}

	if _, err := cfg.APIKey(name); err != nil {
		return EnvCheck{Name: name, Passed: false, Message: err.Error(), Error: err}
	}
	return EnvCheck{Name: name, Passed: true, Message: fmt.Sprintf("%s API key is configured", name)}
}

// checkOllama verifies Ollama is reachable and the configured model is pulled.
func checkOllama(ctx context.Context, cfg *config.Config) EnvCheck {
	result := EnvCheck{Name: config.ProviderOllama}

	host, err := url.Parse(cfg.LLM.OllamaHost)
	if err != nil {
		result.Message = fmt.Sprintf("Invalid Ollama host %q", cfg.LLM.OllamaHost)
		result.Error = err
		return result
	}

	client := api.NewClient(host, http.DefaultClient)
	list, err := client.List(ctx)
	if err != nil {
		result.Message = fmt.Sprintf("Cannot reach Ollama at %s", host)
		result.Error = err
		return result
	}

	for i := range list.Models {
		if list.Models[i].Name == cfg.LLM.Model || list.Models[i].Model == cfg.LLM.Model {
			result.Passed = true
			result.Message = fmt.Sprintf("Ollama is running with %d models available", len(list.Models))
			return result
		}
	}
	result.Message = fmt.Sprintf("Missing Ollama model: %s", cfg.LLM.Model)
	result.Error = fmt.Errorf("missing model %s", cfg.LLM.Model)
	return result
}

func checkRepository(cfg *config.Config) EnvCheck {
	result := EnvCheck{Name: "git", Passed: true}
	if _, err := git.PlainOpen(cfg.ProjectDir); err != nil {
		result.Message = "Project is not a git repository; git_diff compares against empty content"
		return result
	}
	result.Message = "Git repository found"
	return result
}

// FormatEnvResults formats environment results for display.
func FormatEnvResults(results *EnvResults) string {
	var sb strings.Builder
	if results.Passed {
		sb.WriteString("Environment checks passed\n")
	} else {
		sb.WriteString("Environment checks failed\n")
	}
	for i := range results.Checks {
		c := &results.Checks[i]
		mark := "PASS"
		if !c.Passed {
			mark = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n", mark, c.Name, c.Message))
		if !c.Passed {
			sb.WriteString(fmt.Sprintf("    %s\n", guidance(c.Name)))
		}
	}
	return sb.String()
}

// guidance returns actionable advice for a failed check.
func guidance(name string) string {
	switch name {
	case config.ProviderAnthropic:
		return "Set ANTHROPIC_API_KEY: https://console.anthropic.com/"
	case config.ProviderOpenAI:
		return "Set OPENAI_API_KEY: https://platform.openai.com/api-keys"
	case config.ProviderGoogle:
		return "Set GOOGLE_API_KEY: https://aistudio.google.com/app/apikey"
	case config.ProviderOllama:
		return "Start Ollama (ollama serve) and pull the model (ollama pull <model>), or set OLLAMA_HOST"
	default:
		return "Check the llm section of .agentforge/config.yaml"
	}
}

// Package config provides configuration loading, validation, and defaults for agentforge.
// Configuration lives in <project>/.agentforge/config.yaml; API keys come from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Project config constants.
const (
	ProjectConfigDir      = ".agentforge"
	ProjectConfigFilename = "config.yaml"
	SessionDBFilename     = "sessions.db"
	SchemaVersion         = "1.0"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables holding provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Defaults.
const (
	DefaultModel              = "claude-sonnet-4-5"
	DefaultOllamaHost         = "http://localhost:11434"
	DefaultMaxTokens          = 4096
	DefaultTemperature        = 0.2
	DefaultLLMTimeout         = 3 * time.Minute
	DefaultChunkLines         = 20
	DefaultChunkStride        = 15
	DefaultMinScore           = 0.05
	DefaultSearchLimit        = 8
	DefaultContextTokenBudget = 2000
	DefaultRebuildDebounce    = 300 * time.Millisecond
	DefaultMaxToolIterations  = 25
	DefaultExecuteTimeout     = 10 * time.Second
	DefaultMaxReadLines       = 2000
)

// LLMConfig selects the model and request parameters.
type LLMConfig struct {
	Model       string        `yaml:"model"`
	Provider    string        `yaml:"provider,omitempty"` // derived from Model when empty
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	OllamaHost  string        `yaml:"ollama_host,omitempty"`
	Timeout     time.Duration `yaml:"timeout"` // per request
	DebugPrompt bool          `yaml:"debug_prompt,omitempty"`
}

// RetrievalConfig tunes chunking, ranking and rebuild debouncing.
type RetrievalConfig struct {
	ChunkLines         int           `yaml:"chunk_lines"`
	ChunkStride        int           `yaml:"chunk_stride"`
	MinScore           float64       `yaml:"min_score"`
	SearchLimit        int           `yaml:"search_limit"`
	ContextTokenBudget int           `yaml:"context_token_budget"`
	RebuildDebounce    time.Duration `yaml:"rebuild_debounce"`
	Ignore             []string      `yaml:"ignore,omitempty"`
}

// AgentConfig bounds the orchestrator's per-step tool loop.
type AgentConfig struct {
	MaxToolIterations int  `yaml:"max_tool_iterations"`
	MaxReadLines      int  `yaml:"max_read_lines"`
	AutoPreflight     bool `yaml:"auto_preflight"`
}

// ExecuteConfig controls the best-effort script evaluator.
type ExecuteConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// PreflightConfig toggles validator phases.
type PreflightConfig struct {
	SecretScan bool `yaml:"secret_scan"`
}

// PersistenceConfig locates the session log database.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path,omitempty"`
}

// MetricsConfig exposes Prometheus metrics from the CLI.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// DebugConfig mirrors logx debug switches.
type DebugConfig struct {
	Enabled bool     `yaml:"enabled"`
	Domains []string `yaml:"domains,omitempty"`
}

// Config is the full agentforge configuration.
type Config struct {
	SchemaVersion string            `yaml:"schema_version"`
	ProjectDir    string            `yaml:"-"`
	LLM           LLMConfig         `yaml:"llm"`
	Retrieval     RetrievalConfig   `yaml:"retrieval"`
	Agent         AgentConfig       `yaml:"agent"`
	Execute       ExecuteConfig     `yaml:"execute"`
	Preflight     PreflightConfig   `yaml:"preflight"`
	Persistence   PersistenceConfig `yaml:"persistence"`
	Metrics       MetricsConfig     `yaml:"metrics"`
	Debug         DebugConfig       `yaml:"debug"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Agent:       AgentConfig{AutoPreflight: true},
		Execute:     ExecuteConfig{Enabled: true},
		Preflight:   PreflightConfig{SecretScan: true},
		Persistence: PersistenceConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads <projectDir>/.agentforge/config.yaml if it exists and applies defaults.
// A missing file is not an error.
func Load(projectDir string) (*Config, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir %s: %w", projectDir, err)
	}

	cfg := Default()
	path := filepath.Join(absDir, ProjectConfigDir, ProjectConfigFilename)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ProjectDir = absDir
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to <projectDir>/.agentforge/config.yaml.
func Save(cfg *Config, projectDir string) error {
	dir := filepath.Join(projectDir, ProjectConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ProjectConfigFilename), data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderForModel(cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = DefaultMaxTokens
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = DefaultTemperature
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.LLM.OllamaHost == "" {
		cfg.LLM.OllamaHost = os.Getenv(EnvOllamaHost)
		if cfg.LLM.OllamaHost == "" {
			cfg.LLM.OllamaHost = DefaultOllamaHost
		}
	}

	if cfg.Retrieval.ChunkLines <= 0 {
		cfg.Retrieval.ChunkLines = DefaultChunkLines
	}
	if cfg.Retrieval.ChunkStride <= 0 {
		cfg.Retrieval.ChunkStride = DefaultChunkStride
	}
	if cfg.Retrieval.MinScore <= 0 {
		cfg.Retrieval.MinScore = DefaultMinScore
	}
	if cfg.Retrieval.SearchLimit <= 0 {
		cfg.Retrieval.SearchLimit = DefaultSearchLimit
	}
	if cfg.Retrieval.ContextTokenBudget <= 0 {
		cfg.Retrieval.ContextTokenBudget = DefaultContextTokenBudget
	}
	if cfg.Retrieval.RebuildDebounce <= 0 {
		cfg.Retrieval.RebuildDebounce = DefaultRebuildDebounce
	}

	if cfg.Agent.MaxToolIterations <= 0 {
		cfg.Agent.MaxToolIterations = DefaultMaxToolIterations
	}
	if cfg.Agent.MaxReadLines <= 0 {
		cfg.Agent.MaxReadLines = DefaultMaxReadLines
	}
	if cfg.Execute.Timeout <= 0 {
		cfg.Execute.Timeout = DefaultExecuteTimeout
	}

	if cfg.Persistence.DBPath == "" && cfg.ProjectDir != "" {
		cfg.Persistence.DBPath = filepath.Join(cfg.ProjectDir, ProjectConfigDir, SessionDBFilename)
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9464"
	}
}

// Validate checks the configuration for values defaults cannot fix.
func Validate(cfg *Config) error {
	var problems []string

	switch cfg.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		problems = append(problems, fmt.Sprintf("llm.provider %q is not supported (model %q)", cfg.LLM.Provider, cfg.LLM.Model))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		problems = append(problems, "llm.temperature must be between 0.0 and 2.0")
	}
	if cfg.Retrieval.ChunkStride > cfg.Retrieval.ChunkLines {
		problems = append(problems, fmt.Sprintf("retrieval.chunk_stride (%d) must not exceed retrieval.chunk_lines (%d)",
			cfg.Retrieval.ChunkStride, cfg.Retrieval.ChunkLines))
	}
	if cfg.Retrieval.MinScore >= 1 {
		problems = append(problems, "retrieval.min_score must be below 1.0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ProviderForModel determines which provider a model name belongs to.
// Returns "" for names that match no known pattern.
func ProviderForModel(model string) string {
	model = strings.ToLower(model)

	// Ollama models carry a tag (e.g. "mistral-nemo:latest", "qwen2.5-coder:32b").
	if strings.Contains(model, ":") && !strings.HasPrefix(model, "claude-") &&
		!strings.HasPrefix(model, "gpt-") && !strings.HasPrefix(model, "o3") &&
		!strings.HasPrefix(model, "gemini-") {
		return ProviderOllama
	}

	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o1"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGoogle
	}
	return ""
}

// APIKey returns the credential for a provider. For Ollama it returns the host URL.
func (c *Config) APIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		return c.LLM.OllamaHost, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s is not set", envVar)
}

// Package templates renders the orchestrator's prompts from embedded markdown templates.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"agentforge/pkg/plan"
)

//go:embed *.tpl.md
var templateFS embed.FS

// UserInstructionsFile is read from the project config directory and appended
// to the system prompt when present.
const UserInstructionsFile = "instructions.md"

// TemplateData holds the data for template rendering.
//
//nolint:govet // fieldalignment: grouped by prompt
type TemplateData struct {
	Extra map[string]any `json:"extra,omitempty"`

	Goal              string `json:"goal,omitempty"`
	ToolDocumentation string `json:"tool_documentation,omitempty"`
	Context           string `json:"context,omitempty"` // retrieved code excerpts

	// Planning
	ProjectFiles []string `json:"project_files,omitempty"`
	MoreFiles    int      `json:"more_files,omitempty"`

	// Step execution
	Step       *plan.Step  `json:"step,omitempty"`
	StepNumber int         `json:"step_number,omitempty"`
	StepCount  int         `json:"step_count,omitempty"`
	Completed  []plan.Step `json:"completed,omitempty"`

	// Summary
	Plan         []plan.Step `json:"plan,omitempty"`
	PendingFiles []string    `json:"pending_files,omitempty"`
}

// StateTemplate names an embedded template.
type StateTemplate string

const (
	// SystemTemplate is the system prompt for the whole conversation.
	SystemTemplate StateTemplate = "system.tpl.md"
	// PlanningTemplate asks the model to decompose a goal into steps.
	PlanningTemplate StateTemplate = "planning.tpl.md"
	// StepTemplate names the active plan step.
	StepTemplate StateTemplate = "step.tpl.md"
	// SummaryTemplate asks for the final summary.
	SummaryTemplate StateTemplate = "summary.tpl.md"
)

// Renderer holds the parsed templates.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StateTemplate]*template.Template),
	}

	templateNames := []StateTemplate{
		SystemTemplate,
		PlanningTemplate,
		StepTemplate,
		SummaryTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
			"join":     strings.Join,
			"add":      func(a, b int) int { return a + b },
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// RenderWithUserInstructions renders templateName and appends the project's
// instruction file from configDir, if one exists.
func (r *Renderer) RenderWithUserInstructions(templateName StateTemplate, data *TemplateData, configDir string) (string, error) {
	basePrompt, err := r.Render(templateName, data)
	if err != nil {
		return "", err
	}
	if configDir == "" {
		return basePrompt, nil
	}

	instructions, err := os.ReadFile(filepath.Join(configDir, UserInstructionsFile))
	if errors.Is(err, os.ErrNotExist) {
		return basePrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user instructions: %w", err)
	}
	if text := strings.TrimSpace(string(instructions)); text != "" {
		return basePrompt + "\n\n## Project Instructions\n\n" + text, nil
	}
	return basePrompt, nil
}

// GetAvailableTemplates returns a list of all available templates.
func (r *Renderer) GetAvailableTemplates() []StateTemplate {
	templates := make([]StateTemplate, 0, len(r.templates))
	for name := range r.templates {
		templates = append(templates, name)
	}
	return templates
}

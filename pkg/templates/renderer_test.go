package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/plan"
)

func TestNewRendererLoadsAll(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]StateTemplate{SystemTemplate, PlanningTemplate, StepTemplate, SummaryTemplate},
		r.GetAvailableTemplates())
}

func TestRenderPlanning(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(PlanningTemplate, &TemplateData{
		Goal:         "add a health-check endpoint",
		ProjectFiles: []string{"main.go", "go.mod"},
		MoreFiles:    3,
		Context:      "### main.go",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Goal: add a health-check endpoint")
	assert.Contains(t, out, "- main.go\n- go.mod")
	assert.Contains(t, out, "...and 3 more")
	assert.Contains(t, out, "### main.go")
	assert.NotContains(t, out, "{{")
}

func TestRenderStep(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	step := plan.Step{ID: "2", Title: "Register route", Description: "Wire /healthz in main.go"}
	out, err := r.Render(StepTemplate, &TemplateData{
		Step:       &step,
		StepNumber: 2,
		StepCount:  2,
		Completed:  []plan.Step{{ID: "1", Title: "Create handler"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Step 2 of 2 (id 2): Register route")
	assert.Contains(t, out, "Wire /healthz in main.go")
	assert.Contains(t, out, "- 1: Create handler")
	assert.NotContains(t, out, "Relevant code")
}

func TestRenderSummary(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(SummaryTemplate, &TemplateData{
		Goal:         "g",
		Plan:         []plan.Step{{ID: "1", Title: "a", Status: plan.StatusCompleted}},
		PendingFiles: []string{"a.go", "b.go"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "- [completed] a")
	assert.Contains(t, out, "a.go, b.go")

	out, err = r.Render(SummaryTemplate, &TemplateData{Goal: "g"})
	require.NoError(t, err)
	assert.Contains(t, out, "No file changes are pending.")
}

func TestRenderWithUserInstructions(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	dir := t.TempDir()

	base, err := r.RenderWithUserInstructions(SystemTemplate, &TemplateData{ToolDocumentation: "tools"}, dir)
	require.NoError(t, err)
	assert.NotContains(t, base, "Project Instructions")

	require.NoError(t, os.WriteFile(filepath.Join(dir, UserInstructionsFile), []byte("Use tabs.\n"), 0o644))
	out, err := r.RenderWithUserInstructions(SystemTemplate, &TemplateData{ToolDocumentation: "tools"}, dir)
	require.NoError(t, err)
	assert.True(t, len(out) > len(base))
	assert.Contains(t, out, "## Project Instructions\n\nUse tabs.")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	_, err = r.Render("nope.tpl.md", &TemplateData{})
	assert.Error(t, err)
}

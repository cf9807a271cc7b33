package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/agent"
	"agentforge/pkg/config"
	"agentforge/pkg/llm"
	"agentforge/pkg/persistence"
	"agentforge/pkg/tools"
	"agentforge/pkg/workspace"
)

// newProjectDir writes files into a temp project with secret scanning and
// persistence configured for tests.
func newProjectDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cfg := config.Default()
	cfg.Preflight.SecretScan = false
	require.NoError(t, config.Save(cfg, dir))
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"-v"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"single line", "hello", 10, "hello"},
		{"trimmed", "  hello \n", 10, "hello"},
		{"multi line", "first\nsecond", 10, "first …"},
		{"cut", "abcdefghij", 4, "abcd…"},
		{"runes", "héllo wörld", 5, "héllo…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preview(tt.in, tt.limit))
		})
	}
}

func TestPrintStep(t *testing.T) {
	var out bytes.Buffer
	printStep(&out, agent.AgentStep{Kind: agent.StepUser, Content: "add health"})
	printStep(&out, agent.AgentStep{Kind: agent.StepCall, Tool: tools.ToolReadFile, Content: `{"path":"a.go"}`})
	printStep(&out, agent.AgentStep{Kind: agent.StepResult, Content: "Error: file not found: a.go", Failed: true})

	assert.Equal(t, "> add health\n"+
		"🔧 fs_readFile {\"path\":\"a.go\"}\n"+
		"   ✗ Error: file not found: a.go\n", out.String())
}

func TestSearchCommand(t *testing.T) {
	dir := newProjectDir(t, map[string]string{
		"server/health.go": "package server\n\n// healthHandler reports liveness.\nfunc healthHandler() string { return \"ok\" }\n",
		"README.md":        "A small web service.\n",
	})

	out, err := runCLI(t, "--projectdir", dir, "search", "liveness")
	require.NoError(t, err)
	assert.Contains(t, out, "server/health.go:1-")

	out, err = runCLI(t, "--projectdir", dir, "search", "zzqqxx")
	require.NoError(t, err)
	assert.Equal(t, "No matches.\n", out)
}

func TestIndexCommand(t *testing.T) {
	dir := newProjectDir(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})

	out, err := runCLI(t, "--projectdir", dir, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Files:      1")
	assert.Contains(t, out, "Chunks:     1")
}

func TestPreflightCommand(t *testing.T) {
	dir := newProjectDir(t, map[string]string{
		"good.go":  "package good\n\nfunc Good() {}\n",
		"notes.md": "<<<<<<< HEAD\nmine\n=======\ntheirs\n>>>>>>> main\n",
	})

	out, err := runCLI(t, "--projectdir", dir, "preflight", "good.go")
	require.NoError(t, err)
	assert.Contains(t, out, "good.go: ok")

	out, err = runCLI(t, "--projectdir", dir, "preflight", "good.go", "notes.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 file(s) failed pre-flight")
	assert.Contains(t, out, "notes.md: FAILED")
	assert.Contains(t, out, "merge conflict marker at line 1")

	_, err = runCLI(t, "--projectdir", dir, "preflight", "missing.go")
	require.Error(t, err)
}

func TestSessionsCommands(t *testing.T) {
	dir := newProjectDir(t, nil)
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	db, err := persistence.Open(cfg.Persistence.DBPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.CreateSession(ctx, "s-1", "add a health endpoint", "planning"))
	_, err = db.AppendStep(ctx, "s-1", persistence.Step{Kind: "user", Content: "add a health endpoint"})
	require.NoError(t, err)
	require.NoError(t, db.UpdateStatus(ctx, "s-1", "completed", ""))
	require.NoError(t, db.Close())

	out, err := runCLI(t, "--projectdir", dir, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "s-1")
	assert.Contains(t, out, "completed")

	out, err = runCLI(t, "--projectdir", dir, "sessions", "show", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Goal:    add a health endpoint")
	assert.Contains(t, out, "user")

	_, err = runCLI(t, "--projectdir", dir, "sessions", "rm", "s-1")
	require.NoError(t, err)

	out, err = runCLI(t, "--projectdir", dir, "sessions")
	require.NoError(t, err)
	assert.Equal(t, "No sessions.\n", out)

	_, err = runCLI(t, "--projectdir", dir, "sessions", "show", "s-1")
	require.ErrorIs(t, err, persistence.ErrSessionNotFound)
}

func TestReviewPatches(t *testing.T) {
	store := workspace.NewMemStore(map[string]string{"b.txt": "old\n"})
	cfg := config.Default()
	cfg.Agent.AutoPreflight = false
	cfg.Preflight.SecretScan = false
	cfg.Execute.Enabled = false

	client := llm.NewMockClient([]llm.CompletionResponse{
		{Content: `[{"id": "1", "title": "write two files"}]`},
		{ToolCalls: []llm.ToolCall{
			{ID: "w1", Name: tools.ToolWriteFile, Parameters: map[string]any{"path": "a.txt", "content": "alpha\n"}},
			{ID: "w2", Name: tools.ToolWriteFile, Parameters: map[string]any{"path": "b.txt", "content": "new\n"}},
		}},
		{Content: "Both written."},
		{Content: "Two files changed."},
	}, nil)
	orch, err := agent.New(agent.Options{Config: cfg, Client: client, Base: store})
	require.NoError(t, err)
	defer orch.Close()

	snap, err := orch.Run(context.Background(), "write files")
	require.NoError(t, err)
	require.Equal(t, agent.StatusAwaitingReview, snap.Status)

	var out bytes.Buffer
	accepted, err := reviewPatches(strings.NewReader("x\na\nr\n"), &out, orch)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, accepted)
	assert.Contains(t, out.String(), "+++ b/a.txt")
	assert.Contains(t, out.String(), "-old")
	assert.Equal(t, agent.StatusCompleted, orch.Status())

	got, err := store.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha\n", got)
	got, err = store.Read("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "old\n", got)
}

func TestReviewStopsAtEOF(t *testing.T) {
	store := workspace.NewMemStore(nil)
	cfg := config.Default()
	cfg.Agent.AutoPreflight = false
	cfg.Execute.Enabled = false

	client := llm.NewMockClient([]llm.CompletionResponse{
		{Content: `[{"id": "1", "title": "write"}]`},
		{ToolCalls: []llm.ToolCall{{ID: "w1", Name: tools.ToolWriteFile, Parameters: map[string]any{"path": "a.txt", "content": "a\n"}}}},
		{Content: "Written."},
		{Content: "Done."},
	}, nil)
	orch, err := agent.New(agent.Options{Config: cfg, Client: client, Base: store})
	require.NoError(t, err)
	defer orch.Close()

	_, err = orch.Run(context.Background(), "write")
	require.NoError(t, err)

	accepted, err := reviewPatches(strings.NewReader(""), &bytes.Buffer{}, orch)
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.Equal(t, agent.StatusAwaitingReview, orch.Status())
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentforge dev")
}

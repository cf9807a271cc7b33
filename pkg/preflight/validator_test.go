package preflight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const cleanGo = "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"ok\")\n}\n"

func statuses(r Result) map[string]CheckStatus {
	out := make(map[string]CheckStatus, len(r.Checks))
	for _, c := range r.Checks {
		out[c.ID] = c.Status
	}
	return out
}

func TestValidateCleanFile(t *testing.T) {
	v := New(Options{SecretScan: true})

	res := v.Validate(context.Background(), "main.go", cleanGo)
	assert.True(t, res.Done)
	assert.False(t, res.HasErrors)
	assert.Equal(t, map[string]CheckStatus{
		CheckSyntax:  StatusSuccess,
		CheckBuild:   StatusSuccess,
		CheckSecrets: StatusSuccess,
	}, statuses(res))
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestSyntaxFailureSkipsLaterPhases(t *testing.T) {
	v := New(Options{SecretScan: true})

	res := v.Validate(context.Background(), "main.go", "package main\n\nfunc main() {\n")
	assert.True(t, res.HasErrors)
	assert.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, map[string]CheckStatus{
		CheckSyntax:  StatusFailure,
		CheckBuild:   StatusSkipped,
		CheckSecrets: StatusSkipped,
	}, statuses(res))
}

func TestBuildSimulationCatchesConflictMarkers(t *testing.T) {
	v := New(Options{})

	content := "# Notes\n<<<<<<< HEAD\nmine\n=======\ntheirs\n>>>>>>> branch\n"
	res := v.Validate(context.Background(), "NOTES.md", content)
	assert.True(t, res.HasErrors)
	build, ok := res.Check(CheckBuild)
	require.True(t, ok)
	assert.Equal(t, StatusFailure, build.Status)
	assert.Contains(t, build.Message, "line 2")

	secrets, _ := res.Check(CheckSecrets)
	assert.Equal(t, StatusSkipped, secrets.Status)
}

func TestSecretScanDisabled(t *testing.T) {
	v := New(Options{SecretScan: false})
	res := v.Validate(context.Background(), "main.go", cleanGo)
	secrets, _ := res.Check(CheckSecrets)
	assert.Equal(t, StatusSkipped, secrets.Status)
	assert.False(t, res.HasErrors)
}

func TestSecretScanFindsToken(t *testing.T) {
	v := New(Options{SecretScan: true})
	token := "ghp_" + "aB3dE5fG7hJ9kL1mN3pQ5rS7tU9vW1xY3zA5"
	content := "package config\n\nconst githubToken = \"" + token + "\"\n"

	res := v.Validate(context.Background(), "config.go", content)
	secrets, _ := res.Check(CheckSecrets)
	assert.Equal(t, StatusFailure, secrets.Status)
	require.NotEmpty(t, res.Secrets)
	assert.NotContains(t, secrets.Message, token)
}

func TestStartStreamsTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	v := New(Options{})
	var snaps []Result
	for snap := range v.Start(context.Background(), "main.go", cleanGo) {
		snaps = append(snaps, snap)
	}

	require.NotEmpty(t, snaps)
	first := snaps[0]
	for _, c := range first.Checks {
		assert.Equal(t, StatusPending, c.Status)
	}
	assert.Equal(t, StatusRunning, snaps[1].Checks[0].Status)
	assert.True(t, snaps[len(snaps)-1].Done)

	// Checks only move forward.
	order := map[CheckStatus]int{StatusPending: 0, StatusRunning: 1, StatusSuccess: 2, StatusFailure: 2, StatusSkipped: 2}
	for i := 1; i < len(snaps); i++ {
		for j := range snaps[i].Checks {
			assert.GreaterOrEqual(t, order[snaps[i].Checks[j].Status], order[snaps[i-1].Checks[j].Status])
		}
	}
}

func TestLatestReflectsNewestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	v := New(Options{})
	_, ok := v.Latest("main.go")
	assert.False(t, ok)

	v.Validate(context.Background(), "main.go", "package main\nfunc (\n")
	latest, ok := v.Latest("main.go")
	require.True(t, ok)
	assert.True(t, latest.HasErrors)

	v.Validate(context.Background(), "main.go", cleanGo)
	latest, ok = v.Latest("main.go")
	require.True(t, ok)
	assert.False(t, latest.HasErrors)
	assert.True(t, latest.Done)

	v.Forget("main.go")
	_, ok = v.Latest("main.go")
	assert.False(t, ok)
}

func TestSupersededRunDoesNotOverwrite(t *testing.T) {
	v := New(Options{})
	stale := v.Start(context.Background(), "a.go", "package a\nfunc (\n")
	fresh := v.Start(context.Background(), "a.go", "package a\n")

	for range fresh {
	}
	for range stale {
	}

	latest, ok := v.Latest("a.go")
	require.True(t, ok)
	assert.False(t, latest.HasErrors)
}

func TestCancelledContextSkipsPhases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(Options{})
	res := v.Validate(ctx, "main.go", cleanGo)
	for _, c := range res.Checks {
		assert.Equal(t, StatusSkipped, c.Status)
		assert.Equal(t, "cancelled", c.Message)
	}
	assert.True(t, res.Done)
}

func TestOnCompleteCalled(t *testing.T) {
	done := make(chan Result, 1)
	v := New(Options{OnComplete: func(r Result) { done <- r }})
	v.Start(context.Background(), "main.go", cleanGo)

	select {
	case r := <-done:
		assert.Equal(t, "main.go", r.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("OnComplete not called")
	}
}

func TestPythonDocstringPassesAllPhases(t *testing.T) {
	v := New(Options{SecretScan: true})

	content := "def steps():\n    \"\"\"Run the pipeline.\n\n    1) fetch\n    2) build\n    \"\"\"\n    return [\"fetch\", \"build\"]\n"
	res := v.Validate(context.Background(), "steps.py", content)
	assert.False(t, res.HasErrors)
	assert.Equal(t, map[string]CheckStatus{
		CheckSyntax:  StatusSuccess,
		CheckBuild:   StatusSuccess,
		CheckSecrets: StatusSuccess,
	}, statuses(res))
}

func TestSyntaxPhaseParsesScripts(t *testing.T) {
	v := New(Options{})

	for _, path := range []string{"app.js", "app.ts"} {
		res := v.Validate(context.Background(), path, "const x = ;\nlet = 5\n")
		assert.True(t, res.HasErrors, path)
		syntax, ok := res.Check(CheckSyntax)
		require.True(t, ok)
		assert.Equal(t, StatusFailure, syntax.Status, path)
		require.NotEmpty(t, res.Diagnostics, path)
		assert.Equal(t, 1, res.Diagnostics[0].StartLine, path)
	}

	res := v.Validate(context.Background(), "app.py", "def f(:\n    pass\n")
	syntax, ok := res.Check(CheckSyntax)
	require.True(t, ok)
	assert.Equal(t, StatusFailure, syntax.Status)
	build, ok := res.Check(CheckBuild)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, build.Status)
}

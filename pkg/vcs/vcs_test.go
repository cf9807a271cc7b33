package vcs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestRepositoryLifecycle(t *testing.T) {
	dir := t.TempDir()
	repo, err := Init(dir)
	require.NoError(t, err)

	_, exists, err := repo.HeadContent("main.go")
	require.NoError(t, err)
	assert.False(t, exists, "unborn HEAD has no files")

	writeFile(t, dir, "main.go", "package main\n")
	status, err := repo.Status()
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, FileStatus{Path: "main.go", Staging: "?", Worktree: "?"}, status[0])

	require.NoError(t, repo.Add([]string{"main.go"}))
	hash, err := repo.Commit("initial")
	require.NoError(t, err)
	assert.Len(t, hash, 40)
	assert.Equal(t, "master", repo.Branch())

	content, exists, err := repo.HeadContent("main.go")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "package main\n", content)

	status, err = repo.Status()
	require.NoError(t, err)
	assert.Empty(t, status)

	diff, err := repo.Diff("main.go", "package main\n\nfunc main() {}\n")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- a/main.go")
	assert.Contains(t, diff, "+++ b/main.go")
	assert.Contains(t, diff, "+func main() {}")
}

func TestOpenFromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(dir)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "x"), 0o755))

	repo, err := Open(filepath.Join(dir, "pkg", "x"))
	require.NoError(t, err)
	assert.NotEmpty(t, repo.Root())
}

func TestOpenNotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.True(t, errors.Is(err, ErrNotRepository))

	r := OpenOrNone(t.TempDir())
	_, ok := r.(NoRepository)
	assert.True(t, ok)
}

func TestNoRepositoryDiffsAgainstEmpty(t *testing.T) {
	diff, err := NoRepository{}.Diff("new.txt", "hello\n")
	require.NoError(t, err)
	assert.Contains(t, diff, "+hello")

	_, err = NoRepository{}.Commit("x")
	assert.True(t, errors.Is(err, ErrNotRepository))
}

func TestUnifiedDiff(t *testing.T) {
	assert.Empty(t, UnifiedDiff("a.txt", "same\n", "same\n"))

	diff := UnifiedDiff("a.txt", "one\ntwo\nthree\n", "one\n2\nthree")
	assert.Contains(t, diff, "-two")
	assert.Contains(t, diff, "+2")
	assert.NotContains(t, diff, "-three", "missing final newline is not a change")
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb"))
	assert.Equal(t, []string{"a\n"}, splitLines("a\n"))
}

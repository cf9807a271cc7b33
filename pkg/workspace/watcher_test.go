package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherReportsChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	store, err := NewDirStore(root)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]bool{}
	w, err := NewWatcher(store, func(p string) {
		mu.Lock()
		seen[p] = true
		mu.Unlock()
	})
	require.NoError(t, err)
	w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["main.go"]
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0o644))
	time.Sleep(50 * time.Millisecond)

	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, seen[".git/index"])
}

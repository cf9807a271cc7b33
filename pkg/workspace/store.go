// Package workspace provides the durable file store an agent session works against,
// the read-your-writes overlay that layers pending proposals over it, and a
// filesystem watcher that keeps the retrieval index fresh.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotExist is returned when a path is not present in a store.
var ErrNotExist = fs.ErrNotExist

// ErrOutsideRoot is returned for paths that escape the workspace root.
var ErrOutsideRoot = errors.New("path escapes workspace root")

// DefaultIgnore lists directory names never listed or watched.
//
//nolint:gochecknoglobals // static lookup table
var DefaultIgnore = []string{".git", ".agentforge", "node_modules", "vendor", ".DS_Store", ".idea", ".vscode"}

// Store is an opaque key-value file store. Keys are slash-separated paths
// relative to the workspace root and double as file IDs.
type Store interface {
	Read(p string) (string, error)
	Write(p, content string) error
	Delete(p string) error
	List(prefix string) ([]string, error)
}

// CleanPath normalizes p to a slash-separated relative path and rejects
// paths that climb above the root.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	cleaned := path.Clean(strings.TrimPrefix(p, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return cleaned, nil
}

func hasPrefix(p, prefix string) bool {
	prefix = strings.TrimPrefix(filepath.ToSlash(prefix), "/")
	if prefix == "" || prefix == "." {
		return true
	}
	return strings.HasPrefix(p, prefix)
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemStore creates a MemStore seeded with files.
func NewMemStore(files map[string]string) *MemStore {
	m := &MemStore{files: make(map[string]string, len(files))}
	for p, content := range files {
		if cleaned, err := CleanPath(p); err == nil {
			m.files[cleaned] = content
		}
	}
	return m
}

// Read implements Store.
func (m *MemStore) Read(p string) (string, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[cleaned]
	if !ok {
		return "", fmt.Errorf("%s: %w", cleaned, ErrNotExist)
	}
	return content, nil
}

// Write implements Store.
func (m *MemStore) Write(p, content string) error {
	cleaned, err := CleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[cleaned] = content
	return nil
}

// Delete implements Store.
func (m *MemStore) Delete(p string) error {
	cleaned, err := CleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[cleaned]; !ok {
		return fmt.Errorf("%s: %w", cleaned, ErrNotExist)
	}
	delete(m.files, cleaned)
	return nil
}

// List implements Store. Paths are returned sorted.
func (m *MemStore) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.files {
		if hasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DirStore is a Store backed by a directory on disk.
type DirStore struct {
	root   string
	ignore map[string]struct{}
}

// NewDirStore creates a DirStore rooted at root. Directory names in ignore are
// skipped in addition to DefaultIgnore.
func NewDirStore(root string, ignore ...string) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	d := &DirStore{root: abs, ignore: make(map[string]struct{})}
	for _, name := range append(append([]string{}, DefaultIgnore...), ignore...) {
		d.ignore[name] = struct{}{}
	}
	return d, nil
}

// Root returns the absolute root directory.
func (d *DirStore) Root() string { return d.root }

// Ignored reports whether a directory or file name is excluded.
func (d *DirStore) Ignored(name string) bool {
	_, ok := d.ignore[name]
	return ok
}

func (d *DirStore) abs(p string) (string, string, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(d.root, filepath.FromSlash(cleaned)), nil
}

// Rel converts an absolute filesystem path under the root into a store key.
func (d *DirStore) Rel(absPath string) (string, error) {
	rel, err := filepath.Rel(d.root, absPath)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", absPath, err)
	}
	return CleanPath(rel)
}

// Read implements Store.
func (d *DirStore) Read(p string) (string, error) {
	_, full, err := d.abs(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return string(data), nil
}

// Write implements Store. Parent directories are created as needed.
func (d *DirStore) Write(p, content string) error {
	_, full, err := d.abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// Delete implements Store.
func (d *DirStore) Delete(p string) error {
	_, full, err := d.abs(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// List implements Store. Ignored directories are skipped and paths are returned sorted.
func (d *DirStore) List(prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(full string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if full == d.root {
			return nil
		}
		if d.Ignored(entry.Name()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		rel, err := d.Rel(full)
		if err != nil {
			return nil
		}
		if hasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}
	sort.Strings(out)
	return out, nil
}

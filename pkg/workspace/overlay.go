package workspace

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"agentforge/pkg/retrieval"
)

// maxIndexBytes bounds the size of a single file handed to the index.
const maxIndexBytes = 1 << 20

// Proposals exposes pending, not yet accepted, file changes by path.
type Proposals interface {
	// PendingContent returns the proposed full content of p. deleted is true
	// when the proposal removes the file; ok is false when nothing is pending.
	PendingContent(p string) (content string, deleted bool, ok bool)
	// PendingPaths lists the paths with a pending proposal.
	PendingPaths() []string
}

// Overlay is the effective view of a workspace: pending proposals layered
// over committed content. It never writes.
type Overlay struct {
	base    Store
	pending Proposals
}

// NewOverlay creates an overlay of pending over base. pending may be nil.
func NewOverlay(base Store, pending Proposals) *Overlay {
	return &Overlay{base: base, pending: pending}
}

// Base returns the committed store.
func (o *Overlay) Base() Store { return o.base }

// Read returns the effective content of p.
func (o *Overlay) Read(p string) (string, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if o.pending != nil {
		if content, deleted, ok := o.pending.PendingContent(cleaned); ok {
			if deleted {
				return "", fmt.Errorf("%s: %w (pending delete)", cleaned, ErrNotExist)
			}
			return content, nil
		}
	}
	return o.base.Read(cleaned)
}

// Committed returns the base content of p, or "" with exists=false when absent.
func (o *Overlay) Committed(p string) (content string, exists bool, err error) {
	content, err = o.base.Read(p)
	if errors.Is(err, ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// Exists reports whether p has effective content.
func (o *Overlay) Exists(p string) bool {
	_, err := o.Read(p)
	return err == nil
}

// List returns effective paths under prefix, sorted.
func (o *Overlay) List(prefix string) ([]string, error) {
	paths, err := o.base.List(prefix)
	if err != nil {
		return nil, err
	}
	if o.pending == nil {
		return paths, nil
	}

	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	for _, p := range o.pending.PendingPaths() {
		if !hasPrefix(p, prefix) {
			continue
		}
		if _, deleted, ok := o.pending.PendingContent(p); ok {
			if deleted {
				delete(set, p)
			} else {
				set[p] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// IndexFiles returns the effective text files for the retrieval index.
// Binary and oversized files are skipped.
func (o *Overlay) IndexFiles() []retrieval.File {
	paths, err := o.List("")
	if err != nil {
		return nil
	}
	files := make([]retrieval.File, 0, len(paths))
	for _, p := range paths {
		content, err := o.Read(p)
		if err != nil || len(content) > maxIndexBytes || looksBinary(content) {
			continue
		}
		files = append(files, retrieval.File{ID: p, Path: p, Content: content})
	}
	return files
}

func looksBinary(content string) bool {
	head := content
	if len(head) > 8000 {
		head = head[:8000]
	}
	return strings.IndexByte(head, 0) >= 0
}

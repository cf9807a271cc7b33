// Package patch implements the ledger of proposed file changes awaiting human review.
// The ledger is the only component that writes durable file content.
package patch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentforge/pkg/workspace"
)

// ErrNotFound is returned when no pending patch has the given ID.
var ErrNotFound = errors.New("patch not found")

// Kind distinguishes writes from deletions.
type Kind string

const (
	KindWrite  Kind = "write"
	KindDelete Kind = "delete"
)

// Status is the review state of a patch.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Range is the 1-based inclusive line span an edit touched. A zero Range
// means the whole file.
type Range struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Patch is one proposed change to a file. ProposedText always holds the full
// effective file content after the edit, so accepting never needs to splice.
type Patch struct {
	ID           string    `json:"id"`
	FileID       string    `json:"file_id"`
	Range        Range     `json:"range"`
	OriginalText string    `json:"original_text"`
	ProposedText string    `json:"proposed_text"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var _ workspace.Proposals = (*Ledger)(nil)

// ResolveHook observes accepted and rejected patches.
type ResolveHook func(p Patch)

// Ledger tracks pending patches with at most one pending patch per file.
type Ledger struct {
	mu      sync.RWMutex
	base    workspace.Store
	pending map[string]*Patch // by ID
	byFile  map[string]string // file ID -> patch ID
	history []Patch
	seq     map[string]int // creation order for stable listing
	next    int

	now       func() time.Time
	onResolve ResolveHook
}

// NewLedger creates a ledger that commits into base.
func NewLedger(base workspace.Store) *Ledger {
	return &Ledger{
		base:    base,
		pending: make(map[string]*Patch),
		byFile:  make(map[string]string),
		seq:     make(map[string]int),
		now:     time.Now,
	}
}

// OnResolve registers a hook called after each accept or reject.
func (l *Ledger) OnResolve(hook ResolveHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onResolve = hook
}

// Propose records a write of proposedText to fileID. If the file already has a
// pending patch it is updated in place, keeping its ID and the original
// committed text, and the range widens to cover both edits.
func (l *Ledger) Propose(fileID string, rng Range, originalText, proposedText string) (Patch, error) {
	return l.propose(fileID, KindWrite, rng, originalText, proposedText)
}

// ProposeDelete records the deletion of fileID.
func (l *Ledger) ProposeDelete(fileID, originalText string) (Patch, error) {
	return l.propose(fileID, KindDelete, Range{}, originalText, "")
}

func (l *Ledger) propose(fileID string, kind Kind, rng Range, originalText, proposedText string) (Patch, error) {
	cleaned, err := workspace.CleanPath(fileID)
	if err != nil {
		return Patch{}, fmt.Errorf("propose %s: %w", kind, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if id, ok := l.byFile[cleaned]; ok {
		p := l.pending[id]
		p.Kind = kind
		p.ProposedText = proposedText
		p.Range = mergeRange(p.Range, rng)
		p.UpdatedAt = now
		return *p, nil
	}

	p := &Patch{
		ID:           uuid.NewString(),
		FileID:       cleaned,
		Range:        rng,
		OriginalText: originalText,
		ProposedText: proposedText,
		Kind:         kind,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	l.pending[p.ID] = p
	l.byFile[cleaned] = p.ID
	l.seq[p.ID] = l.next
	l.next++
	return *p, nil
}

func mergeRange(a, b Range) Range {
	if a == (Range{}) || b == (Range{}) {
		return Range{}
	}
	return Range{StartLine: min(a.StartLine, b.StartLine), EndLine: max(a.EndLine, b.EndLine)}
}

// Accept commits the patch to the base store and removes it from the pending set.
// On a store error the patch stays pending.
func (l *Ledger) Accept(id string) (Patch, error) {
	l.mu.Lock()
	p, ok := l.pending[id]
	if !ok {
		l.mu.Unlock()
		return Patch{}, fmt.Errorf("accept %s: %w", id, ErrNotFound)
	}
	if err := l.commit(p); err != nil {
		l.mu.Unlock()
		return Patch{}, fmt.Errorf("accept %s: %w", id, err)
	}
	resolved := l.resolve(p, StatusAccepted)
	hook := l.onResolve
	l.mu.Unlock()

	if hook != nil {
		hook(resolved)
	}
	return resolved, nil
}

// Reject discards the patch without touching the base store.
func (l *Ledger) Reject(id string) (Patch, error) {
	l.mu.Lock()
	p, ok := l.pending[id]
	if !ok {
		l.mu.Unlock()
		return Patch{}, fmt.Errorf("reject %s: %w", id, ErrNotFound)
	}
	resolved := l.resolve(p, StatusRejected)
	hook := l.onResolve
	l.mu.Unlock()

	if hook != nil {
		hook(resolved)
	}
	return resolved, nil
}

// AcceptAll accepts every pending patch in creation order. Patches whose commit
// fails stay pending and their errors are joined.
func (l *Ledger) AcceptAll() ([]Patch, error) {
	var (
		done []Patch
		errs []error
	)
	for _, p := range l.Pending() {
		resolved, err := l.Accept(p.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		done = append(done, resolved)
	}
	return done, errors.Join(errs...)
}

// RejectAll rejects every pending patch.
func (l *Ledger) RejectAll() []Patch {
	var done []Patch
	for _, p := range l.Pending() {
		if resolved, err := l.Reject(p.ID); err == nil {
			done = append(done, resolved)
		}
	}
	return done
}

// commit must be called with l.mu held.
func (l *Ledger) commit(p *Patch) error {
	switch p.Kind {
	case KindDelete:
		err := l.base.Delete(p.FileID)
		if err != nil && !errors.Is(err, workspace.ErrNotExist) {
			return err
		}
		return nil
	default:
		return l.base.Write(p.FileID, p.ProposedText)
	}
}

// resolve must be called with l.mu held.
func (l *Ledger) resolve(p *Patch, status Status) Patch {
	p.Status = status
	p.UpdatedAt = l.now()
	delete(l.pending, p.ID)
	delete(l.byFile, p.FileID)
	delete(l.seq, p.ID)
	l.history = append(l.history, *p)
	return *p
}

// Get returns a pending patch by ID.
func (l *Ledger) Get(id string) (Patch, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.pending[id]
	if !ok {
		return Patch{}, false
	}
	return *p, true
}

// Pending returns the pending patches in creation order.
func (l *Ledger) Pending() []Patch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Patch, 0, len(l.pending))
	for _, p := range l.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return l.seq[out[i].ID] < l.seq[out[j].ID] })
	return out
}

// Len returns the number of pending patches.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// ForFile returns the pending patch for fileID, if any.
func (l *Ledger) ForFile(fileID string) (Patch, bool) {
	cleaned, err := workspace.CleanPath(fileID)
	if err != nil {
		return Patch{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byFile[cleaned]
	if !ok {
		return Patch{}, false
	}
	return *l.pending[id], true
}

// History returns resolved patches in resolution order.
func (l *Ledger) History() []Patch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Patch, len(l.history))
	copy(out, l.history)
	return out
}

// PendingContent implements workspace.Proposals.
func (l *Ledger) PendingContent(p string) (content string, deleted bool, ok bool) {
	patch, found := l.ForFile(p)
	if !found {
		return "", false, false
	}
	return patch.ProposedText, patch.Kind == KindDelete, true
}

// PendingPaths implements workspace.Proposals.
func (l *Ledger) PendingPaths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.byFile))
	for fileID := range l.byFile {
		out = append(out, fileID)
	}
	sort.Strings(out)
	return out
}

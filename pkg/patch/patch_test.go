package patch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/workspace"
)

func newTestLedger(files map[string]string) (*Ledger, *workspace.MemStore) {
	store := workspace.NewMemStore(files)
	return NewLedger(store), store
}

func TestProposeCreatesPendingPatch(t *testing.T) {
	l, store := newTestLedger(map[string]string{"main.go": "old"})

	p, err := l.Propose("main.go", Range{StartLine: 1, EndLine: 1}, "old", "new")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, KindWrite, p.Kind)
	assert.Equal(t, "main.go", p.FileID)

	committed, err := store.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, "old", committed, "proposals never touch the store")
}

func TestSecondProposalUpdatesInPlace(t *testing.T) {
	l, _ := newTestLedger(map[string]string{"main.go": "v0"})

	first, err := l.Propose("main.go", Range{StartLine: 5, EndLine: 8}, "v0", "v1")
	require.NoError(t, err)
	second, err := l.Propose("./main.go", Range{StartLine: 2, EndLine: 6}, "v1", "v2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "v0", second.OriginalText, "original stays the committed text")
	assert.Equal(t, "v2", second.ProposedText)
	assert.Equal(t, Range{StartLine: 2, EndLine: 8}, second.Range)
	assert.Len(t, l.Pending(), 1)
}

func TestWholeFileRangeAbsorbs(t *testing.T) {
	l, _ := newTestLedger(nil)
	_, err := l.Propose("a.go", Range{StartLine: 3, EndLine: 4}, "", "x")
	require.NoError(t, err)
	p, err := l.Propose("a.go", Range{}, "", "y")
	require.NoError(t, err)
	assert.Equal(t, Range{}, p.Range)
}

func TestAcceptCommitsAndRemoves(t *testing.T) {
	l, store := newTestLedger(map[string]string{"main.go": "old"})
	var resolved []Patch
	l.OnResolve(func(p Patch) { resolved = append(resolved, p) })

	p, err := l.Propose("main.go", Range{}, "old", "new")
	require.NoError(t, err)

	accepted, err := l.Accept(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)

	content, err := store.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, "new", content)
	assert.Empty(t, l.Pending())
	_, ok := l.ForFile("main.go")
	assert.False(t, ok)
	require.Len(t, resolved, 1)
	assert.Len(t, l.History(), 1)

	_, err = l.Accept(p.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRejectDiscards(t *testing.T) {
	l, store := newTestLedger(map[string]string{"main.go": "old"})
	p, err := l.Propose("main.go", Range{}, "old", "new")
	require.NoError(t, err)

	rejected, err := l.Reject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)

	content, err := store.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, "old", content)

	_, err = l.Reject("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteProposal(t *testing.T) {
	l, store := newTestLedger(map[string]string{"old.go": "bye"})
	p, err := l.ProposeDelete("old.go", "bye")
	require.NoError(t, err)
	assert.Equal(t, KindDelete, p.Kind)

	content, deleted, ok := l.PendingContent("old.go")
	assert.True(t, ok)
	assert.True(t, deleted)
	assert.Empty(t, content)

	_, err = l.Accept(p.ID)
	require.NoError(t, err)
	_, err = store.Read("old.go")
	assert.True(t, errors.Is(err, workspace.ErrNotExist))
}

func TestDeleteOfUncommittedFileSucceeds(t *testing.T) {
	l, _ := newTestLedger(nil)
	_, err := l.Propose("tmp.go", Range{}, "", "scratch")
	require.NoError(t, err)
	p, err := l.ProposeDelete("tmp.go", "")
	require.NoError(t, err)

	_, err = l.Accept(p.ID)
	require.NoError(t, err)
}

func TestAtMostOnePendingPerFile(t *testing.T) {
	l, _ := newTestLedger(nil)
	for i := 0; i < 5; i++ {
		_, err := l.Propose("a.go", Range{}, "", "x")
		require.NoError(t, err)
		_, err = l.Propose("b.go", Range{}, "", "y")
		require.NoError(t, err)
	}
	_, err := l.ProposeDelete("a.go", "")
	require.NoError(t, err)

	pending := l.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "a.go", pending[0].FileID)
	assert.Equal(t, "b.go", pending[1].FileID)
	assert.Equal(t, []string{"a.go", "b.go"}, l.PendingPaths())
}

func TestAcceptAllAndRejectAll(t *testing.T) {
	l, store := newTestLedger(nil)
	_, _ = l.Propose("a.go", Range{}, "", "a")
	_, _ = l.Propose("b.go", Range{}, "", "b")

	done, err := l.AcceptAll()
	require.NoError(t, err)
	assert.Len(t, done, 2)
	all, _ := store.List("")
	assert.Equal(t, []string{"a.go", "b.go"}, all)

	_, _ = l.Propose("c.go", Range{}, "", "c")
	rejected := l.RejectAll()
	assert.Len(t, rejected, 1)
	assert.Equal(t, 0, l.Len())
}

type failingStore struct{ *workspace.MemStore }

func (failingStore) Write(string, string) error { return errors.New("disk full") }

func TestAcceptFailureKeepsPatchPending(t *testing.T) {
	l := NewLedger(failingStore{workspace.NewMemStore(nil)})
	p, err := l.Propose("a.go", Range{}, "", "a")
	require.NoError(t, err)

	_, err = l.Accept(p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	_, ok := l.Get(p.ID)
	assert.True(t, ok)

	_, err = l.AcceptAll()
	require.Error(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestUpdatedAtAdvances(t *testing.T) {
	l, _ := newTestLedger(nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	p1, _ := l.Propose("a.go", Range{}, "", "a")
	p2, _ := l.Propose("a.go", Range{}, "", "b")
	assert.Equal(t, p1.CreatedAt, p2.CreatedAt)
	assert.True(t, p2.UpdatedAt.After(p1.UpdatedAt))
}

func TestRejectsEscapingPath(t *testing.T) {
	l, _ := newTestLedger(nil)
	_, err := l.Propose("../etc/passwd", Range{}, "", "x")
	assert.True(t, errors.Is(err, workspace.ErrOutsideRoot))
}

package workspace

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type proposal struct {
	content string
	deleted bool
}

type fakeProposals map[string]proposal

func (f fakeProposals) PendingContent(p string) (string, bool, bool) {
	pr, ok := f[p]
	return pr.content, pr.deleted, ok
}

func (f fakeProposals) PendingPaths() []string {
	out := make([]string, 0, len(f))
	for p := range f {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func TestOverlayReadYourWrites(t *testing.T) {
	base := NewMemStore(map[string]string{"a.go": "committed a", "b.go": "committed b"})
	pending := fakeProposals{
		"a.go":   {content: "proposed a"},
		"b.go":   {deleted: true},
		"new.go": {content: "brand new"},
	}
	o := NewOverlay(base, pending)

	got, err := o.Read("a.go")
	require.NoError(t, err)
	assert.Equal(t, "proposed a", got)

	_, err = o.Read("b.go")
	assert.True(t, errors.Is(err, ErrNotExist))

	got, err = o.Read("./new.go")
	require.NoError(t, err)
	assert.Equal(t, "brand new", got)

	committed, exists, err := o.Committed("a.go")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "committed a", committed)

	_, exists, err = o.Committed("new.go")
	require.NoError(t, err)
	assert.False(t, exists)

	paths, err := o.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "new.go"}, paths)
}

func TestOverlayWithoutProposals(t *testing.T) {
	o := NewOverlay(NewMemStore(map[string]string{"x.txt": "x"}), nil)
	got, err := o.Read("x.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.True(t, o.Exists("x.txt"))
	assert.False(t, o.Exists("y.txt"))
}

func TestIndexFilesSkipsBinary(t *testing.T) {
	base := NewMemStore(map[string]string{
		"main.go":   "package main\n",
		"image.png": "\x89PNG\x00\x00data",
	})
	o := NewOverlay(base, fakeProposals{"extra.go": {content: "package extra\n"}})

	files := o.IndexFiles()
	require.Len(t, files, 2)
	assert.Equal(t, "extra.go", files[0].ID)
	assert.Equal(t, "main.go", files[1].Path)
}

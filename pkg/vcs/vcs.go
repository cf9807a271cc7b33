// Package vcs adapts a git working tree to the version-control surface the agent
// needs: status, staging, committing, diffing against HEAD and cloning.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

// ErrNotRepository is returned when a directory is not inside a git repository.
var ErrNotRepository = errors.New("not a git repository")

// FileStatus is the state of one path in the index and the working tree,
// using git's porcelain status letters.
type FileStatus struct {
	Path     string `json:"path"`
	Staging  string `json:"staging"`
	Worktree string `json:"worktree"`
}

// Repository is the version-control collaborator.
type Repository interface {
	Status() ([]FileStatus, error)
	Add(paths []string) error
	Commit(msg string) (string, error)
	// Diff renders a unified diff of current against the HEAD version of path.
	Diff(path, current string) (string, error)
	// HeadContent returns the committed content of path at HEAD. exists is
	// false when the path is not in HEAD or the repository has no commits.
	HeadContent(path string) (content string, exists bool, err error)
}

// Author identifies commits made through GitRepository.
type Author struct {
	Name  string
	Email string
}

// DefaultAuthor signs commits when none is configured.
//
//nolint:gochecknoglobals // default value
var DefaultAuthor = Author{Name: "agentforge", Email: "agentforge@localhost"}

// GitRepository implements Repository with go-git.
type GitRepository struct {
	repo   *git.Repository
	root   string
	author Author
}

var _ Repository = (*GitRepository)(nil)

// Open opens the repository containing dir.
func Open(dir string) (*GitRepository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	return &GitRepository{repo: repo, root: wt.Filesystem.Root(), author: DefaultAuthor}, nil
}

// Init creates a new repository in dir.
func Init(dir string) (*GitRepository, error) {
	if _, err := git.PlainInit(dir, false); err != nil {
		return nil, fmt.Errorf("init repository %s: %w", dir, err)
	}
	return Open(dir)
}

// Clone clones url into dir.
func Clone(ctx context.Context, url, dir string) (*GitRepository, error) {
	if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url}); err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	return Open(dir)
}

// SetAuthor sets the commit signature.
func (g *GitRepository) SetAuthor(a Author) { g.author = a }

// Root returns the working tree root.
func (g *GitRepository) Root() string { return g.root }

// Branch returns the current branch name, or "" on a detached or unborn HEAD.
func (g *GitRepository) Branch() string {
	head, err := g.repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// Status implements Repository. Unmodified paths are omitted; results are sorted.
func (g *GitRepository) Status() ([]FileStatus, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	out := make([]FileStatus, 0, len(st))
	for p, fs := range st {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		out = append(out, FileStatus{Path: p, Staging: string(rune(fs.Staging)), Worktree: string(rune(fs.Worktree))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Add implements Repository.
func (g *GitRepository) Add(paths []string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(filepath.ToSlash(p)); err != nil {
			return fmt.Errorf("add %s: %w", p, err)
		}
	}
	return nil
}

// Commit implements Repository and returns the new commit hash.
func (g *GitRepository) Commit(msg string) (string, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: g.author.Name, Email: g.author.Email, When: time.Now()},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

// HeadContent implements Repository.
func (g *GitRepository) HeadContent(path string) (string, bool, error) {
	head, err := g.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := g.repo.CommitObject(head.Hash())
	if err != nil {
		return "", false, fmt.Errorf("load HEAD commit: %w", err)
	}
	file, err := commit.File(filepath.ToSlash(path))
	if errors.Is(err, object.ErrFileNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s at HEAD: %w", path, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", false, fmt.Errorf("read %s at HEAD: %w", path, err)
	}
	return content, true, nil
}

// Diff implements Repository.
func (g *GitRepository) Diff(path, current string) (string, error) {
	head, _, err := g.HeadContent(path)
	if err != nil {
		return "", err
	}
	return UnifiedDiff(path, head, current), nil
}

// NoRepository stands in when the project is not under version control.
// Every file is treated as new.
type NoRepository struct{}

var _ Repository = NoRepository{}

func (NoRepository) Status() ([]FileStatus, error)            { return nil, ErrNotRepository }
func (NoRepository) Add([]string) error                       { return ErrNotRepository }
func (NoRepository) Commit(string) (string, error)            { return "", ErrNotRepository }
func (NoRepository) HeadContent(string) (string, bool, error) { return "", false, nil }

func (NoRepository) Diff(path, current string) (string, error) {
	return UnifiedDiff(path, "", current), nil
}

// OpenOrNone opens the repository containing dir, or returns NoRepository.
func OpenOrNone(dir string) Repository {
	repo, err := Open(dir)
	if err != nil {
		return NoRepository{}
	}
	return repo
}

// UnifiedDiff renders a git-style unified diff with three lines of context.
// Identical inputs produce "".
func UnifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return strings.TrimRight(text, "\n")
}

// splitLines splits s into newline-terminated lines. A missing final newline
// is added so the last line compares equal across edits.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	lines := strings.SplitAfter(s, "\n")
	return lines[:len(lines)-1]
}

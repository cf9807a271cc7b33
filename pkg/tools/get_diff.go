package tools

import (
	"errors"

	"agentforge/pkg/workspace"
)

// gitDiff diffs the effective content of a file against the last commit.
// A pending delete diffs against empty content.
func (g *Gateway) gitDiff(in GitDiff) Outcome {
	path, err := workspace.CleanPath(in.Path)
	if err != nil {
		return describeReadError(in.Path, err)
	}
	current, err := g.overlay.Read(path)
	if err != nil && !errors.Is(err, workspace.ErrNotExist) {
		return describeReadError(path, err)
	}

	diff, err := g.repo.Diff(path, current)
	if err != nil {
		return failuref("diff %s: %v", path, err)
	}
	if diff == "" {
		return success("No changes in %s since the last commit", path)
	}
	return Outcome{Result: diff}
}

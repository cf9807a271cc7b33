package tools

import (
	"errors"
	"strings"

	"agentforge/pkg/patch"
	"agentforge/pkg/workspace"
)

// writeFile proposes new content. With a line range, the range of the
// effective content is replaced and the resulting full file is proposed.
func (g *Gateway) writeFile(in WriteFile) Outcome {
	path, err := workspace.CleanPath(in.Path)
	if err != nil {
		return describeReadError(in.Path, err)
	}

	current, err := g.overlay.Read(path)
	exists := err == nil
	if err != nil && !errors.Is(err, workspace.ErrNotExist) {
		return describeReadError(path, err)
	}

	proposed := in.Content
	rng := patch.Range{}
	if in.StartLine > 0 {
		if !exists {
			return failuref("cannot replace lines in %s: file does not exist; omit start_line and end_line to create it", path)
		}
		var ok bool
		proposed, ok = replaceLines(current, in.StartLine, in.EndLine, in.Content)
		if !ok {
			return failuref("start_line %d is past the end of %s (%d lines)",
				in.StartLine, path, len(splitContentLines(current)))
		}
		rng = patch.Range{StartLine: in.StartLine, EndLine: in.EndLine}
	} else {
		rng = patch.Range{StartLine: 1, EndLine: max(1, len(splitContentLines(proposed)))}
	}

	if exists && proposed == current {
		return success("No changes: %s already has this content", path)
	}

	committed, _, err := g.overlay.Committed(path)
	if err != nil {
		return describeReadError(path, err)
	}
	p, err := g.ledger.Propose(path, rng, committed, proposed)
	if err != nil {
		return failure(err)
	}
	g.scheduleReindex()

	verb := "Updated"
	if !exists {
		verb = "Created"
	}
	out := success("%s %s (%d lines). Change staged as patch %s, pending review.",
		verb, path, len(splitContentLines(proposed)), p.ID)
	out.Patch = &p
	return out
}

// deleteFile proposes removing a file. Deleting a file that only exists as a
// pending creation discards that pending patch instead.
func (g *Gateway) deleteFile(in DeleteFile) Outcome {
	path, err := workspace.CleanPath(in.Path)
	if err != nil {
		return describeReadError(in.Path, err)
	}
	if !g.overlay.Exists(path) {
		return failuref("file not found: %s", path)
	}

	committed, inBase, err := g.overlay.Committed(path)
	if err != nil {
		return describeReadError(path, err)
	}
	if !inBase {
		if pending, ok := g.ledger.ForFile(path); ok {
			if _, err := g.ledger.Reject(pending.ID); err != nil {
				return failure(err)
			}
			g.scheduleReindex()
			return success("Discarded the pending creation of %s", path)
		}
	}

	p, err := g.ledger.ProposeDelete(path, committed)
	if err != nil {
		return failure(err)
	}
	g.scheduleReindex()
	out := success("Deletion of %s staged as patch %s, pending review.", path, p.ID)
	out.Patch = &p
	return out
}

// replaceLines swaps lines [start, end] of content for replacement. end is
// clamped to the last line; start may be one past the end to append.
func replaceLines(content string, start, end int, replacement string) (string, bool) {
	lines := splitContentLines(content)
	if start > len(lines)+1 {
		return "", false
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end < start-1 {
		end = start - 1
	}

	var repl []string
	if replacement != "" {
		repl = splitContentLines(replacement)
		if len(repl) == 0 {
			repl = []string{""}
		}
	}

	out := make([]string, 0, len(lines)-(end-start+1)+len(repl))
	out = append(out, lines[:start-1]...)
	out = append(out, repl...)
	out = append(out, lines[end:]...)

	joined := strings.Join(out, "\n")
	if len(out) > 0 && (strings.HasSuffix(content, "\n") || content == "") {
		joined += "\n"
	}
	return joined, true
}

package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	execpkg "agentforge/pkg/exec"
	"agentforge/pkg/lint"
	"agentforge/pkg/symbols"
)

// searchCode queries the retrieval index. A rebuild scheduled by an earlier
// write in this turn is flushed first so results reflect effective content.
func (g *Gateway) searchCode(in SearchCode) Outcome {
	if g.index == nil {
		return failuref("code search is not available in this session")
	}
	g.index.Flush()

	results := g.index.Search(in.Query, in.Limit)
	if len(results) == 0 {
		return success("No matches for %q", in.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d results for %q:\n", len(results), in.Query)
	for i := range results {
		r := &results[i]
		fmt.Fprintf(&sb, "\n%d. %s:%d-%d (score %.3f)\n", i+1, r.FilePath, r.StartLine, r.EndLine, r.Score)
		for _, line := range strings.Split(r.Snippet, "\n") {
			sb.WriteString("    ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return Outcome{Result: strings.TrimRight(sb.String(), "\n")}
}

func (g *Gateway) getSymbols(ctx context.Context, in GetSymbols) (Outcome, error) {
	content, err := g.overlay.Read(in.Path)
	if err != nil {
		return describeReadError(in.Path, err), nil
	}
	syms, err := g.outliner.Outline(ctx, in.Path, content)
	switch {
	case errors.Is(err, symbols.ErrUnsupported):
		return failuref("symbol outlines are not supported for %s", in.Path), nil
	case err != nil && ctx.Err() != nil:
		return Outcome{}, ctx.Err()
	case err != nil:
		return failuref("outline %s: %v", in.Path, err), nil
	}
	return success("Symbols in %s:\n%s", in.Path, strings.TrimRight(symbols.Format(syms), "\n")), nil
}

func (g *Gateway) lintFile(in LintFile) Outcome {
	content, err := g.overlay.Read(in.Path)
	if err != nil {
		return describeReadError(in.Path, err)
	}
	language := lint.LanguageForPath(in.Path)
	diags := g.linter.Lint(content, language)
	if len(diags) == 0 {
		return success("No issues found in %s", in.Path)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d issues in %s:\n", len(diags), in.Path)
	for i := range diags {
		d := &diags[i]
		fmt.Fprintf(&sb, "%s:%d:%d: %s: %s", in.Path, d.StartLine, d.StartColumn, d.Severity, d.Message)
		if d.Source != "" {
			fmt.Fprintf(&sb, " (%s)", d.Source)
		}
		sb.WriteString("\n")
	}
	return Outcome{Result: strings.TrimRight(sb.String(), "\n")}
}

// executeScript runs code in the evaluator. Rejected input is a tool error;
// cancellation of ctx is not.
func (g *Gateway) executeScript(ctx context.Context, in ExecuteScript) (Outcome, error) {
	opts := &execpkg.Opts{}
	if in.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	res, err := g.evaluator.Run(ctx, in.Code, opts)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return failure(err), nil
	}
	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	return Outcome{Result: res.Format()}, nil
}

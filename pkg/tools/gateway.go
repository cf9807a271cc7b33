package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	execpkg "agentforge/pkg/exec"
	"agentforge/pkg/lint"
	"agentforge/pkg/logx"
	"agentforge/pkg/patch"
	"agentforge/pkg/retrieval"
	"agentforge/pkg/symbols"
	"agentforge/pkg/vcs"
	"agentforge/pkg/workspace"
)

// Outcome is the result of one tool call. Result is always set and is fed
// back to the model verbatim. Patch is set when the call created or updated
// a pending patch.
type Outcome struct {
	Patch  *patch.Patch
	Result string
	Failed bool // Result is a tool error
}

// Observer is notified after every executed call.
type Observer func(tool string, failed bool, took time.Duration)

// Config wires a Gateway to one session's state. Overlay must layer Ledger
// over the same base store the ledger commits to.
type Config struct {
	Overlay   *workspace.Overlay
	Ledger    *patch.Ledger
	Index     *retrieval.Service  // optional; search_code reports an error without it
	Outliner  *symbols.Outliner   // defaults to the built-in grammars
	Repo      vcs.Repository      // defaults to vcs.NoRepository
	Linter    lint.Linter         // defaults to lint.Default()
	Evaluator execpkg.Evaluator   // defaults to the yaegi evaluator
	Observe   Observer
	Logger    *logx.Logger
}

// Gateway executes tool calls against a session's workspace.
type Gateway struct {
	overlay   *workspace.Overlay
	ledger    *patch.Ledger
	index     *retrieval.Service
	outliner  *symbols.Outliner
	repo      vcs.Repository
	linter    lint.Linter
	evaluator execpkg.Evaluator
	observe   Observer
	logger    *logx.Logger
}

// New creates a Gateway.
func New(cfg *Config) (*Gateway, error) {
	if cfg.Overlay == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("tool gateway requires an overlay and a ledger")
	}
	g := &Gateway{
		overlay:   cfg.Overlay,
		ledger:    cfg.Ledger,
		index:     cfg.Index,
		outliner:  cfg.Outliner,
		repo:      cfg.Repo,
		linter:    cfg.Linter,
		evaluator: cfg.Evaluator,
		observe:   cfg.Observe,
		logger:    cfg.Logger,
	}
	if g.outliner == nil {
		g.outliner = symbols.NewOutliner(nil)
	}
	if g.repo == nil {
		g.repo = vcs.NoRepository{}
	}
	if g.linter == nil {
		g.linter = lint.Default()
	}
	if g.evaluator == nil {
		g.evaluator = execpkg.NewYaegiEvaluator(execpkg.Opts{})
	}
	if g.logger == nil {
		g.logger = logx.NewLogger("tools")
	}
	return g, nil
}

// Definitions returns the definitions of every tool the gateway serves.
func (g *Gateway) Definitions() []ToolDefinition {
	return Definitions(AllTools)
}

// Execute runs call. Problems the model can act on (bad arguments, missing
// files, lint failures) come back as an Outcome whose Result starts with
// "Error: ". A non-nil error means the call itself could not be carried out,
// for example because ctx was cancelled.
func (g *Gateway) Execute(ctx context.Context, call Call) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	start := time.Now()

	inv, err := ParseCall(call.Name, call.Args)
	var out Outcome
	if err != nil {
		out = failure(err)
	} else {
		out, err = g.dispatch(ctx, inv)
		if err != nil {
			return Outcome{}, fmt.Errorf("tool %s: %w", call.Name, err)
		}
	}

	took := time.Since(start)
	if out.Failed {
		g.logger.Debug("Tool %s failed in %s: %s", call.Name, took, out.Result)
	} else {
		g.logger.Debug("Tool %s completed in %s", call.Name, took)
	}
	if g.observe != nil {
		g.observe(call.Name, out.Failed, took)
	}
	return out, nil
}

// ExecuteInvocation runs an already parsed invocation.
func (g *Gateway) ExecuteInvocation(ctx context.Context, inv Invocation) (Outcome, error) {
	return g.Execute(ctx, Call{Name: inv.ToolName(), Args: invocationArgs(inv)})
}

func (g *Gateway) dispatch(ctx context.Context, inv Invocation) (Outcome, error) {
	switch v := inv.(type) {
	case ListFiles:
		return g.listFiles(v), nil
	case ReadFile:
		return g.readFile(v), nil
	case WriteFile:
		return g.writeFile(v), nil
	case DeleteFile:
		return g.deleteFile(v), nil
	case SearchCode:
		return g.searchCode(v), nil
	case GetSymbols:
		return g.getSymbols(ctx, v)
	case GitDiff:
		return g.gitDiff(v), nil
	case LintFile:
		return g.lintFile(v), nil
	case ExecuteScript:
		return g.executeScript(ctx, v)
	}
	return Outcome{}, fmt.Errorf("%w: %T", ErrUnknownTool, inv)
}

// scheduleReindex queues a debounced rebuild of the index from effective content.
func (g *Gateway) scheduleReindex() {
	if g.index != nil {
		g.index.ScheduleFunc(g.overlay.IndexFiles)
	}
}

func failure(err error) Outcome {
	return Outcome{Result: "Error: " + err.Error(), Failed: true}
}

func failuref(format string, args ...any) Outcome {
	return failure(fmt.Errorf(format, args...))
}

func success(format string, args ...any) Outcome {
	return Outcome{Result: fmt.Sprintf(format, args...)}
}

// describeReadError turns a store error into model-facing text.
func describeReadError(path string, err error) Outcome {
	switch {
	case errors.Is(err, workspace.ErrOutsideRoot):
		return failuref("path %q is outside the project", path)
	case errors.Is(err, workspace.ErrNotExist):
		return failuref("file not found: %s", path)
	}
	return failuref("cannot read %s: %v", path, err)
}

func invocationArgs(inv Invocation) map[string]any {
	args := map[string]any{}
	putInt := func(key string, n int) {
		if n > 0 {
			args[key] = n
		}
	}
	switch v := inv.(type) {
	case ListFiles:
		args["prefix"] = v.Prefix
	case ReadFile:
		args["path"] = v.Path
		putInt("offset", v.Offset)
		putInt("limit", v.Limit)
	case WriteFile:
		args["path"] = v.Path
		args["content"] = v.Content
		putInt("start_line", v.StartLine)
		putInt("end_line", v.EndLine)
	case DeleteFile:
		args["path"] = v.Path
	case SearchCode:
		args["query"] = v.Query
		putInt("limit", v.Limit)
	case GetSymbols:
		args["path"] = v.Path
	case GitDiff:
		args["path"] = v.Path
	case LintFile:
		args["path"] = v.Path
	case ExecuteScript:
		args["code"] = v.Code
		putInt("timeout_seconds", v.TimeoutSeconds)
	}
	return args
}

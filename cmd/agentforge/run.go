package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentforge/pkg/agent"
	"agentforge/pkg/lint"
	"agentforge/pkg/llm"
	llmmetrics "agentforge/pkg/llm/middleware/metrics"
	"agentforge/pkg/llm/provider"
	"agentforge/pkg/logx"
	"agentforge/pkg/metrics"
	"agentforge/pkg/persistence"
	"agentforge/pkg/preflight"
	"agentforge/pkg/vcs"
	"agentforge/pkg/workspace"
)

// maxResultPreview bounds how much of a tool result is echoed to the terminal.
const maxResultPreview = 160

type runFlags struct {
	session    string
	acceptAll  bool
	commit     bool
	skipChecks bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Plan and carry out a goal, then review the proposed changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoal(cmd.Context(), cmd.OutOrStdout(), g, f, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&f.session, "session", "", "Continue a persisted session with this ID")
	cmd.Flags().BoolVar(&f.acceptAll, "accept-all", false, "Accept every proposed change without prompting")
	cmd.Flags().BoolVar(&f.commit, "commit", false, "Commit accepted changes to git")
	cmd.Flags().BoolVar(&f.skipChecks, "skip-checks", false, "Skip the environment checks")
	return cmd
}

func runGoal(ctx context.Context, out io.Writer, g *globalFlags, f *runFlags, goal string) error {
	p, err := loadProject(g)
	if err != nil {
		return err
	}

	if !f.skipChecks {
		env := preflight.CheckEnvironment(ctx, p.cfg)
		if !env.Passed {
			fmt.Fprint(out, preflight.FormatEnvResults(env))
			return errors.New(env.Summary)
		}
	}

	var collector *metrics.Collector
	var recorder llmmetrics.Recorder
	if p.cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		recorder = collector.LLMRecorder()
		stop := serveMetrics(p.cfg.Metrics.Listen, collector, p.logger)
		defer stop()
	}

	idx := p.newIndex(collector)
	defer idx.Close()

	var sessions *persistence.Store
	if p.cfg.Persistence.Enabled {
		if sessions, err = p.openSessions(); err != nil {
			return err
		}
		defer func() { _ = sessions.Close() }()
	}

	var stored *persistence.Session
	if f.session != "" {
		if sessions == nil {
			return errors.New("--session requires persistence to be enabled")
		}
		if stored, err = sessions.LoadSession(ctx, f.session); err != nil {
			return err
		}
	}

	factory := provider.NewFactory(p.cfg, recorder)
	opts := agent.Options{
		SessionID: f.session,
		Config:    p.cfg,
		NewClient: func(labels llmmetrics.LabelProvider) (llm.Client, error) {
			return factory.CreateClient(labels, logx.NewLogger("llm"))
		},
		Base:         p.store,
		Index:        idx,
		Repo:         vcs.OpenOrNone(p.cfg.ProjectDir),
		Linter:       lint.Default(),
		Metrics:      collector,
		OnStep:       func(s agent.AgentStep) { printStep(out, s) },
		OnTransition: func(t agent.StateTransition) { p.logger.Debug("%s → %s", t.FromState, t.ToState) },
	}
	if sessions != nil {
		opts.Log = sessions
	}
	orch, err := agent.New(opts)
	if err != nil {
		return err
	}
	defer orch.Close()

	watcher, err := workspace.NewWatcher(p.store, func(string) {
		idx.ScheduleFunc(orch.Overlay().IndexFiles)
	})
	if err != nil {
		p.logger.Warn("File watching disabled: %v", err)
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	if stored != nil {
		if err := orch.Restore(stored); err != nil {
			return err
		}
		err = orch.Instruct(ctx, goal)
	} else {
		err = orch.Start(ctx, goal)
	}
	if err != nil {
		return err
	}

	// The run ends on its own when ctx is cancelled, so wait without it.
	snap, err := orch.Wait(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSession %s: %s\n", snap.SessionID, snap.Status)
	if snap.FailureReason != "" {
		fmt.Fprintf(out, "Reason: %s\n", snap.FailureReason)
	}
	if snap.Usage.InputTokens+snap.Usage.OutputTokens > 0 {
		fmt.Fprintf(out, "Tokens: %d prompt, %d completion\n", snap.Usage.InputTokens, snap.Usage.OutputTokens)
	}
	if len(snap.Patches) == 0 {
		return nil
	}

	var accepted []string
	switch {
	case f.acceptAll:
		patches, err := orch.AcceptAll()
		if err != nil {
			return err
		}
		for i := range patches {
			accepted = append(accepted, patches[i].FileID)
		}
	case term.IsTerminal(int(os.Stdin.Fd())):
		if accepted, err = reviewPatches(os.Stdin, out, orch); err != nil {
			return err
		}
	default:
		fmt.Fprintf(out, "%d change(s) were proposed; rerun with --accept-all or in a terminal to review them.\n", len(snap.Patches))
		return nil
	}

	if f.commit && len(accepted) > 0 {
		return commitAccepted(out, p.cfg.ProjectDir, accepted, goal)
	}
	return nil
}

// commitAccepted stages paths (relative to projectDir) and commits them with goal as the message.
func commitAccepted(out io.Writer, projectDir string, paths []string, goal string) error {
	repo, err := vcs.Open(projectDir)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	rel := make([]string, 0, len(paths))
	for _, path := range paths {
		r, err := filepath.Rel(repo.Root(), filepath.Join(projectDir, path))
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		rel = append(rel, r)
	}
	if err := repo.Add(rel); err != nil {
		return err
	}
	hash, err := repo.Commit(goal)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Committed %d file(s) as %s\n", len(rel), shortHash(hash))
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// printStep renders one log entry for the terminal.
func printStep(out io.Writer, s agent.AgentStep) {
	switch s.Kind {
	case agent.StepUser:
		fmt.Fprintf(out, "> %s\n", s.Content)
	case agent.StepThought:
		fmt.Fprintf(out, "💭 %s\n", s.Content)
	case agent.StepCall:
		fmt.Fprintf(out, "🔧 %s %s\n", s.Tool, s.Content)
	case agent.StepResult:
		mark := "↳"
		if s.Failed {
			mark = "✗"
		}
		fmt.Fprintf(out, "   %s %s\n", mark, preview(s.Content, maxResultPreview))
	case agent.StepError:
		fmt.Fprintf(out, "❌ %s\n", s.Content)
	case agent.StepSummary:
		fmt.Fprintf(out, "\n📝 %s\n", s.Content)
	}
}

// preview returns the first line of s, cut to limit runes.
func preview(s string, limit int) string {
	line, rest, more := strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(line)
	if len(r) > limit {
		return string(r[:limit]) + "…"
	}
	if more && strings.TrimSpace(rest) != "" {
		return line + " …"
	}
	return line
}

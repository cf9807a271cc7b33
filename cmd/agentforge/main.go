// Command agentforge runs a planning coding agent over a local project.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"agentforge/pkg/config"
	"agentforge/pkg/logx"
	"agentforge/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	projectDir string
	model      string
	verbose    bool
	debug      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command line and returns an exit code, so deferred
// cleanup runs before os.Exit.
func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	var logFile *os.File

	root := &cobra.Command{
		Use:           "agentforge",
		Short:         "Plan, edit and pre-flight code changes with an LLM agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if g.debug {
				logx.SetDebugConfig(true)
			}
			if g.verbose {
				return nil
			}
			// Logs go to <project>/.agentforge/logs unless --verbose is set.
			dir := filepath.Join(g.projectDir, config.ProjectConfigDir, "logs")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create log dir: %w", err)
			}
			f, err := os.OpenFile(filepath.Join(dir, "agentforge.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			logFile = f
			logx.SetOutput(f)
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			_ = logx.Sync()
			if logFile == nil {
				return nil
			}
			logx.SetOutput(os.Stderr)
			err := logFile.Close()
			logFile = nil
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.projectDir, "projectdir", ".", "Project directory")
	flags.StringVar(&g.model, "model", "", "Model name (overrides config)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Write logs to stderr instead of the project log file")
	flags.BoolVar(&g.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newRunCmd(g),
		newSearchCmd(g),
		newIndexCmd(g),
		newSessionsCmd(g),
		newPreflightCmd(g),
		newDoctorCmd(g),
		newUsageCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.String())
		},
	}
}

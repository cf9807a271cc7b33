package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"agentforge/pkg/lint"
	"agentforge/pkg/preflight"
	"agentforge/pkg/workspace"
)

func newPreflightCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight <file>...",
		Short: "Run syntax, build and secret checks on project files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			validator := preflight.New(preflight.Options{
				Linter:     lint.Default(),
				SecretScan: p.cfg.Preflight.SecretScan,
			})

			failed := 0
			for _, arg := range args {
				path, err := workspace.CleanPath(arg)
				if err != nil {
					return err
				}
				content, err := p.store.Read(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				res := validator.Validate(cmd.Context(), path, content)
				verdict := "ok"
				if res.HasErrors {
					verdict = "FAILED"
					failed++
				}
				fmt.Fprintf(out, "%s: %s\n", path, verdict)
				printPreflight(out, res)
				for _, d := range res.Diagnostics {
					fmt.Fprintf(out, "    %d:%d %s %s\n", d.StartLine, d.StartColumn, d.Severity, d.Message)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed pre-flight", failed, len(args))
			}
			return nil
		},
	}
}

func newDoctorCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured LLM provider and repository are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject(g)
			if err != nil {
				return err
			}
			results := preflight.CheckEnvironment(cmd.Context(), p.cfg)
			fmt.Fprint(cmd.OutOrStdout(), preflight.FormatEnvResults(results))
			if !results.Passed {
				return errors.New(results.Summary)
			}
			return nil
		},
	}
}

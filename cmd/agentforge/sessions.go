package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentforge/pkg/persistence"
)

func newSessionsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSessions(g, func(store *persistence.Store) error {
				list, err := store.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				printSessions(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a session's plan and step log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(g, func(store *persistence.Store) error {
				sess, err := store.LoadSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), sess)
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a session and its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(g, func(store *persistence.Store) error {
				if err := store.DeleteSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func withSessions(g *globalFlags, fn func(*persistence.Store) error) error {
	p, err := loadProject(g)
	if err != nil {
		return err
	}
	store, err := p.openSessions()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func printSessions(out io.Writer, list []*persistence.Session) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tUPDATED\tTOKENS\tGOAL")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Status, s.UpdatedAt.Local().Format(time.DateTime),
			s.PromptTokens+s.CompletionTokens, preview(s.Goal, 60))
	}
	_ = tw.Flush()
}

func printSession(out io.Writer, s *persistence.Session) {
	fmt.Fprintf(out, "Session %s\n", s.ID)
	fmt.Fprintf(out, "  Goal:    %s\n", s.Goal)
	fmt.Fprintf(out, "  Status:  %s\n", s.Status)
	if s.FailureReason != "" {
		fmt.Fprintf(out, "  Reason:  %s\n", s.FailureReason)
	}
	fmt.Fprintf(out, "  Tokens:  %d prompt, %d completion\n", s.PromptTokens, s.CompletionTokens)

	if len(s.Plan) > 0 {
		fmt.Fprintln(out, "\nPlan:")
		for _, st := range s.Plan {
			fmt.Fprintf(out, "  [%s] %s. %s\n", st.Status, st.ID, st.Title)
		}
	}
	if len(s.Steps) > 0 {
		fmt.Fprintln(out, "\nLog:")
		for _, st := range s.Steps {
			fmt.Fprintf(out, "  %4d %-8s %s\n", st.Seq, st.Kind, preview(stepLine(st), maxResultPreview))
		}
	}
}

func stepLine(st persistence.Step) string {
	if st.Tool != "" {
		return st.Tool + " " + st.Content
	}
	return st.Content
}

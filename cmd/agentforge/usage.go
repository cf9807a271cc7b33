package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"agentforge/pkg/metrics"
)

func newUsageCmd() *cobra.Command {
	var (
		prometheusURL string
		byModel       bool
	)
	cmd := &cobra.Command{
		Use:   "usage <session-id>",
		Short: "Query token usage for a session from Prometheus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := metrics.NewQueryService(prometheusURL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !byModel {
				u, err := q.GetSessionUsage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d prompt + %d completion = %d tokens over %d request(s)\n",
					u.SessionID, u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.Requests)
				return nil
			}

			usage, err := q.GetSessionUsageByModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			models := make([]string, 0, len(usage))
			for m := range usage {
				models = append(models, m)
			}
			sort.Strings(models)
			for _, m := range models {
				u := usage[m]
				fmt.Fprintf(out, "%s: %d prompt + %d completion = %d tokens over %d request(s)\n",
					m, u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.Requests)
			}
			if len(models) == 0 {
				fmt.Fprintln(out, "No usage recorded.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prometheusURL, "prometheus", "http://localhost:9090", "Prometheus server URL")
	cmd.Flags().BoolVar(&byModel, "by-model", false, "Break usage down by model")
	return cmd
}

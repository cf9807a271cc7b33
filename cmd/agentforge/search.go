package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agentforge/pkg/retrieval"
	"agentforge/pkg/workspace"
)

func newSearchCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the project with the retrieval index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(g)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = p.cfg.Retrieval.SearchLimit
			}
			idx := p.newIndex(nil)
			defer idx.Close()

			results := idx.Search(strings.Join(args, " "), limit)
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	return cmd
}

func printResults(out io.Writer, results []retrieval.Result) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No matches.")
		return
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s:%d-%d  (%.3f)\n", r.FilePath, r.StartLine, r.EndLine, r.Score)
		if r.Snippet != "" {
			fmt.Fprintf(out, "    %s\n", r.Snippet)
		}
	}
}

func newIndexCmd(g *globalFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the retrieval index and report its size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject(g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			files := workspace.NewOverlay(p.store, nil).IndexFiles()
			opts := retrieval.Options{
				WindowLines: p.cfg.Retrieval.ChunkLines,
				StrideLines: p.cfg.Retrieval.ChunkStride,
				MinScore:    p.cfg.Retrieval.MinScore,
				Debounce:    p.cfg.Retrieval.RebuildDebounce,
				OnRebuild: func(chunks int, took time.Duration) {
					fmt.Fprintf(out, "Indexed %d chunks in %s\n", chunks, took.Round(time.Millisecond))
				},
			}
			idx := retrieval.NewService(opts)
			defer idx.Close()

			ix := idx.Reindex(files)
			fmt.Fprintf(out, "  Files:      %d\n", len(files))
			fmt.Fprintf(out, "  Chunks:     %d\n", ix.Len())
			fmt.Fprintf(out, "  Vocabulary: %d terms\n", len(ix.Vocabulary()))
			if !watch {
				return nil
			}

			watcher, err := workspace.NewWatcher(p.store, func(string) {
				idx.ScheduleFunc(workspace.NewOverlay(p.store, nil).IndexFiles)
			})
			if err != nil {
				return fmt.Errorf("watch %s: %w", p.cfg.ProjectDir, err)
			}
			watcher.Start()
			defer watcher.Stop()

			fmt.Fprintln(out, "Watching for changes, press Ctrl-C to stop.")
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and reindex when files change")
	return cmd
}

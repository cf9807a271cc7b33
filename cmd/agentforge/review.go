package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"agentforge/pkg/agent"
	"agentforge/pkg/patch"
	"agentforge/pkg/preflight"
	"agentforge/pkg/vcs"
)

// reviewPatches walks the pending patches, asking for a decision on each.
// It returns the paths that were accepted.
func reviewPatches(in io.Reader, out io.Writer, orch *agent.Orchestrator) ([]string, error) {
	reader := bufio.NewReader(in)
	var accepted []string

	for _, p := range orch.Snapshot().Patches {
		showPatch(out, p, orch)

		answer, err := ask(reader, out)
		if err == io.EOF {
			fmt.Fprintln(out)
			return accepted, nil
		}
		if err != nil {
			return accepted, err
		}

		switch answer {
		case "a":
			if _, err := orch.Accept(p.ID); err != nil {
				return accepted, err
			}
			accepted = append(accepted, p.FileID)
		case "r":
			if _, err := orch.Reject(p.ID); err != nil {
				return accepted, err
			}
		case "A":
			all, err := orch.AcceptAll()
			if err != nil {
				return accepted, err
			}
			for i := range all {
				accepted = append(accepted, all[i].FileID)
			}
			return accepted, nil
		case "R":
			_, err := orch.RejectAll()
			return accepted, err
		}
	}
	return accepted, nil
}

// ask prompts until it reads a known answer. An empty line means skip.
func ask(reader *bufio.Reader, out io.Writer) (string, error) {
	for {
		fmt.Fprint(out, "[a]ccept  [r]eject  [A]ccept all  [R]eject all  [s]kip > ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		switch answer := strings.TrimSpace(line); answer {
		case "a", "r", "A", "R", "s":
			return answer, nil
		case "":
			return "s", nil
		case "y":
			return "a", nil
		case "n":
			return "r", nil
		}
	}
}

func showPatch(out io.Writer, p patch.Patch, orch *agent.Orchestrator) {
	fmt.Fprintf(out, "\n── %s (%s, lines %d-%d) ──\n", p.FileID, p.Kind, p.Range.StartLine, p.Range.EndLine)
	after := p.ProposedText
	if p.Kind == patch.KindDelete {
		after = ""
	}
	fmt.Fprint(out, vcs.UnifiedDiff(p.FileID, p.OriginalText, after))

	if res, ok := orch.LatestPreFlight(p.FileID); ok {
		printPreflight(out, res)
	}
}

// printPreflight renders one check per line.
func printPreflight(out io.Writer, res preflight.Result) {
	for _, c := range res.Checks {
		fmt.Fprintf(out, "  %-18s %-8s %s\n", c.Name, c.Status, c.Message)
	}
}

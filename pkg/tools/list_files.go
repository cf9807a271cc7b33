package tools

import (
	"fmt"
	"strings"
)

// listFiles lists effective paths, capped at maxListResults.
func (g *Gateway) listFiles(in ListFiles) Outcome {
	paths, err := g.overlay.List(in.Prefix)
	if err != nil {
		return describeReadError(in.Prefix, err)
	}
	if len(paths) == 0 {
		if in.Prefix == "" {
			return success("No files found")
		}
		return success("No files found under %s", in.Prefix)
	}

	truncated := len(paths) > maxListResults
	if truncated {
		paths = paths[:maxListResults]
	}

	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(p)
		if _, pending := g.ledger.ForFile(p); pending {
			sb.WriteString(" (pending)")
		}
		sb.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&sb, "... truncated at %d files; narrow the prefix\n", maxListResults)
	}
	return Outcome{Result: strings.TrimRight(sb.String(), "\n")}
}

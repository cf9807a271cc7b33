package tools

import (
	"fmt"
	"strings"
)

// readFile renders effective content in cat -n format.
func (g *Gateway) readFile(in ReadFile) Outcome {
	content, err := g.overlay.Read(in.Path)
	if err != nil {
		return describeReadError(in.Path, err)
	}

	lines := splitContentLines(content)
	total := len(lines)
	if total == 0 {
		return success("%s is empty", in.Path)
	}
	if in.Offset > total {
		return failuref("offset %d is past the end of %s (%d lines)", in.Offset, in.Path, total)
	}

	end := in.Offset + in.Limit - 1
	if end > total {
		end = total
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s (lines %d-%d of %d)", in.Path, in.Offset, end, total)
	if _, pending := g.ledger.ForFile(in.Path); pending {
		sb.WriteString(" [includes pending changes]")
	}
	sb.WriteString("\n")
	for i := in.Offset; i <= end; i++ {
		line := lines[i-1]
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		fmt.Fprintf(&sb, "%6d\t%s\n", i, line)
	}
	if end < total {
		fmt.Fprintf(&sb, "... %d more lines; use offset=%d to continue\n", total-end, end+1)
	}
	return Outcome{Result: strings.TrimRight(sb.String(), "\n")}
}

// splitContentLines splits content into lines. A trailing newline does not
// start another line.
func splitContentLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

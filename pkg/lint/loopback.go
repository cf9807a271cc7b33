package lint

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // compiled once
var (
	// loopbackRegex matches loopback hosts. 0.0.0.0 is a bind address and is not flagged.
	loopbackRegex = regexp.MustCompile(`\b(localhost|127\.0\.0\.1|127\.0\.1\.1)\b`)

	// ipv6LoopbackRegex matches ::1; \b does not work next to colons.
	ipv6LoopbackRegex = regexp.MustCompile(`(^|[^:])::1(\D|$)`)

	// nolintRegex matches the suppression directive, which needs whitespace before '#'.
	nolintRegex = regexp.MustCompile(`\s#\s*nolint:localhost`)
)

const loopbackHint = "loopback address %q in service configuration; inside containers this points at the container itself, use the service name (suppress with `# nolint:localhost`)"

// findLoopback returns the matched loopback pattern and its byte offset, or "" and -1.
func findLoopback(s string) (string, int) {
	if loc := loopbackRegex.FindStringIndex(s); loc != nil {
		return s[loc[0]:loc[1]], loc[0]
	}
	if loc := ipv6LoopbackRegex.FindStringIndex(s); loc != nil {
		idx := strings.Index(s[loc[0]:], "::1")
		return "::1", loc[0] + idx
	}
	return "", -1
}

// envLoopback flags loopback hosts in .env assignments.
func envLoopback(content string) []Diagnostic {
	var diags []Diagnostic
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || !strings.Contains(line, "=") {
			continue
		}
		if nolintRegex.MatchString(line) {
			continue
		}
		if match, offset := findLoopback(line); match != "" {
			diags = append(diags, Diagnostic{
				Message:     fmt.Sprintf(loopbackHint, match),
				Severity:    SeverityWarning,
				Source:      "loopback",
				StartLine:   i + 1,
				StartColumn: offset + 1,
				EndLine:     i + 1,
				EndColumn:   offset + len(match) + 1,
			})
		}
	}
	return diags
}

// composeLoopback flags loopback hosts in services.*.environment of a compose
// file. Both the map and the list form of environment are scanned.
func composeLoopback(content string) []Diagnostic {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil || len(doc.Content) == 0 {
		return nil
	}
	services := mappingValue(doc.Content[0], "services")
	if services == nil || services.Kind != yaml.MappingNode {
		return nil
	}

	var diags []Diagnostic
	for i := 0; i+1 < len(services.Content); i += 2 {
		env := mappingValue(services.Content[i+1], "environment")
		if env == nil {
			continue
		}
		var values []*yaml.Node
		switch env.Kind {
		case yaml.MappingNode:
			for j := 1; j < len(env.Content); j += 2 {
				values = append(values, env.Content[j])
			}
		case yaml.SequenceNode:
			values = env.Content
		}
		for _, v := range values {
			if v.Kind != yaml.ScalarNode || nolintRegex.MatchString(" "+v.LineComment) {
				continue
			}
			if match, offset := findLoopback(v.Value); match != "" {
				diags = append(diags, Diagnostic{
					Message:     fmt.Sprintf(loopbackHint, match),
					Severity:    SeverityWarning,
					Source:      "loopback",
					StartLine:   v.Line,
					StartColumn: v.Column + offset,
					EndLine:     v.Line,
					EndColumn:   v.Column + offset + len(match),
				})
			}
		}
	}
	return diags
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

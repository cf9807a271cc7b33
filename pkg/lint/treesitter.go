package lint

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxSyntaxDiagnostics caps the parse errors reported for one file.
const maxSyntaxDiagnostics = 20

// treeSitterSyntax returns a rule reporting the ERROR and MISSING nodes of a
// tree-sitter parse. With several grammars the content is accepted when any
// of them parses it cleanly, otherwise the first grammar's errors are reported.
func treeSitterSyntax(source string, grammars ...*sitter.Language) Rule {
	return func(content string) []Diagnostic {
		var first []Diagnostic
		for i, grammar := range grammars {
			diags := parseErrors(source, grammar, content)
			if len(diags) == 0 {
				return nil
			}
			if i == 0 {
				first = diags
			}
		}
		return first
	}
}

func parseErrors(source string, grammar *sitter.Language, content string) []Diagnostic {
	src := []byte(content)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return []Diagnostic{{
			Message:     fmt.Sprintf("parse failed: %v", err),
			Severity:    SeverityError,
			Source:      source,
			StartLine:   1,
			StartColumn: 1,
			EndLine:     1,
			EndColumn:   1,
		}}
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	var out []Diagnostic
	collectSyntaxErrors(root, src, source, &out)
	if len(out) == 0 {
		out = append(out, Diagnostic{
			Message:     "syntax error",
			Severity:    SeverityError,
			Source:      source,
			StartLine:   1,
			StartColumn: 1,
			EndLine:     1,
			EndColumn:   1,
		})
	}
	return out
}

// collectSyntaxErrors walks only subtrees that contain errors.
func collectSyntaxErrors(n *sitter.Node, src []byte, source string, out *[]Diagnostic) {
	if n == nil || len(*out) >= maxSyntaxDiagnostics {
		return
	}
	switch {
	case n.IsMissing():
		*out = append(*out, nodeDiagnostic(n, fmt.Sprintf("missing %q", n.Type()), source))
		return
	case n.Type() == "ERROR":
		msg := "syntax error"
		if near := errorText(n.Content(src)); near != "" {
			msg = fmt.Sprintf("syntax error near %q", near)
		}
		*out = append(*out, nodeDiagnostic(n, msg, source))
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collectSyntaxErrors(n.Child(i), src, source, out)
	}
}

func nodeDiagnostic(n *sitter.Node, msg, source string) Diagnostic {
	start, end := n.StartPoint(), n.EndPoint()
	return Diagnostic{
		Message:     msg,
		Severity:    SeverityError,
		Source:      source,
		StartLine:   int(start.Row) + 1,
		StartColumn: int(start.Column) + 1,
		EndLine:     int(end.Row) + 1,
		EndColumn:   int(end.Column) + 1,
	}
}

// errorText is the first line of an error node, cut to a readable length.
func errorText(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if r := []rune(s); len(r) > 30 {
		s = string(r[:30]) + "…"
	}
	return s
}

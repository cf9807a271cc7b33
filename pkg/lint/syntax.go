package lint

import (
	"encoding/json"
	"errors"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// goSyntax reports Go parse errors.
func goSyntax(content string) []Diagnostic {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "", content, parser.AllErrors)
	if err == nil {
		return nil
	}

	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return []Diagnostic{{Message: err.Error(), Severity: SeverityError, Source: "go", StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 1}}
	}
	diags := make([]Diagnostic, 0, len(list))
	for _, e := range list {
		diags = append(diags, Diagnostic{
			Message:     e.Msg,
			Severity:    SeverityError,
			Source:      "go",
			StartLine:   e.Pos.Line,
			StartColumn: e.Pos.Column,
			EndLine:     e.Pos.Line,
			EndColumn:   max(e.Pos.Column, lineLen(content, e.Pos.Line)+1),
		})
	}
	return diags
}

// jsonSyntax reports the first JSON syntax error.
func jsonSyntax(content string) []Diagnostic {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	var v any
	err := json.Unmarshal([]byte(content), &v)
	if err == nil {
		return nil
	}

	offset := len(content)
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		offset = int(syn.Offset)
	}
	line, col := lineCol(content, offset)
	return []Diagnostic{{
		Message: err.Error(), Severity: SeverityError, Source: "json",
		StartLine: line, StartColumn: col, EndLine: line, EndColumn: col,
	}}
}

//nolint:gochecknoglobals // compiled once
var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// yamlSyntax reports YAML parse errors across every document in content.
func yamlSyntax(content string) []Diagnostic {
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			line := 1
			if m := yamlLineRegex.FindStringSubmatch(err.Error()); m != nil {
				if n, convErr := strconv.Atoi(m[1]); convErr == nil {
					line = n
				}
			}
			return []Diagnostic{{
				Message: strings.TrimPrefix(err.Error(), "yaml: "), Severity: SeverityError, Source: "yaml",
				StartLine: line, StartColumn: 1, EndLine: line, EndColumn: lineLen(content, line) + 1,
			}}
		}
	}
}

// pythonIndentation warns about lines indented with a mix of tabs and spaces.
func pythonIndentation(content string) []Diagnostic {
	var diags []Diagnostic
	for i, line := range strings.Split(content, "\n") {
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if strings.Contains(indent, "\t") && strings.Contains(indent, " ") {
			diags = append(diags, Diagnostic{
				Message: "inconsistent use of tabs and spaces in indentation", Severity: SeverityWarning, Source: "python",
				StartLine: i + 1, StartColumn: 1, EndLine: i + 1, EndColumn: len(indent) + 1,
			})
		}
	}
	return diags
}

// Package lint produces editor-style diagnostics for file content. It backs the
// lint_file tool and the syntax phase of pre-flight validation.
package lint

import (
	"path"
	"sort"
	"strings"

	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Language identifiers returned by LanguageForPath.
const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangJSON       = "json"
	LangYAML       = "yaml"
	LangCompose    = "compose"
	LangEnv        = "env"
	LangMarkdown   = "markdown"
	LangText       = "text"
)

// Diagnostic is one finding. Lines and columns are 1-based.
type Diagnostic struct {
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Source      string   `json:"source,omitempty"`
	StartLine   int      `json:"start_line"`
	StartColumn int      `json:"start_column"`
	EndLine     int      `json:"end_line"`
	EndColumn   int      `json:"end_column"`
}

// Linter reports diagnostics for content written in language.
type Linter interface {
	Lint(content, language string) []Diagnostic
}

// Rule is a single check for one language.
type Rule func(content string) []Diagnostic

// Registry dispatches to the rules registered for a language.
type Registry struct {
	rules map[string][]Rule
}

var _ Linter = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string][]Rule)}
}

// Default returns a registry with the built-in rules.
func Default() *Registry {
	r := NewRegistry()
	r.Register(LangGo, goSyntax)
	r.Register(LangJSON, jsonSyntax)
	r.Register(LangYAML, yamlSyntax)
	r.Register(LangCompose, yamlSyntax, composeLoopback)
	r.Register(LangEnv, envLoopback)
	r.Register(LangPython, treeSitterSyntax(LangPython, python.GetLanguage()), pythonIndentation)
	r.Register(LangJavaScript, treeSitterSyntax(LangJavaScript, javascript.GetLanguage()))
	// .ts and .tsx share a language; JSX only parses with the tsx grammar.
	r.Register(LangTypeScript, treeSitterSyntax(LangTypeScript, typescript.GetLanguage(), tsx.GetLanguage()))
	return r
}

// Register adds rules for language.
func (r *Registry) Register(language string, rules ...Rule) {
	r.rules[language] = append(r.rules[language], rules...)
}

// Supports reports whether any rule exists for language.
func (r *Registry) Supports(language string) bool {
	return len(r.rules[language]) > 0
}

// Lint implements Linter. Results are ordered by position. Unknown languages
// produce no diagnostics.
func (r *Registry) Lint(content, language string) []Diagnostic {
	var out []Diagnostic
	for _, rule := range r.rules[language] {
		out = append(out, rule(content)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].StartColumn < out[j].StartColumn
	})
	return out
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for i := range diags {
		if diags[i].Severity == SeverityError {
			return true
		}
	}
	return false
}

// LanguageForPath infers a language from a file name.
func LanguageForPath(p string) string {
	base := strings.ToLower(path.Base(p))
	switch {
	case isComposeName(base):
		return LangCompose
	case base == ".env" || strings.HasPrefix(base, ".env.") || strings.HasSuffix(base, ".env"):
		return LangEnv
	}

	switch path.Ext(base) {
	case ".go":
		return LangGo
	case ".py":
		return LangPython
	case ".js", ".jsx", ".mjs", ".cjs":
		return LangJavaScript
	case ".ts", ".tsx":
		return LangTypeScript
	case ".json":
		return LangJSON
	case ".yaml", ".yml":
		return LangYAML
	case ".md", ".markdown":
		return LangMarkdown
	}
	return LangText
}

func isComposeName(base string) bool {
	switch base {
	case "compose.yml", "compose.yaml", "docker-compose.yml", "docker-compose.yaml":
		return true
	}
	return strings.HasPrefix(base, "docker-compose.") && (strings.HasSuffix(base, ".yml") || strings.HasSuffix(base, ".yaml"))
}

// lineCol converts a byte offset into a 1-based line and column.
func lineCol(content string, offset int) (int, int) {
	if offset > len(content) {
		offset = len(content)
	}
	if offset < 0 {
		offset = 0
	}
	line := 1 + strings.Count(content[:offset], "\n")
	col := offset - strings.LastIndex(content[:offset], "\n")
	return line, col
}

// lineLen returns the length of the given 1-based line.
func lineLen(content string, line int) int {
	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines) {
		return 0
	}
	return len(lines[line-1])
}

package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageForPath(t *testing.T) {
	tests := map[string]string{
		"main.go":                 LangGo,
		"pkg/server/app.py":       LangPython,
		"web/index.tsx":           LangTypeScript,
		"web/app.mjs":             LangJavaScript,
		"package.json":            LangJSON,
		"config.yml":              LangYAML,
		"docker-compose.yml":      LangCompose,
		"docker-compose.dev.yaml": LangCompose,
		".env":                    LangEnv,
		".env.local":              LangEnv,
		"prod.env":                LangEnv,
		"README.md":               LangMarkdown,
		"Makefile":                LangText,
	}
	for p, want := range tests {
		assert.Equal(t, want, LanguageForPath(p), p)
	}
}

func TestGoSyntaxError(t *testing.T) {
	diags := Default().Lint("package main\n\nfunc main() {\n\tfmt.Println(\"hi\"\n}\n", LangGo)
	require.NotEmpty(t, diags)
	assert.True(t, HasErrors(diags))
	assert.Equal(t, 4, diags[0].StartLine)
	assert.Equal(t, "go", diags[0].Source)
}

func TestGoValid(t *testing.T) {
	diags := Default().Lint("package main\n\nfunc main() {}\n", LangGo)
	assert.Empty(t, diags)
}

func TestJSONSyntax(t *testing.T) {
	diags := Default().Lint("{\n  \"a\": 1,\n  \"b\": \n}\n", LangJSON)
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.Equal(t, 4, diags[0].StartLine)

	assert.Empty(t, Default().Lint(`{"ok": true}`, LangJSON))
	assert.Empty(t, Default().Lint("", LangJSON))
}

func TestYAMLSyntax(t *testing.T) {
	diags := Default().Lint("a: 1\nb: [1, 2\nc: 3\n", LangYAML)
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.GreaterOrEqual(t, diags[0].StartLine, 2)

	assert.Empty(t, Default().Lint("a: 1\n---\nb: 2\n", LangYAML))
}

func TestPythonMixedIndentation(t *testing.T) {
	diags := Default().Lint("def f():\n \tpass\n", LangPython)
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
	assert.False(t, HasErrors(diags))
}

func TestUnknownLanguageIsClean(t *testing.T) {
	r := Default()
	assert.False(t, r.Supports(LangText))
	assert.Empty(t, r.Lint("{{{ anything", LangText))
}

func TestRegisterCustomRule(t *testing.T) {
	r := NewRegistry()
	r.Register("todo", func(content string) []Diagnostic {
		return []Diagnostic{{Message: "b", StartLine: 2}, {Message: "a", StartLine: 1}}
	})
	diags := r.Lint("", "todo")
	require.Len(t, diags, 2)
	assert.Equal(t, "a", diags[0].Message)
}

func TestLineCol(t *testing.T) {
	content := "ab\ncd\nef"
	line, col := lineCol(content, 4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)
	line, col = lineCol(content, 0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)
}

func TestTreeSitterSyntax(t *testing.T) {
	tests := []struct {
		name     string
		language string
		content  string
		wantLine int
	}{
		{"javascript broken", LangJavaScript, "const x = ;\nlet = 5\n", 1},
		{"javascript valid", LangJavaScript, "const x = 1;\nfunction f() { return x; }\n", 0},
		{"javascript jsx", LangJavaScript, "const el = <div>{1}</div>;\n", 0},
		{"typescript broken", LangTypeScript, "const x: number = 1;\nconst y: number = ;\n", 2},
		{"typescript valid", LangTypeScript, "interface A { n: number }\nconst f = (a: A): number => a.n;\n", 0},
		{"tsx falls back to jsx grammar", LangTypeScript, "const el = <div>{1}</div>;\n", 0},
		{"python broken", LangPython, "def f(:\n    pass\n", 1},
		{"python valid", LangPython, "def f(x):\n    \"\"\"Steps.\n\n    1) fetch\n    \"\"\"\n    return x\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Default().Lint(tt.content, tt.language)
			if tt.wantLine == 0 {
				assert.Empty(t, diags)
				return
			}
			require.NotEmpty(t, diags)
			assert.True(t, HasErrors(diags))
			assert.Equal(t, tt.wantLine, diags[0].StartLine)
			assert.Equal(t, tt.language, diags[0].Source)
			assert.GreaterOrEqual(t, diags[0].StartColumn, 1)
		})
	}
}

func TestTreeSitterReportsMissingNode(t *testing.T) {
	diags := Default().Lint("function f() {\n  return 1;\n", LangJavaScript)
	require.NotEmpty(t, diags)
	assert.True(t, HasErrors(diags))
	assert.Contains(t, diags[0].Message, "missing")
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "= ;", errorText("  = ;\nlet"))
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz0123…", errorText("abcdefghijklmnopqrstuvwxyz0123456789"))
}

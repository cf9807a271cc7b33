// Package tools implements the tool gateway: the closed set of operations a
// language model may invoke against a session's workspace. Mutations never
// touch committed files; they become patches in the session ledger.
package tools

import (
	"fmt"
	"strings"
)

// Property describes one argument in a tool's input schema.
type Property struct {
	Items       *Property `json:"items,omitempty"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

// InputSchema is the JSON schema of a tool's arguments.
type InputSchema struct {
	Properties map[string]Property `json:"properties"`
	Type       string              `json:"type"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is what the model sees for one tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

//nolint:gochecknoglobals // static tool catalogue
var definitions = map[string]ToolDefinition{
	ToolListFiles: {
		Name:        ToolListFiles,
		Description: "List files in the project, including files created by pending changes. Use this to explore what files exist.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"prefix": {Type: "string", Description: "Only list paths under this directory (e.g. 'pkg/api'). Defaults to the project root."},
			},
		},
	},
	ToolReadFile: {
		Name:        ToolReadFile,
		Description: "Read a file. Pending changes are visible: you always read what you last wrote. Output uses numbered lines. For large files, use offset and limit to read specific sections.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path":   {Type: "string", Description: "Relative path to the file"},
				"offset": {Type: "integer", Description: "Line number to start reading from (1-based). Defaults to 1."},
				"limit":  {Type: "integer", Description: "Number of lines to read. Defaults to 2000."},
			},
			Required: []string{"path"},
		},
	},
	ToolWriteFile: {
		Name:        ToolWriteFile,
		Description: "Propose new content for a file. The change is staged for human review, not written immediately. Give start_line and end_line to replace only that line range; omit them to replace the whole file or create it.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path":       {Type: "string", Description: "Relative path to the file"},
				"content":    {Type: "string", Description: "New content for the file or for the given line range"},
				"start_line": {Type: "integer", Description: "First line to replace (1-based, inclusive)"},
				"end_line":   {Type: "integer", Description: "Last line to replace (1-based, inclusive)"},
			},
			Required: []string{"path", "content"},
		},
	},
	ToolDeleteFile: {
		Name:        ToolDeleteFile,
		Description: "Propose deleting a file. The deletion is staged for human review.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Relative path to the file"},
			},
			Required: []string{"path"},
		},
	},
	ToolSearchCode: {
		Name:        ToolSearchCode,
		Description: "Search the project for code relevant to a natural-language or identifier query. Returns ranked file ranges with snippets.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {Type: "string", Description: "What to look for"},
				"limit": {Type: "integer", Description: "Maximum results (default 5, max 20)"},
			},
			Required: []string{"query"},
		},
	},
	ToolGetSymbols: {
		Name:        ToolGetSymbols,
		Description: "List the functions, types and classes declared in a source file with their line ranges.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Relative path to the file"},
			},
			Required: []string{"path"},
		},
	},
	ToolGitDiff: {
		Name:        ToolGitDiff,
		Description: "Show a unified diff between the last commit and the current content of a file, including pending changes.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Relative path to the file"},
			},
			Required: []string{"path"},
		},
	},
	ToolLintFile: {
		Name:        ToolLintFile,
		Description: "Report syntax and lint diagnostics for the current content of a file.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Relative path to the file"},
			},
			Required: []string{"path"},
		},
	},
	ToolExecuteScript: {
		Name:        ToolExecuteScript,
		Description: "Run a short Go program in an embedded interpreter and return its output. Only a small set of standard library packages may be imported. This is not a sandbox and has no access to the project files.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"code":            {Type: "string", Description: "Go source: a full 'package main' program or bare statements"},
				"timeout_seconds": {Type: "integer", Description: "Execution time limit in seconds (default 10, max 60)"},
			},
			Required: []string{"code"},
		},
	},
}

// Definition returns the definition of the named tool.
func Definition(name string) (ToolDefinition, bool) {
	def, ok := definitions[name]
	return def, ok
}

// Definitions returns the definitions for names, in order. Unknown names are skipped.
func Definitions(names []string) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		if def, ok := definitions[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

// GenerateToolDocumentation creates markdown documentation for the provided tools.
func GenerateToolDocumentation(defs []ToolDefinition) string {
	if len(defs) == 0 {
		return "No tools available"
	}

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for i := range defs {
		doc.WriteString(fmt.Sprintf("- **%s** - %s\n", defs[i].Name, defs[i].Description))
	}
	return doc.String()
}

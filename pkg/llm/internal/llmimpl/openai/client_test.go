package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/llm"
	"agentforge/pkg/tools"
)

func TestFlattenMessages(t *testing.T) {
	instructions, input := flattenMessages([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "read a.go"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "fs_readFile", Parameters: map[string]any{"path": "a.go"}}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Name: "fs_readFile", Content: "package a"}}},
	})
	assert.Equal(t, "be brief", instructions)
	assert.Equal(t, "read a.go\n\n"+
		"Assistant: [tool call fs_readFile (c1) map[path:a.go]]\n\n"+
		"[tool result fs_readFile (c1) ok]\npackage a", input)
}

func TestConvertTools(t *testing.T) {
	out := convertTools(tools.Definitions([]string{tools.ToolListFiles}))
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfFunction)
	assert.Equal(t, tools.ToolListFiles, out[0].OfFunction.Name)
	assert.Equal(t, []string{}, out[0].OfFunction.Parameters["required"], "required is never null")
}

func TestConvertPropertyToSchema(t *testing.T) {
	schema := convertPropertyToSchema(&tools.Property{Type: "array", Description: "d", Items: &tools.Property{Type: "string"}})
	assert.Equal(t, "array", schema["type"])
	assert.Equal(t, map[string]any{"type": "string", "description": ""}, schema["items"])
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "gpt-5", NewOfficialClientWithModel("key", "gpt-5").GetModelName())
}

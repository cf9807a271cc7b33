package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/llm"
	"agentforge/pkg/tools"
)

func TestEnsureAlternation(t *testing.T) {
	tests := []struct {
		name         string
		input        []llm.CompletionMessage
		expectSystem string
		expectMsgLen int
		errContains  string
	}{
		{
			name:        "empty messages",
			input:       []llm.CompletionMessage{},
			errContains: "message list cannot be empty",
		},
		{
			name: "system messages extracted and joined",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are helpful"},
				{Role: llm.RoleSystem, Content: "And concise"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectSystem: "You are helpful\n\nAnd concise",
			expectMsgLen: 1,
		},
		{
			name: "proper alternation maintained",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "How are you?"},
			},
			expectMsgLen: 3,
		},
		{
			name: "consecutive user messages merged",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleUser, Content: "Anyone there?"},
			},
			expectMsgLen: 1,
		},
		{
			name: "only system",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "sys"},
			},
			errContains: "at least one non-system message",
		},
		{
			name: "starts with assistant",
			input: []llm.CompletionMessage{
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			errContains: "first message must be user",
		},
		{
			name: "ends with assistant",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
			},
			errContains: "last message must be user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, msgs, err := ensureAlternation(tt.input)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectSystem, system)
			assert.Len(t, msgs, tt.expectMsgLen)
		})
	}
}

func TestEnsureAlternationMergesToolResults(t *testing.T) {
	_, msgs, err := ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "a", Content: "1"}}},
		{Role: llm.RoleUser, Content: "continue", ToolResults: []llm.ToolResult{{ToolCallID: "b", Content: "2"}}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "continue", msgs[0].Content)
	assert.Len(t, msgs[0].ToolResults, 2)
}

func TestConvertMessagesUsesToolBlocks(t *testing.T) {
	params := convertMessages([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "read it"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "t1", Name: tools.ToolReadFile, Parameters: map[string]any{"path": "a.go"}}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "t1", Content: "package a"}}},
	})
	require.Len(t, params, 3)

	assistant := params[1].Content
	require.Len(t, assistant, 1, "no empty text block")
	require.NotNil(t, assistant[0].OfToolUse)
	assert.Equal(t, "t1", assistant[0].OfToolUse.ID)

	results := params[2].Content
	require.Len(t, results, 1)
	require.NotNil(t, results[0].OfToolResult)
	assert.Equal(t, "t1", results[0].OfToolResult.ToolUseID)
}

func TestConvertTools(t *testing.T) {
	out := convertTools(tools.Definitions([]string{tools.ToolReadFile}))
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, tools.ToolReadFile, out[0].OfTool.Name)
	assert.Equal(t, []string{"path"}, out[0].OfTool.InputSchema.Required)

	props, ok := out[0].OfTool.InputSchema.Properties.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "offset")
}

func TestGetModelName(t *testing.T) {
	c := NewClaudeClientWithModel("key", "claude-sonnet-4-5")
	assert.Equal(t, "claude-sonnet-4-5", c.GetModelName())
}

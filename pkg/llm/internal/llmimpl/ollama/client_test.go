package ollama

import (
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/llm"
	"agentforge/pkg/tools"
)

// makeToolCallArgs creates a ToolCallFunctionArguments from a map for testing.
func makeToolCallArgs(m map[string]any) api.ToolCallFunctionArguments {
	args := api.NewToolCallFunctionArguments()
	for k, v := range m {
		args.Set(k, v)
	}
	return args
}

func TestNewOllamaClientWithModel(t *testing.T) {
	tests := []struct {
		name     string
		hostURL  string
		wantHost string
	}{
		{"valid host", "http://localhost:11434", "http://localhost:11434"},
		{"custom host", "http://192.168.1.100:11434", "http://192.168.1.100:11434"},
		{"invalid URL falls back to default", "not-a-valid-url", DefaultHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOllamaClientWithModel(tt.hostURL, "qwen2.5-coder:7b")
			require.NotNil(t, client)
			assert.Equal(t, "qwen2.5-coder:7b", client.GetModelName())
			c, ok := client.(*Client)
			require.True(t, ok)
			assert.Equal(t, tt.wantHost, c.hostURL)
		})
	}
}

func TestConvertMessagesToOllama(t *testing.T) {
	_, err := convertMessagesToOllama(nil)
	require.Error(t, err)

	msgs, err := convertMessagesToOllama([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "weather?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_weather", Parameters: map[string]any{"location": "NYC"}}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Name: "get_weather", Content: "sunny"}}},
		{Role: llm.RoleUser, Content: "thanks", ToolResults: []llm.ToolResult{{ToolCallID: "c2", Content: "x"}}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 6)

	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "get_weather", msgs[2].ToolCalls[0].Function.Name)

	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "sunny", msgs[3].Content)
	assert.Equal(t, "c1", msgs[3].ToolCallID)

	assert.Equal(t, "tool", msgs[4].Role)
	assert.Equal(t, "user", msgs[5].Role)
	assert.Equal(t, "thanks", msgs[5].Content)
}

func TestConvertToolsToOllama(t *testing.T) {
	out := convertToolsToOllama(tools.Definitions([]string{tools.ToolSearchCode}))
	require.Len(t, out, 1)
	tool := out[0]
	assert.Equal(t, "function", tool.Type)
	assert.Equal(t, tools.ToolSearchCode, tool.Function.Name)
	assert.Equal(t, "object", tool.Function.Parameters.Type)
	assert.Equal(t, []string{"query"}, tool.Function.Parameters.Required)

	limit, ok := tool.Function.Parameters.Properties.Get("limit")
	require.True(t, ok)
	assert.Equal(t, api.PropertyType{"integer"}, limit.Type)
}

func TestConvertPropertyToOllama(t *testing.T) {
	prop := convertPropertyToOllama(&tools.Property{
		Type:  "array",
		Items: &tools.Property{Type: "string", Enum: []string{"a", "b"}},
	})
	assert.Equal(t, api.PropertyType{"array"}, prop.Type)
	items, ok := prop.Items.(api.ToolProperty)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, items.Enum)
}

func TestConvertToolCallsFromOllama(t *testing.T) {
	got := convertToolCallsFromOllama([]api.ToolCall{
		{ID: "abc", Function: api.ToolCallFunction{Name: "tool_a", Arguments: makeToolCallArgs(map[string]any{"a": 1})}},
		{Function: api.ToolCallFunction{Name: "tool_b", Arguments: makeToolCallArgs(map[string]any{"b": "x"})}},
	})
	require.Len(t, got, 2)
	assert.Equal(t, llm.ToolCall{ID: "abc", Name: "tool_a", Parameters: map[string]any{"a": 1}}, got[0])
	assert.Equal(t, "call_1", got[1].ID)
	assert.Equal(t, map[string]any{"b": "x"}, got[1].Parameters)
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true, DoneReason: "load"}, "load"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getStopReason(&tt.resp))
	}
}

func TestClassifyError(t *testing.T) {
	assert.NoError(t, classifyError(nil))

	err := classifyError(api.StatusError{StatusCode: 503, ErrorMessage: "busy"})
	assert.True(t, llm.IsErrorType(err, llm.ErrorTypeTransient))

	err = classifyError(assert.AnError)
	assert.True(t, llm.IsErrorType(err, llm.ErrorTypeUnknown))
}

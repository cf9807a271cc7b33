package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"agentforge/pkg/llm"
	"agentforge/pkg/tools"
)

func TestConvertMessagesToGemini(t *testing.T) {
	_, _, err := convertMessagesToGemini(nil, nil)
	require.Error(t, err)

	contents, system, err := convertMessagesToGemini([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "read a.go"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: tools.ToolReadFile, Parameters: map[string]any{"path": "a.go"}}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Name: tools.ToolReadFile, Content: "package a"}}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "be brief", system)
	require.Len(t, contents, 3)

	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, tools.ToolReadFile, contents[1].Parts[0].FunctionCall.Name)

	resp := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, tools.ToolReadFile, resp.Name)
	assert.Equal(t, "package a", resp.Response["content"])
}

func TestConvertMessagesReplaysCachedTurn(t *testing.T) {
	cached := &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "cached"}}}
	contents, _, err := convertMessagesToGemini([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "go"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "x"}}},
	}, map[string]*genai.Content{"c1": cached})
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Same(t, cached, contents[1])
}

func TestConvertToolsToGemini(t *testing.T) {
	decls := convertToolsToGemini(tools.Definitions([]string{tools.ToolWriteFile}))
	require.Len(t, decls, 1)
	assert.Equal(t, genai.TypeObject, decls[0].Parameters.Type)
	assert.Equal(t, genai.TypeInteger, decls[0].Parameters.Properties["start_line"].Type)
	assert.Equal(t, []string{"path", "content"}, decls[0].Parameters.Required)
}

func TestConvertFunctionCallsFromGemini(t *testing.T) {
	got := convertFunctionCallsFromGemini([]*genai.FunctionCall{
		{ID: "id1", Name: "a", Args: map[string]any{"k": "v"}},
		{Name: "b"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "id1", got[0].ID)
	assert.Equal(t, "b_1", got[1].ID)
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "unknown", getStopReason(nil))
	stop := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonStop,
		Content:      &genai.Content{Parts: []*genai.Part{{Text: "hi"}}},
	}}}
	assert.Equal(t, "end_turn", getStopReason(stop))

	truncated := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonMaxTokens,
		Content:      &genai.Content{Parts: []*genai.Part{{Text: "hi"}}},
	}}}
	assert.Equal(t, "max_tokens", getStopReason(truncated))
}

func TestUsageOf(t *testing.T) {
	assert.Equal(t, llm.Usage{}, usageOf(&genai.GenerateContentResponse{}))
	got := usageOf(&genai.GenerateContentResponse{UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     12,
		CandidatesTokenCount: 3,
	}})
	assert.Equal(t, llm.Usage{InputTokens: 12, OutputTokens: 3}, got)
}

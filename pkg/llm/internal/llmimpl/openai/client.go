// Package openai provides the OpenAI implementation of llm.Client using the
// official Go SDK and the Responses API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"agentforge/pkg/llm"
	"agentforge/pkg/tools"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.Client.
//
//nolint:govet // Simple struct, field alignment not critical
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a raw OpenAI client; middleware is applied by the caller.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// convertPropertyToSchema recursively converts a Property to JSON schema.
func convertPropertyToSchema(prop *tools.Property) map[string]any {
	schema := map[string]any{
		"type":        prop.Type,
		"description": prop.Description,
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = convertPropertyToSchema(prop.Items)
	}
	return schema
}

// flattenMessages renders the conversation as instructions plus a single
// transcript. Tool calls and results are rendered as tagged text.
func flattenMessages(messages []llm.CompletionMessage) (instructions, input string) {
	var system []string
	var sb strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			sb.WriteString("Assistant: ")
			sb.WriteString(msg.Content)
			if calls := llm.FormatToolCalls(msg.ToolCalls); calls != "" {
				if msg.Content != "" {
					sb.WriteString("\n")
				}
				sb.WriteString(calls)
			}
			sb.WriteString("\n\n")
		default:
			if results := llm.FormatToolResults(msg.ToolResults); results != "" {
				sb.WriteString(results)
				sb.WriteString("\n\n")
			}
			if msg.Content != "" {
				sb.WriteString(msg.Content)
				sb.WriteString("\n\n")
			}
		}
	}
	return strings.Join(system, "\n\n"), strings.TrimRight(sb.String(), "\n")
}

func convertTools(defs []tools.ToolDefinition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, len(defs))
	for i := range defs {
		tool := &defs[i]
		properties := make(map[string]any, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			prop := tool.InputSchema.Properties[name]
			properties[name] = convertPropertyToSchema(&prop)
		}
		required := tool.InputSchema.Required
		if required == nil {
			required = []string{}
		}
		out[i] = responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters: openai.FunctionParameters(map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				}),
			},
		}
	}
	return out
}

// Complete implements llm.Client using the Responses API.
//
//nolint:gocritic // 80 bytes is reasonable for interface compliance
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, input := flattenMessages(in.Messages)
	if input == "" {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeBadPrompt, "no user or assistant content to send")
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
		Temperature:     openai.Float(float64(in.Temperature)),
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		var parameters map[string]any
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &parameters); err != nil {
				return llm.CompletionResponse{}, llm.NewErrorWithCause(llm.ErrorTypeUnknown, err, "failed to parse function arguments")
			}
		}
		id := funcItem.CallID
		if id == "" {
			id = funcItem.ID
		}
		toolCalls = append(toolCalls, llm.ToolCall{ID: id, Name: funcItem.Name, Parameters: parameters})
	}

	stopReason := "end_turn"
	switch {
	case len(toolCalls) > 0:
		stopReason = "tool_use"
	case resp.IncompleteDetails.Reason == "max_output_tokens":
		stopReason = "max_tokens"
	}

	return llm.CompletionResponse{
		Content:    resp.OutputText(),
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream delivers the completed response as a single chunk.
//
//nolint:gocritic // 80 bytes is reasonable for interface compliance
func (o *OfficialClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.StreamFromComplete(ctx, o, in)
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.Classify(err, apiErr.StatusCode)
	}
	return llm.Classify(err, 0)
}

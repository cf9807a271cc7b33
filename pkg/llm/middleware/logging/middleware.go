// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"
	"strings"

	"agentforge/pkg/llm"
	"agentforge/pkg/logx"
	"agentforge/pkg/tools"
)

const maxLoggedMessage = 10000

// Middleware logs classified failures once and, when debugPrompts is set,
// every prompt sent to the model. Errors pass through unchanged.
func Middleware(logger *logx.Logger, debugPrompts bool) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm-middleware")
	}
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if debugPrompts {
					logPrompt(logger, &req)
				}
				resp, err := next.Complete(ctx, req)
				switch {
				case err == nil:
				case llm.IsErrorType(err, llm.ErrorTypeEmptyResponse):
					logger.Error("Empty response from %s", next.GetModelName())
					logPrompt(logger, &req)
				case llm.TypeOf(err) == llm.ErrorTypeCanceled:
					logger.Debug("Request to %s canceled", next.GetModelName())
				default:
					logger.Error("Request to %s failed: %v", next.GetModelName(), err)
				}
				//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if debugPrompts {
					logPrompt(logger, &req)
				}
				return next.Stream(ctx, req)
			},
			next.GetModelName,
		)
	}
}

// logPrompt logs the messages and request parameters of req.
func logPrompt(logger *logx.Logger, req *llm.CompletionRequest) {
	logger.Info("Prompt (%d messages, temperature %v, max tokens %d, tools: %s)",
		len(req.Messages), req.Temperature, req.MaxTokens, strings.Join(toolNames(req.Tools), ", "))
	for i := range req.Messages {
		msg := &req.Messages[i]
		logger.Info("  [%d] %s: %s", i, msg.Role, llm.SanitizePrompt(msg.Content, maxLoggedMessage))
		for j := range msg.ToolCalls {
			logger.Info("  [%d] tool call %s %s", i, msg.ToolCalls[j].ID, msg.ToolCalls[j].Name)
		}
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			logger.Info("  [%d] tool result %s error=%v: %s", i, tr.ToolCallID, tr.IsError,
				llm.SanitizePrompt(tr.Content, maxLoggedMessage))
		}
	}
}

func toolNames(defs []tools.ToolDefinition) []string {
	names := make([]string, len(defs))
	for i := range defs {
		names[i] = defs[i].Name
	}
	return names
}

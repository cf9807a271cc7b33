package metrics

import (
	"context"
	"strings"
	"time"

	"agentforge/pkg/llm"
	"agentforge/pkg/logx"
	"agentforge/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor returns the token usage of one request and its response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor uses the provider-reported usage when present and
// falls back to counting tokens with tiktoken.
//
//nolint:gocritic // request and response passed by value to match UsageExtractor
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		return resp.Usage.InputTokens, resp.Usage.OutputTokens
	}

	var prompt strings.Builder
	for i := range req.Messages {
		msg := &req.Messages[i]
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
		for j := range msg.ToolResults {
			prompt.WriteString(msg.ToolResults[j].Content)
			prompt.WriteString("\n")
		}
	}
	promptTokens = utils.CountTokensSimple(prompt.String())
	completionTokens = utils.CountTokensSimple(resp.Content + llm.FormatToolCalls(resp.ToolCalls))
	return promptTokens, completionTokens
}

// Middleware returns a middleware that records latency, token usage and
// outcome of every request.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, labels LabelProvider, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}
	if labels == nil {
		labels = StaticLabels{}
	}

	return func(next llm.Client) llm.Client {
		observe := func(req *llm.CompletionRequest, resp *llm.CompletionResponse, err error, duration time.Duration, kind string) {
			var promptTokens, completionTokens int
			if err == nil && resp != nil {
				promptTokens, completionTokens = usageExtractor(*req, *resp)
			}
			errorType := ""
			if err != nil {
				errorType = llm.TypeOf(err).String()
			}
			sessionID := labels.GetSessionID()
			state := labels.GetCurrentState()
			model := next.GetModelName()

			recorder.ObserveRequest(model, sessionID, state, promptTokens, completionTokens, err == nil, errorType, duration)

			if logger != nil {
				status := statusSuccess
				if err != nil {
					status = statusError
				}
				logger.Info("LLM %s: model=%s session=%s state=%s tokens=%d+%d=%d status=%s duration=%dms",
					kind, model, sessionID, state, promptTokens, completionTokens, promptTokens+completionTokens,
					status, duration.Milliseconds())
			}
		}

		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				observe(&req, &resp, err, time.Since(start), "request")
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			// Streams are recorded once drained so the token count covers the full reply.
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				upstream, err := next.Stream(ctx, req)
				if err != nil {
					observe(&req, nil, err, time.Since(start), "stream")
					return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}
				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					var text strings.Builder
					var streamErr error
				forward:
					for chunk := range upstream {
						text.WriteString(chunk.Content)
						if chunk.Error != nil {
							streamErr = chunk.Error
						}
						select {
						case out <- chunk:
						case <-ctx.Done():
							streamErr = llm.Classify(ctx.Err(), 0)
							break forward
						}
					}
					// Providers stop producing once ctx is done.
					for range upstream { //nolint:revive // drain
					}
					observe(&req, &llm.CompletionResponse{Content: text.String()}, streamErr, time.Since(start), "stream")
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}

// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"agentforge/pkg/llm"
)

// Middleware bounds each request by duration. A non-positive duration disables it.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			// The deadline covers the whole stream; it is released once the stream ends.
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				upstream, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}
				out := make(chan llm.StreamChunk)
				go func() {
					defer cancel()
					defer close(out)
					for chunk := range upstream {
						select {
						case out <- chunk:
						case <-ctx.Done():
							for range upstream { //nolint:revive // drain
							}
							return
						}
					}
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}

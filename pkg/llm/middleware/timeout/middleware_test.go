package timeout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"agentforge/pkg/llm"
)

func TestCompleteTimesOut(t *testing.T) {
	slow := llm.NewMockClientFunc(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		<-ctx.Done()
		return llm.CompletionResponse{}, llm.Classify(ctx.Err(), 0)
	})
	client := llm.Chain(slow, Middleware(20*time.Millisecond))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llm.IsErrorType(err, llm.ErrorTypeTransient))
}

func TestStreamKeepsDeadlineUntilDrained(t *testing.T) {
	defer goleak.VerifyNone(t)

	base := llm.NewMockClient([]llm.CompletionResponse{{Content: "chunk"}}, nil)
	client := llm.Chain(base, Middleware(time.Second))

	ch, err := client.Stream(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	data, err := io.ReadAll(llm.StreamToReader(ch))
	require.NoError(t, err)
	assert.Equal(t, "chunk", string(data))
	for range ch { //nolint:revive // wait for close
	}
}

func TestZeroDurationDisables(t *testing.T) {
	base := llm.NewMockClient(nil, nil)
	assert.Same(t, base, Middleware(0)(base))
}

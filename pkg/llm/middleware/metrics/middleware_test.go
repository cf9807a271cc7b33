package metrics

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/pkg/llm"
)

type fakeLabels struct{ state string }

func (f *fakeLabels) GetSessionID() string    { return "s1" }
func (f *fakeLabels) GetCurrentState() string { return f.state }

func TestMiddlewareRecordsProviderUsage(t *testing.T) {
	internal := NewInternalRecorder()
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)

	base := llm.NewMockClient([]llm.CompletionResponse{
		{Content: "ok", Usage: llm.Usage{InputTokens: 100, OutputTokens: 7}},
	}, nil)
	client := llm.Chain(base, Middleware(Tee(internal, prom), nil, &fakeLabels{state: "thinking"}, nil))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)

	got := internal.GetSessionMetrics("s1")
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.PromptTokens)
	assert.Equal(t, int64(7), got.CompletionTokens)
	assert.Equal(t, int64(107), got.TotalTokens)
	assert.Equal(t, int64(1), got.RequestCount)

	assert.InDelta(t, 100, testutil.ToFloat64(prom.tokensTotal.WithLabelValues("mock-model", "s1", "thinking", "prompt")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(prom.requestsTotal.WithLabelValues("mock-model", "s1", "thinking", "success", "")), 0.001)
}

func TestMiddlewareRecordsErrors(t *testing.T) {
	internal := NewInternalRecorder()
	base := llm.NewMockClient(nil, []error{llm.NewError(llm.ErrorTypeRateLimit, "slow down")})
	client := llm.Chain(base, Middleware(internal, nil, StaticLabels{SessionID: "s2"}, nil))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llm.IsErrorType(err, llm.ErrorTypeRateLimit), "errors pass through unchanged")

	got := internal.GetSessionMetrics("s2")
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ErrorCount)
	assert.Zero(t, got.TotalTokens)
}

func TestMiddlewareRecordsDrainedStream(t *testing.T) {
	internal := NewInternalRecorder()
	base := llm.NewMockClient([]llm.CompletionResponse{{Content: "hello world"}}, nil)
	client := llm.Chain(base, Middleware(internal, nil, StaticLabels{SessionID: "s3"}, nil))

	ch, err := client.Stream(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	data, err := io.ReadAll(llm.StreamToReader(ch))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.Eventually(t, func() bool { return internal.GetSessionMetrics("s3") != nil }, time.Second, time.Millisecond)
	assert.Positive(t, internal.GetSessionMetrics("s3").CompletionTokens)
}

func TestDefaultUsageExtractorFallsBackToCounting(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("count these words please")})
	prompt, completion := DefaultUsageExtractor(req, llm.CompletionResponse{Content: "sure"})
	assert.Positive(t, prompt)
	assert.Positive(t, completion)

	prompt, completion = DefaultUsageExtractor(req, llm.CompletionResponse{Usage: llm.Usage{InputTokens: 3, OutputTokens: 4}})
	assert.Equal(t, 3, prompt)
	assert.Equal(t, 4, completion)
}

func TestInternalRecorderIgnoresAnonymous(t *testing.T) {
	r := NewInternalRecorder()
	r.ObserveRequest("m", "", "", 1, 1, true, "", 0)
	assert.Empty(t, r.GetAllSessionMetrics())

	r.ObserveRequest("m", "x", "", 1, 1, true, "", 0)
	r.Reset()
	assert.Nil(t, r.GetSessionMetrics("x"))
	assert.NotPanics(t, func() { Nop().ObserveRequest("", "", "", 0, 0, false, "", 0) })
}

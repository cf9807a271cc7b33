package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"agentforge/pkg/tools"
)

func TestSessionRecordsTurns(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: tools.ToolReadFile, Parameters: map[string]any{"path": "a.go"}}}, Usage: Usage{InputTokens: 10, OutputTokens: 2}},
		{Content: "done", Usage: Usage{InputTokens: 20, OutputTokens: 3}},
	}, nil)
	s := NewSession(mock, SessionOptions{System: "be brief", Tools: tools.Definitions(tools.AllTools)})

	reply, err := s.SendMessage(context.Background(), Message{Text: "read a.go"})
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)

	reply, err = s.SendMessage(context.Background(), Message{
		ToolResponses: []ToolResult{{ToolCallID: "c1", Name: tools.ToolReadFile, Content: "package a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", reply.Text)

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, "c1", history[2].ToolResults[0].ToolCallID)
	assert.Equal(t, Usage{InputTokens: 30, OutputTokens: 5}, s.Usage())

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, RoleSystem, reqs[0].Messages[0].Role)
	assert.Len(t, reqs[1].Messages, 4, "system + first exchange + tool results")
	assert.NotEmpty(t, reqs[1].Tools)
}

func TestSessionErrorLeavesHistoryUnchanged(t *testing.T) {
	boom := NewError(ErrorTypeTransient, "upstream 503")
	mock := NewMockClient([]CompletionResponse{{Content: "ok"}, {}}, []error{nil, boom})
	s := NewSession(mock, SessionOptions{})

	_, err := s.SendMessage(context.Background(), Message{Text: "one"})
	require.NoError(t, err)
	_, err = s.SendMessage(context.Background(), Message{Text: "two"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeTransient))
	assert.Len(t, s.History(), 2)
}

func TestSessionEmptyReplyIsError(t *testing.T) {
	s := NewSession(NewMockClient([]CompletionResponse{{Content: "  "}}, nil), SessionOptions{})
	_, err := s.SendMessage(context.Background(), Message{Text: "hi"})
	assert.True(t, IsErrorType(err, ErrorTypeEmptyResponse))
	assert.Empty(t, s.History())
}

func TestSessionDisableTools(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "summary"}}, nil)
	s := NewSession(mock, SessionOptions{Tools: tools.Definitions(tools.AllTools)})
	_, err := s.SendMessage(context.Background(), Message{Text: "summarize", DisableTools: true})
	require.NoError(t, err)
	assert.Empty(t, mock.Requests()[0].Tools)
}

func TestCancelDiscardsLateReply(t *testing.T) {
	release := make(chan struct{})
	mock := NewMockClientFunc(func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		<-release
		return CompletionResponse{Content: "too late"}, nil
	})
	s := NewSession(mock, SessionOptions{})

	errc := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), Message{Text: "slow"})
		errc <- err
	}()

	require.Eventually(t, func() bool { return mock.Calls() == 1 }, time.Second, time.Millisecond)
	s.Cancel()
	close(release)

	err := <-errc
	assert.True(t, errors.Is(err, ErrDiscarded))
	assert.Empty(t, s.History())
	assert.Equal(t, uint64(1), s.Generation())
}

func TestContextCancelAbortsCall(t *testing.T) {
	mock := NewMockClientFunc(func(ctx context.Context, _ CompletionRequest) (CompletionResponse, error) {
		<-ctx.Done()
		return CompletionResponse{}, Classify(ctx.Err(), 0)
	})
	s := NewSession(mock, SessionOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := s.SendMessage(ctx, Message{Text: "x"})
	assert.Equal(t, ErrorTypeCanceled, TypeOf(err))
}

func TestSessionStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := NewMockClient([]CompletionResponse{{Content: "streamed text"}}, nil)
	s := NewSession(mock, SessionOptions{Tools: tools.Definitions(tools.AllTools)})

	ch, err := s.Stream(context.Background(), Message{Text: "go"})
	require.NoError(t, err)
	data, err := io.ReadAll(StreamToReader(ch))
	require.NoError(t, err)
	assert.Equal(t, "streamed text", string(data))

	// The turn lock is released once the stream is drained.
	require.Eventually(t, func() bool { return len(s.History()) == 2 }, time.Second, time.Millisecond)
	assert.Empty(t, mock.Requests()[0].Tools)
}

func TestFormatToolResults(t *testing.T) {
	assert.Empty(t, FormatToolResults(nil))
	out := FormatToolResults([]ToolResult{
		{ToolCallID: "1", Name: "fs_readFile", Content: "hello"},
		{ToolCallID: "2", Name: "fs_readFile", Content: "Error: nope", IsError: true},
	})
	assert.Equal(t, "[tool result fs_readFile (1) ok]\nhello\n[tool result fs_readFile (2) error]\nError: nope", out)
}

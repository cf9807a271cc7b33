package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"agentforge/pkg/logx"
	"agentforge/pkg/tools"
)

// ErrDiscarded is returned when a reply arrives after the session was cancelled.
// The reply is dropped and the conversation is left as it was before the call.
var ErrDiscarded = errors.New("llm reply discarded after cancel")

// Message is one user turn: free text, tool results for the previous
// assistant turn, or both.
type Message struct {
	Text          string
	ToolResponses []ToolResult
	DisableTools  bool // send without tool definitions, e.g. for a final summary
}

// Reply is the model's answer to one turn.
type Reply struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// SessionOptions configures a Session.
type SessionOptions struct {
	System      string
	Tools       []tools.ToolDefinition
	ToolChoice  string
	MaxTokens   int
	Temperature float32
	Logger      *logx.Logger
}

// Session is one ongoing, strictly sequential conversation. Each call waits
// for the previous reply before it is sent.
type Session struct {
	client Client
	opts   SessionOptions
	logger *logx.Logger

	mu      sync.Mutex // held for the duration of a turn
	history []CompletionMessage
	usage   Usage

	gen atomic.Uint64
}

// NewSession starts a conversation with client.
func NewSession(client Client, opts SessionOptions) *Session {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = TemperatureDeterministic
	}
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger("llm-session")
	}
	return &Session{client: client, opts: opts, logger: logger}
}

// SendMessage appends msg to the conversation, waits for the model's reply and
// records it. On error, or when Cancel was called while the request was in
// flight, the conversation is left unchanged.
func (s *Session) SendMessage(ctx context.Context, msg Message) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.gen.Load()
	req := s.request(msg)

	resp, err := s.client.Complete(ctx, req)
	if s.gen.Load() != gen {
		s.logger.Debug("Dropping reply from cancelled turn (generation %d)", gen)
		return Reply{}, ErrDiscarded
	}
	if err != nil {
		return Reply{}, err
	}
	if strings.TrimSpace(resp.Content) == "" && len(resp.ToolCalls) == 0 {
		return Reply{}, NewError(ErrorTypeEmptyResponse, "model returned neither text nor tool calls")
	}

	s.history = append(s.history, req.Messages[len(req.Messages)-1], CompletionMessage{
		Role:      RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	s.usage.InputTokens += resp.Usage.InputTokens
	s.usage.OutputTokens += resp.Usage.OutputTokens

	return Reply{
		Text:       resp.Content,
		ToolCalls:  resp.ToolCalls,
		StopReason: resp.StopReason,
		Usage:      resp.Usage,
	}, nil
}

// Stream sends msg and yields the reply text incrementally. Tool definitions
// are not offered on streamed turns. The assembled reply is recorded when the
// stream ends without error.
func (s *Session) Stream(ctx context.Context, msg Message) (<-chan StreamChunk, error) {
	s.mu.Lock()

	gen := s.gen.Load()
	msg.DisableTools = true
	req := s.request(msg)

	upstream, err := s.client.Stream(ctx, req)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer s.mu.Unlock()
		defer close(out)

		var sb strings.Builder
		for chunk := range upstream {
			if s.gen.Load() != gen {
				chunk = StreamChunk{Error: ErrDiscarded}
			}
			sb.WriteString(chunk.Content)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Error != nil {
				return
			}
			if chunk.Done {
				break
			}
		}
		if s.gen.Load() != gen || sb.Len() == 0 {
			return
		}
		s.history = append(s.history, req.Messages[len(req.Messages)-1], CompletionMessage{
			Role:    RoleAssistant,
			Content: sb.String(),
		})
	}()
	return out, nil
}

// request builds the completion request for msg on top of the history.
func (s *Session) request(msg Message) CompletionRequest {
	messages := make([]CompletionMessage, 0, len(s.history)+2)
	if s.opts.System != "" {
		messages = append(messages, NewSystemMessage(s.opts.System))
	}
	messages = append(messages, s.history...)
	messages = append(messages, CompletionMessage{
		Role:        RoleUser,
		Content:     msg.Text,
		ToolResults: msg.ToolResponses,
	})

	req := CompletionRequest{
		Messages:    messages,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
	if !msg.DisableTools {
		req.Tools = s.opts.Tools
		req.ToolChoice = s.opts.ToolChoice
	}
	return req
}

// Cancel marks every in-flight turn as stale. Replies that arrive afterwards
// are discarded with ErrDiscarded. Callers abort the transport itself by
// cancelling the context passed to SendMessage.
func (s *Session) Cancel() {
	s.gen.Add(1)
}

// Generation returns the cancel counter.
func (s *Session) Generation() uint64 {
	return s.gen.Load()
}

// History returns a copy of the recorded conversation, excluding the system prompt.
func (s *Session) History() []CompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CompletionMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Usage returns the tokens reported across all recorded turns.
func (s *Session) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Reset clears the conversation but keeps the options.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.usage = Usage{}
}

// FormatToolResults renders tool results as plain text for providers that do
// not accept structured tool results.
func FormatToolResults(results []ToolResult) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := range results {
		r := &results[i]
		status := "ok"
		if r.IsError {
			status = "error"
		}
		fmt.Fprintf(&sb, "[tool result %s (%s) %s]\n%s\n", r.Name, r.ToolCallID, status, r.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatToolCalls renders tool calls as plain text, the counterpart of FormatToolResults.
func FormatToolCalls(calls []ToolCall) string {
	if len(calls) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := range calls {
		fmt.Fprintf(&sb, "[tool call %s (%s) %v]\n", calls[i].Name, calls[i].ID, calls[i].Parameters)
	}
	return strings.TrimRight(sb.String(), "\n")
}

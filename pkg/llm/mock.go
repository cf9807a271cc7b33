package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests. Call i returns errs[i] when it
// is non-nil, otherwise responses[i]. A handler, when set, replaces the script.
type MockClient struct {
	handler   func(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	responses []CompletionResponse
	errs      []error
	requests  []CompletionRequest
	model     string
	mu        sync.Mutex
}

// NewMockClient creates a mock client with predefined responses and errors.
func NewMockClient(responses []CompletionResponse, errs []error) *MockClient {
	return &MockClient{responses: responses, errs: errs, model: "mock-model"}
}

// NewMockClientFunc creates a mock client that answers with fn.
func NewMockClientFunc(fn func(ctx context.Context, req CompletionRequest) (CompletionResponse, error)) *MockClient {
	return &MockClient{handler: fn, model: "mock-model"}
}

// Complete returns the next scripted response or error.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	i := len(m.requests)
	m.requests = append(m.requests, req)
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, Classify(err, 0)
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return CompletionResponse{}, m.errs[i]
	}
	if i >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses (call %d)", i+1)
	}
	return m.responses[i], nil
}

// Stream delivers the next scripted response as a single chunk.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return StreamFromComplete(ctx, m, req)
}

// GetModelName returns the mock model name.
func (m *MockClient) GetModelName() string {
	return m.model
}

// Requests returns every request received so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Complete calls.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements Recorder with in-memory per-session totals.
// It needs no external services and backs the CLI usage report.
type InternalRecorder struct {
	sessions map[string]*SessionMetrics
	mu       sync.RWMutex
}

// SessionMetrics represents aggregated metrics for a session.
//
//nolint:govet
type SessionMetrics struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	SessionID        string    `json:"session_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewInternalRecorder creates an empty recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{sessions: make(map[string]*SessionMetrics)}
}

// ObserveRequest records metrics for a completed LLM request.
func (r *InternalRecorder) ObserveRequest(
	_, sessionID, _ string,
	promptTokens, completionTokens int,
	success bool,
	_ string,
	_ time.Duration,
) {
	if sessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[sessionID]
	if !exists {
		session = &SessionMetrics{SessionID: sessionID}
		r.sessions[sessionID] = session
	}
	session.RequestCount++
	session.LastUpdated = time.Now()
	if !success {
		session.ErrorCount++
		return
	}
	session.PromptTokens += int64(promptTokens)
	session.CompletionTokens += int64(completionTokens)
	session.TotalTokens = session.PromptTokens + session.CompletionTokens
}

// GetSessionMetrics returns a copy of the totals for sessionID, or nil.
func (r *InternalRecorder) GetSessionMetrics(sessionID string) *SessionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if session, exists := r.sessions[sessionID]; exists {
		cp := *session
		return &cp
	}
	return nil
}

// GetAllSessionMetrics returns copies of the totals for every session.
func (r *InternalRecorder) GetAllSessionMetrics() map[string]*SessionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*SessionMetrics, len(r.sessions))
	for id, session := range r.sessions {
		cp := *session
		result[id] = &cp
	}
	return result
}

// Reset clears all metrics.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*SessionMetrics)
}

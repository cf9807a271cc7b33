// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"time"
)

// LabelProvider supplies the session labels attached to each recorded request.
type LabelProvider interface {
	// GetSessionID returns the ID of the session issuing requests.
	GetSessionID() string
	// GetCurrentState returns the session's current state (planning, thinking, ...).
	GetCurrentState() string
}

// StaticLabels is a LabelProvider with fixed values, for CLI commands that
// issue requests outside a session.
type StaticLabels struct {
	SessionID string
	State     string
}

// GetSessionID returns the fixed session ID.
func (s StaticLabels) GetSessionID() string { return s.SessionID }

// GetCurrentState returns the fixed state.
func (s StaticLabels) GetCurrentState() string { return s.State }

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, sessionID, state string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _ string,
	_, _ int,
	_ bool,
	_ string,
	_ time.Duration,
) {
	// No-op
}

// Tee fans each observation out to every recorder.
func Tee(recorders ...Recorder) Recorder {
	return teeRecorder(recorders)
}

type teeRecorder []Recorder

func (t teeRecorder) ObserveRequest(
	model, sessionID, state string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	for _, r := range t {
		r.ObserveRequest(model, sessionID, state, promptTokens, completionTokens, success, errorType, duration)
	}
}

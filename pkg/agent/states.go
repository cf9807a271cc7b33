package agent

import (
	"errors"
	"time"
)

// Status is the orchestrator's state.
type Status string

// Orchestrator states.
const (
	StatusIdle           Status = "idle"
	StatusPlanning       Status = "planning"
	StatusThinking       Status = "thinking"
	StatusExecuting      Status = "executing"
	StatusSummarizing    Status = "summarizing"
	StatusAwaitingReview Status = "awaiting_changes_review"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusStopped        Status = "stopped"
)

var (
	// ErrInvalidTransition is returned when a state change is not in the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrBusy is returned when a command needs the session to be at rest but a run is in progress.
	ErrBusy = errors.New("session is busy")

	// ErrNotRunning is returned by Wait when no run was ever started.
	ErrNotRunning = errors.New("session has not been started")

	// ErrToolIterations is returned when a step keeps calling tools past the configured limit.
	ErrToolIterations = errors.New("maximum tool iterations exceeded")
)

// TransitionTable maps each state to the states it may move to.
type TransitionTable map[Status][]Status

// ValidTransitions is the orchestrator's transition table.
//
//nolint:gochecknoglobals // static transition table
var ValidTransitions = TransitionTable{
	StatusIdle:           {StatusPlanning},
	StatusPlanning:       {StatusThinking, StatusSummarizing, StatusFailed, StatusStopped},
	StatusThinking:       {StatusExecuting, StatusSummarizing, StatusFailed, StatusStopped},
	StatusExecuting:      {StatusThinking, StatusFailed, StatusStopped},
	StatusSummarizing:    {StatusAwaitingReview, StatusCompleted, StatusFailed, StatusStopped},
	StatusAwaitingReview: {StatusCompleted, StatusPlanning},
	StatusCompleted:      {StatusPlanning},
	StatusFailed:         {StatusPlanning},
	StatusStopped:        {StatusPlanning},
}

// IsValidTransition reports whether table allows from → to.
func (t TransitionTable) IsValidTransition(from, to Status) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether a run is in progress in this state.
func (s Status) Active() bool {
	switch s {
	case StatusPlanning, StatusThinking, StatusExecuting, StatusSummarizing:
		return true
	}
	return false
}

// Terminal reports whether the session is at rest after a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusAwaitingReview, StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// StateTransition records one state change.
type StateTransition struct {
	FromState Status
	ToState   Status
	Timestamp time.Time
	Metadata  map[string]any
}

package agent

import (
	"time"

	"agentforge/pkg/llm"
	"agentforge/pkg/patch"
	"agentforge/pkg/plan"
)

// StepKind classifies an entry of the session log.
type StepKind string

// Session log entry kinds.
const (
	StepUser    StepKind = "user"
	StepThought StepKind = "thought"
	StepCall    StepKind = "call"
	StepResult  StepKind = "result"
	StepError   StepKind = "error"
	StepSummary StepKind = "summary"
)

// AgentStep is one entry of the session's ordered log.
type AgentStep struct {
	Kind       StepKind  `json:"kind"`
	Content    string    `json:"content"`
	PlanStepID string    `json:"plan_step_id,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Snapshot is a consistent copy of a session's state.
//
//nolint:govet // fieldalignment: grouped for readability
type Snapshot struct {
	SessionID     string            `json:"session_id"`
	Goal          string            `json:"goal"`
	Status        Status            `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Steps         []AgentStep       `json:"steps"`
	Plan          []plan.Step       `json:"plan"`
	Patches       []patch.Patch     `json:"patches"`
	Files         []string          `json:"files"`
	Transitions   []StateTransition `json:"-"`
	Usage         llm.Usage         `json:"usage"`
}

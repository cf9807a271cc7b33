// Package plan holds the goal decomposition produced by the planner and the
// scheduler that walks it in dependency order.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a plan step.
type Status string

// Step statuses.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Step is one unit of work in a plan.
type Step struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       Status   `json:"status"`
	AssignedRole string   `json:"assigned_role,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// done reports whether the step no longer blocks its dependents.
func (s *Step) done() bool {
	return s.Status == StatusCompleted || s.Status == StatusSkipped
}

// ErrNoPlan is returned by Parse when the text contains no plan JSON.
var ErrNoPlan = errors.New("no plan found in response")

// rawStep accepts the spellings planners commonly produce.
type rawStep struct {
	ID           json.RawMessage   `json:"id"`
	Title        string            `json:"title"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	AssignedRole string            `json:"assigned_role"`
	Role         string            `json:"role"`
	Dependencies []json.RawMessage `json:"dependencies"`
	DependsOn    []json.RawMessage `json:"depends_on"`
}

// Parse extracts a plan from a model response. The JSON may be wrapped in a
// code fence or surrounded by prose, and may be either {"steps": [...]} or a
// bare array. Steps without an ID are numbered by position.
func Parse(text string) ([]Step, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, ErrNoPlan
	}

	var raws []rawStep
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &raws); err != nil {
			return nil, fmt.Errorf("parse plan array: %w", err)
		}
	} else {
		var wrapper struct {
			Steps []rawStep `json:"steps"`
			Plan  []rawStep `json:"plan"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapper); err != nil {
			return nil, fmt.Errorf("parse plan object: %w", err)
		}
		raws = wrapper.Steps
		if len(raws) == 0 {
			raws = wrapper.Plan
		}
	}

	steps := make([]Step, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for i := range raws {
		r := &raws[i]
		id := scalarString(r.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate step id %q", id)
		}
		seen[id] = true

		title := firstNonEmpty(r.Title, r.Name, r.Description)
		if title == "" {
			return nil, fmt.Errorf("step %q has no title", id)
		}
		deps := r.Dependencies
		if len(deps) == 0 {
			deps = r.DependsOn
		}
		step := Step{
			ID:           id,
			Title:        title,
			Description:  r.Description,
			Status:       StatusPending,
			AssignedRole: firstNonEmpty(r.AssignedRole, r.Role),
		}
		for _, d := range deps {
			if dep := scalarString(d); dep != "" {
				step.Dependencies = append(step.Dependencies, dep)
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// extractJSON returns the first balanced JSON object or array in text,
// preferring the contents of a ```json fence.
func extractJSON(text string) string {
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			if payload := balanced(strings.TrimSpace(rest[:j])); payload != "" {
				return payload
			}
		}
	}
	return balanced(text)
}

// balanced scans for the first '{' or '[' and returns the text up to its
// matching close, honoring string literals.
func balanced(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// scalarString renders a JSON string or number as a plain string.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

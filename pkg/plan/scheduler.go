package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDeadlock is returned by Next when pending steps remain but none can run.
var ErrDeadlock = errors.New("plan deadlock")

// ErrUnknownStep is returned when a status change names a step not in the plan.
var ErrUnknownStep = errors.New("unknown plan step")

// ErrInvalidStepTransition is returned for a status change the step's current
// status does not allow.
var ErrInvalidStepTransition = errors.New("invalid step transition")

// DeadlockError describes why no pending step is eligible.
type DeadlockError struct {
	Missing map[string][]string // step ID -> dependency IDs not in the plan
	Failed  map[string][]string // step ID -> dependencies that failed
	Cycle   []string            // first dependency cycle found, closed (a, b, a)
	Pending []string
}

func (e *DeadlockError) Error() string {
	var parts []string
	for _, id := range sortedKeys(e.Missing) {
		parts = append(parts, fmt.Sprintf("step %q depends on unknown step(s) %s", id, quoteJoin(e.Missing[id])))
	}
	for _, id := range sortedKeys(e.Failed) {
		parts = append(parts, fmt.Sprintf("step %q depends on failed step(s) %s", id, quoteJoin(e.Failed[id])))
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, "dependency cycle "+strings.Join(e.Cycle, " -> "))
	}
	if len(parts) == 0 {
		parts = append(parts, "no eligible step")
	}
	return fmt.Sprintf("%d pending step(s) cannot run: %s", len(e.Pending), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrDeadlock.
func (e *DeadlockError) Unwrap() error { return ErrDeadlock }

// Scheduler walks a plan in dependency order, one active step at a time.
type Scheduler struct {
	mu    sync.Mutex
	steps []Step
	index map[string]int
}

// NewScheduler creates a scheduler over steps. Every step starts pending
// regardless of the status it carries.
func NewScheduler(steps []Step) *Scheduler {
	s := &Scheduler{
		steps: make([]Step, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	for i := range steps {
		step := steps[i]
		step.Status = StatusPending
		step.Dependencies = append([]string(nil), step.Dependencies...)
		s.steps[i] = step
		s.index[step.ID] = i
	}
	return s
}

// Restore recreates a scheduler from persisted steps, keeping their
// statuses. A step that was active when the plan was saved is pending again.
func Restore(steps []Step) *Scheduler {
	s := NewScheduler(steps)
	for i := range steps {
		switch steps[i].Status {
		case StatusCompleted, StatusSkipped, StatusFailed:
			s.steps[i].Status = steps[i].Status
		}
	}
	return s
}

// Next activates and returns the first pending step, in plan order, whose
// dependencies are all completed or skipped. If a step is already active it
// is returned unchanged. ok is false when no pending steps remain. A
// *DeadlockError is returned when pending steps remain but none is eligible.
func (s *Scheduler) Next() (step Step, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for i := range s.steps {
		switch s.steps[i].Status {
		case StatusActive:
			return s.steps[i], true, nil
		case StatusPending:
			pending++
		}
	}
	if pending == 0 {
		return Step{}, false, nil
	}

	for i := range s.steps {
		if s.steps[i].Status == StatusPending && s.eligible(&s.steps[i]) {
			s.steps[i].Status = StatusActive
			return s.steps[i], true, nil
		}
	}
	return Step{}, false, s.diagnose()
}

func (s *Scheduler) eligible(step *Step) bool {
	for _, dep := range step.Dependencies {
		i, ok := s.index[dep]
		if !ok || !s.steps[i].done() {
			return false
		}
	}
	return true
}

// diagnose builds a DeadlockError for the current pending set.
func (s *Scheduler) diagnose() *DeadlockError {
	e := &DeadlockError{}
	for i := range s.steps {
		step := &s.steps[i]
		if step.Status != StatusPending {
			continue
		}
		e.Pending = append(e.Pending, step.ID)
		for _, dep := range step.Dependencies {
			j, ok := s.index[dep]
			switch {
			case !ok:
				if e.Missing == nil {
					e.Missing = map[string][]string{}
				}
				e.Missing[step.ID] = append(e.Missing[step.ID], dep)
			case s.steps[j].Status == StatusFailed:
				if e.Failed == nil {
					e.Failed = map[string][]string{}
				}
				e.Failed[step.ID] = append(e.Failed[step.ID], dep)
			}
		}
	}
	e.Cycle = s.findCycle()
	return e
}

// findCycle runs a depth-first search over pending steps and returns the
// first cycle found, or nil.
func (s *Scheduler) findCycle() []string {
	const (
		unvisited = iota
		onStack
		finished
	)
	state := make([]int, len(s.steps))
	var stack []string
	var cycle []string

	var visit func(i int) bool
	visit = func(i int) bool {
		state[i] = onStack
		stack = append(stack, s.steps[i].ID)
		for _, dep := range s.steps[i].Dependencies {
			j, ok := s.index[dep]
			if !ok || s.steps[j].Status != StatusPending {
				continue
			}
			switch state[j] {
			case onStack:
				for k, id := range stack {
					if id == dep {
						cycle = append(append([]string(nil), stack[k:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(j) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = finished
		return false
	}

	for i := range s.steps {
		if s.steps[i].Status == StatusPending && state[i] == unvisited {
			if visit(i) {
				return cycle
			}
		}
	}
	return nil
}

// Complete marks the active step id completed.
func (s *Scheduler) Complete(id string) error {
	return s.transition(id, StatusCompleted, StatusActive)
}

// Fail marks the active step id failed.
func (s *Scheduler) Fail(id string) error {
	return s.transition(id, StatusFailed, StatusActive)
}

// Skip marks a pending or active step skipped. Skipped steps satisfy the
// dependencies of later steps.
func (s *Scheduler) Skip(id string) error {
	return s.transition(id, StatusSkipped, StatusPending, StatusActive)
}

func (s *Scheduler) transition(id string, to Status, from ...Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	cur := s.steps[i].Status
	for _, f := range from {
		if cur == f {
			s.steps[i].Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: step %q is %s, cannot become %s", ErrInvalidStepTransition, id, cur, to)
}

// Active returns the active step, if any.
func (s *Scheduler) Active() (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.steps {
		if s.steps[i].Status == StatusActive {
			return s.steps[i], true
		}
	}
	return Step{}, false
}

// Done reports whether no step is pending or active.
func (s *Scheduler) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.steps {
		if st := s.steps[i].Status; st == StatusPending || st == StatusActive {
			return false
		}
	}
	return true
}

// Steps returns a copy of the plan with current statuses.
func (s *Scheduler) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Step, len(s.steps))
	for i := range s.steps {
		out[i] = s.steps[i]
		out[i].Dependencies = append([]string(nil), s.steps[i].Dependencies...)
	}
	return out
}

// Len returns the number of steps in the plan.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteJoin(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return strings.Join(quoted, ", ")
}

package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, deps ...string) Step {
	return Step{ID: id, Title: "step " + id, Dependencies: deps}
}

func TestSchedulerDependencyOrder(t *testing.T) {
	s := NewScheduler([]Step{step("A"), step("B", "A"), step("C", "A")})

	first, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", first.ID)
	assert.Equal(t, StatusActive, first.Status)

	// Asking again while A is active returns A, never B or C.
	again, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", again.ID)

	require.NoError(t, s.Complete("A"))

	var order []string
	for {
		next, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		order = append(order, next.ID)
		require.NoError(t, s.Complete(next.ID))
	}
	assert.ElementsMatch(t, []string{"B", "C"}, order)
	assert.True(t, s.Done())
}

func TestSchedulerPlanOrderAmongEligible(t *testing.T) {
	s := NewScheduler([]Step{step("late", "early"), step("early"), step("free")})

	next, _, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "early", next.ID)
	require.NoError(t, s.Complete("early"))

	next, _, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "late", next.ID)
}

func TestSchedulerSkippedSatisfiesDependency(t *testing.T) {
	s := NewScheduler([]Step{step("A"), step("B", "A")})
	require.NoError(t, s.Skip("A"))

	next, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", next.ID)
}

func TestSchedulerMissingDependencyDeadlocks(t *testing.T) {
	s := NewScheduler([]Step{step("A"), step("B", "ghost")})

	next, _, err := s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Complete(next.ID))

	_, ok, err := s.Next()
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeadlock))

	var dl *DeadlockError
	require.True(t, errors.As(err, &dl))
	assert.Equal(t, map[string][]string{"B": {"ghost"}}, dl.Missing)
	assert.Nil(t, dl.Cycle)
	assert.Equal(t, []string{"B"}, dl.Pending)
	assert.Contains(t, err.Error(), `step "B" depends on unknown step(s) "ghost"`)
	assert.False(t, s.Done())
}

func TestSchedulerCycleDeadlocks(t *testing.T) {
	s := NewScheduler([]Step{step("A", "C"), step("B", "A"), step("C", "B"), step("D")})

	next, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "D", next.ID)
	require.NoError(t, s.Complete("D"))

	_, _, err = s.Next()
	var dl *DeadlockError
	require.True(t, errors.As(err, &dl))
	assert.Equal(t, []string{"A", "C", "B", "A"}, dl.Cycle)
	assert.Empty(t, dl.Missing)
	assert.Contains(t, err.Error(), "dependency cycle A -> C -> B -> A")
}

func TestSchedulerSelfDependency(t *testing.T) {
	s := NewScheduler([]Step{step("A", "A")})
	_, _, err := s.Next()
	var dl *DeadlockError
	require.True(t, errors.As(err, &dl))
	assert.Equal(t, []string{"A", "A"}, dl.Cycle)
}

func TestSchedulerFailedDependency(t *testing.T) {
	s := NewScheduler([]Step{step("A"), step("B", "A")})
	_, _, err := s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Fail("A"))

	_, _, err = s.Next()
	var dl *DeadlockError
	require.True(t, errors.As(err, &dl))
	assert.Equal(t, map[string][]string{"B": {"A"}}, dl.Failed)
}

func TestSchedulerEmptyPlan(t *testing.T) {
	s := NewScheduler(nil)
	_, ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.Done())
	assert.Zero(t, s.Len())
}

func TestSchedulerTransitions(t *testing.T) {
	s := NewScheduler([]Step{step("A"), step("B")})

	err := s.Complete("A")
	assert.True(t, errors.Is(err, ErrInvalidStepTransition), "pending step cannot complete")

	err = s.Complete("nope")
	assert.True(t, errors.Is(err, ErrUnknownStep))

	_, _, err = s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Complete("A"))
	assert.True(t, errors.Is(s.Fail("A"), ErrInvalidStepTransition))

	active, ok := s.Active()
	assert.False(t, ok)
	assert.Empty(t, active.ID)
}

func TestSchedulerIgnoresIncomingStatusAndCopies(t *testing.T) {
	in := []Step{{ID: "A", Title: "a", Status: StatusCompleted, Dependencies: []string{}}}
	s := NewScheduler(in)
	steps := s.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, StatusPending, steps[0].Status)

	steps[0].Status = StatusFailed
	assert.Equal(t, StatusPending, s.Steps()[0].Status)
}

func TestRestoreKeepsFinishedStatuses(t *testing.T) {
	s := Restore([]Step{
		{ID: "A", Title: "a", Status: StatusCompleted},
		{ID: "B", Title: "b", Status: StatusActive, Dependencies: []string{"A"}},
		{ID: "C", Title: "c", Status: StatusFailed},
	})

	steps := s.Steps()
	assert.Equal(t, StatusCompleted, steps[0].Status)
	assert.Equal(t, StatusPending, steps[1].Status)
	assert.Equal(t, StatusFailed, steps[2].Status)

	next, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", next.ID)
}

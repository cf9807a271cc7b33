package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentforge/pkg/plan"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is a persisted orchestrator session: its goal, status enum, plan
// and, when loaded with LoadSession, its full step log.
//
//nolint:govet // struct alignment optimization not critical for this type.
type Session struct {
	ID               string      `json:"session_id"`
	Goal             string      `json:"goal"`
	Status           string      `json:"status"`
	FailureReason    string      `json:"failure_reason,omitempty"`
	Plan             []plan.Step `json:"plan"`
	PromptTokens     int         `json:"prompt_tokens"`
	CompletionTokens int         `json:"completion_tokens"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	Steps            []Step      `json:"steps,omitempty"`
}

// Step is one entry of a session's append-only log.
type Step struct {
	Seq        int       `json:"seq"`
	Kind       string    `json:"kind"`
	PlanStepID string    `json:"plan_step_id,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateSession records a new session. Creating an existing ID resets its
// goal and status but keeps the step log, so an instruction on a finished
// session continues the same record.
func (s *Store) CreateSession(ctx context.Context, sessionID, goal, status string) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, goal, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			goal = excluded.goal,
			status = excluded.status,
			failure_reason = '',
			updated_at = excluded.updated_at
	`, sessionID, goal, status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateStatus sets the status enum and failure reason of a session.
func (s *Store) UpdateStatus(ctx context.Context, sessionID, status, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, failure_reason = ?, updated_at = ? WHERE session_id = ?
	`, status, reason, formatTime(time.Now()), sessionID)
	return checkUpdated(result, err, "update session status")
}

// SavePlan replaces the stored plan of a session.
func (s *Store) SavePlan(ctx context.Context, sessionID string, steps []plan.Step) error {
	if steps == nil {
		steps = []plan.Step{}
	}
	planJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET plan_json = ?, updated_at = ? WHERE session_id = ?
	`, string(planJSON), formatTime(time.Now()), sessionID)
	return checkUpdated(result, err, "save plan")
}

// SaveUsage records the token totals of a session.
func (s *Store) SaveUsage(ctx context.Context, sessionID string, promptTokens, completionTokens int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET prompt_tokens = ?, completion_tokens = ?, updated_at = ? WHERE session_id = ?
	`, promptTokens, completionTokens, formatTime(time.Now()), sessionID)
	return checkUpdated(result, err, "save usage")
}

// AppendStep appends step to the session log and returns its sequence number.
func (s *Store) AppendStep(ctx context.Context, sessionID string, step Step) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE session_id = ?`, sessionID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to look up session: %w", err)
	}
	if exists == 0 {
		return 0, ErrSessionNotFound
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM session_steps WHERE session_id = ?`, sessionID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to allocate step sequence: %w", err)
	}

	created := step.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_steps (session_id, seq, kind, plan_step_id, tool, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionID, seq, step.Kind, step.PlanStepID, step.Tool, step.Content, formatTime(created)); err != nil {
		return 0, fmt.Errorf("failed to append step: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`, formatTime(time.Now()), sessionID,
	); err != nil {
		return 0, fmt.Errorf("failed to touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit step: %w", err)
	}
	return seq, nil
}

// LoadSession returns a session with its plan and full step log.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, goal, status, failure_reason, plan_json, prompt_tokens, completion_tokens, created_at, updated_at
		FROM sessions WHERE session_id = ?
	`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, plan_step_id, tool, content, created_at
		FROM session_steps WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var step Step
		var created string
		if err := rows.Scan(&step.Seq, &step.Kind, &step.PlanStepID, &step.Tool, &step.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.CreatedAt = parseTime(created)
		sess.Steps = append(sess.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session without its step log, most recently
// updated first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, goal, status, failure_reason, plan_json, prompt_tokens, completion_tokens, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and its log.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_steps WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err := checkUpdated(result, err, "delete session"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var planJSON, created, updated string
	err := row.Scan(&sess.ID, &sess.Goal, &sess.Status, &sess.FailureReason, &planJSON,
		&sess.PromptTokens, &sess.CompletionTokens, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(planJSON), &sess.Plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan for session %s: %w", sess.ID, err)
	}
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)
	return &sess, nil
}

func checkUpdated(result sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

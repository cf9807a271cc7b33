// Package agent implements the orchestrator: a per-session state machine that
// plans a goal into dependency-ordered steps, drives one strictly sequential
// LLM conversation through them with the tool gateway, and hands the
// resulting patches to a human for review.
//
// A session moves through these states:
//
//	idle → planning → thinking ⇄ executing → summarizing → awaiting_changes_review → completed
//
// Any active state may end in failed, and Stop moves an active session to
// stopped. Terminal sessions accept a new instruction, which starts another
// planning round on the same conversation and ledger.
package agent

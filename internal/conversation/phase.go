// ABOUTME: Phase enum for the plan-review protocol.
// ABOUTME: PlanReview and Executing carry the plan and the query that produced it.

package conversation

import "github.com/2389/fathom/internal/api"

// PhaseKind identifies the orchestrator's position in the plan-review
// protocol for the active session.
type PhaseKind int

const (
	PhaseIdle PhaseKind = iota
	PhaseAwaitingPlan
	PhasePlanReview
	PhaseExecuting
)

// String returns the phase name for logging and prompts.
func (k PhaseKind) String() string {
	switch k {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingPlan:
		return "awaiting_plan"
	case PhasePlanReview:
		return "plan_review"
	case PhaseExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Phase is the transient per-session state. Plan and Query are set only in
// PlanReview and Executing; the query is kept client-side because the
// backend is stateless across refine and execute calls.
type Phase struct {
	Kind  PhaseKind
	Plan  *api.ResearchPlan
	Query string
}

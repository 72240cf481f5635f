// ABOUTME: Package documentation for the plan-review session orchestrator.
// ABOUTME: Describes phases, sentinel handling, the busy flag, and error conversion.

// Package conversation implements the session state machine that drives the
// plan-review research protocol.
//
// # Phases
//
// The active session is always in exactly one phase:
//
//   - Idle: plain chat; a plan_review reply moves to PlanReview
//   - AwaitingPlan: a deep-research request is in flight
//   - PlanReview: a plan is held for approval, refinement, or cancellation
//   - Executing: the approved plan is running; resolves to Idle on any outcome
//
// # Verbs and the sentinel shim
//
// The orchestrator exposes explicit verbs (Accept, CancelReview, Refine)
// and a Submit method that routes free text: in PlanReview, "start" accepts,
// "quit"/"cancel" cancels, anything else is refinement feedback. Matching is
// case-insensitive after trimming. After a plan is shown, Prefill returns
// the accept sentinel so an empty submission approves the plan.
//
// # Concurrency
//
// One network call may be in flight per session. Submissions while busy are
// rejected with ErrBusy and leave the transcript unchanged. All transcript
// mutation happens inside the orchestrator, serialized behind its mutex.
//
// # Failures
//
// Network and protocol failures never escape as errors to the caller: they
// are converted into a plain-language assistant message and the phase is
// left consistent. A failed refine keeps the pre-failure plan; a failed
// execute resolves to Idle.
package conversation

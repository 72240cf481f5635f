// ABOUTME: Package documentation for the REST client against the research backend.
// ABOUTME: Describes the three research operations, the health check, and error semantics.

// Package api implements the REST client for the research backend.
//
// # Operations
//
// The client exposes one method per backend endpoint:
//
//   - ChatOrPlan: POST /api/chat. Plain chat, or plan generation when
//     deep research is requested. A plan_review intent carries the proposed
//     plan for user approval.
//   - RefinePlan: POST /api/research/refine. Revises a plan from free-text
//     feedback and returns the revised plan with an explanation.
//   - ExecuteResearch: POST /api/research/execute. Runs an approved plan.
//     Long-running (minutes); issued without a client timeout.
//   - Health: GET /. Backend status and service availability.
//
// # Error semantics
//
// Every operation is a single request/response exchange with no implicit
// retry. Connectivity failures and non-2xx statuses surface as
// *TransportError; responses missing fields required by the caller's phase
// surface as *MalformedResponseError. ExecuteResearch in particular must
// never be retried automatically, since a re-run bills again.
package api

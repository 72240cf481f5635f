// ABOUTME: Orchestrator drives the plan-review state machine for the active session.
// ABOUTME: Serializes network calls behind a busy flag and folds results into the transcript.

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/fathom/internal/api"
	"github.com/2389/fathom/internal/history"
	"github.com/2389/fathom/internal/session"
)

// AcceptSentinel is the normalized input that approves the current plan.
const AcceptSentinel = "start"

// cancelSentinels abort the plan review without a network call.
var cancelSentinels = map[string]bool{
	"quit":   true,
	"cancel": true,
}

var (
	// ErrBusy rejects a submission while a call is in flight. The
	// transcript is unchanged; the caller treats it as a no-op.
	ErrBusy = errors.New("a request is already in flight")

	// ErrEmptyInput rejects blank submissions.
	ErrEmptyInput = errors.New("empty input")

	// ErrNoPlanReview rejects a review verb outside PlanReview.
	ErrNoPlanReview = errors.New("no plan under review")
)

// Transport is the one-shot request capability the orchestrator drives.
// api.Client implements it; tests substitute fakes.
type Transport interface {
	ChatOrPlan(ctx context.Context, message, threadID string, deepResearch bool) (*api.ChatResponse, error)
	RefinePlan(ctx context.Context, plan *api.ResearchPlan, feedback string) (*api.RefineResponse, error)
	ExecuteResearch(ctx context.Context, query string, plan *api.ResearchPlan, enableCache bool) (*api.ExecuteResponse, error)
}

// PlanFormatter renders a plan as display text when a reply carries a plan
// but no text of its own.
type PlanFormatter func(*api.ResearchPlan) string

// MetricsFormatter renders the execute metrics line appended to a report.
type MetricsFormatter func(api.Metrics) string

// Options configures an Orchestrator.
type Options struct {
	EnableCache   bool
	FormatPlan    PlanFormatter
	FormatMetrics MetricsFormatter
	Logger        *slog.Logger
}

// Orchestrator owns the active session's phase and transcript. All state
// transitions and message appends happen under its mutex; the mutex is never
// held across a network call.
type Orchestrator struct {
	mu        sync.Mutex
	transport Transport
	store     *history.Store
	logger    *slog.Logger

	enableCache   bool
	formatPlan    PlanFormatter
	formatMetrics MetricsFormatter

	phase   Phase
	busy    bool
	prefill string

	// streaming delivery state, see stream_hook.go
	streamOpen bool
	streamBuf  strings.Builder
}

// New creates an orchestrator over the given transport and history store.
func New(transport Transport, store *history.Store, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	formatMetrics := opts.FormatMetrics
	if formatMetrics == nil {
		formatMetrics = func(m api.Metrics) string {
			return fmt.Sprintf("API calls: %d | Tokens: %d | Cost: $%.4f",
				m.TotalAPICalls, m.TotalTokens, m.TotalCost)
		}
	}
	return &Orchestrator{
		transport:     transport,
		store:         store,
		logger:        logger.With("component", "orchestrator"),
		enableCache:   opts.EnableCache,
		formatPlan:    opts.FormatPlan,
		formatMetrics: formatMetrics,
		phase:         Phase{Kind: PhaseIdle},
	}
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Busy reports whether a call is in flight for the active session.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Prefill returns the default input text, set to the accept sentinel after a
// plan is shown so a bare send approves it. Empty otherwise.
func (o *Orchestrator) Prefill() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prefill
}

// Active returns the active session.
func (o *Orchestrator) Active() *session.Session {
	return o.store.Active()
}

// Submit routes free-text input by phase. In PlanReview the sentinel shim
// applies: the accept sentinel executes, the cancel sentinels abort, and
// anything else is refinement feedback. Outside PlanReview the text is a
// chat (or deep-research) message.
func (o *Orchestrator) Submit(ctx context.Context, text string, deepResearch bool) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyInput
	}

	o.mu.Lock()
	inReview := o.phase.Kind == PhasePlanReview
	o.mu.Unlock()

	if !inReview {
		return o.chat(ctx, trimmed, deepResearch)
	}

	switch normalized := strings.ToLower(trimmed); {
	case normalized == AcceptSentinel:
		return o.accept(ctx, trimmed)
	case cancelSentinels[normalized]:
		return o.cancelReview(trimmed)
	default:
		return o.refine(ctx, trimmed, trimmed)
	}
}

// Accept executes the current plan. Valid only in PlanReview.
func (o *Orchestrator) Accept(ctx context.Context) error {
	return o.accept(ctx, AcceptSentinel)
}

// CancelReview discards the current plan without a network call. Valid only
// in PlanReview.
func (o *Orchestrator) CancelReview() error {
	return o.cancelReview("cancel")
}

// Refine sends feedback on the current plan. Valid only in PlanReview.
func (o *Orchestrator) Refine(ctx context.Context, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return ErrEmptyInput
	}
	return o.refine(ctx, feedback, feedback)
}

// NewSession archives the active session (if non-empty) and starts a fresh
// one in Idle. Rejected while a call is in flight.
func (o *Orchestrator) NewSession() (*session.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return nil, ErrBusy
	}
	o.phase = Phase{Kind: PhaseIdle}
	o.prefill = ""
	return o.store.StartNew(), nil
}

// OpenSession re-activates an archived session. The reopened session resumes
// in Idle with no plan state. Rejected while a call is in flight.
func (o *Orchestrator) OpenSession(id string) (*session.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return nil, ErrBusy
	}
	sess, err := o.store.Activate(id)
	if err != nil {
		return nil, err
	}
	o.phase = Phase{Kind: PhaseIdle}
	o.prefill = ""
	return sess, nil
}

// chat sends a plain or deep-research message from Idle. A plan_review reply
// with a usable plan enters PlanReview; one without a usable plan is treated
// as a normal reply and the phase stays Idle.
func (o *Orchestrator) chat(ctx context.Context, text string, deepResearch bool) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	o.busy = true
	sess := o.store.Active()
	sess.Append(session.RoleUser, text)
	if deepResearch {
		o.phase = Phase{Kind: PhaseAwaitingPlan}
	}
	threadID := sess.ID
	o.mu.Unlock()

	resp, err := o.transport.ChatOrPlan(ctx, text, threadID, deepResearch)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false

	if err != nil {
		o.phase = Phase{Kind: PhaseIdle}
		sess.Append(session.RoleAssistant, failureMessage(err))
		o.logger.Warn("chat request failed", "error", err)
		return nil
	}

	if resp.Intent == api.IntentPlanReview && resp.Plan.Valid() {
		o.phase = Phase{Kind: PhasePlanReview, Plan: resp.Plan, Query: text}
		o.prefill = AcceptSentinel
		sess.Append(session.RoleAssistant, o.planText(resp.Response, resp.Plan))
		o.logger.Info("entered plan review",
			"session_id", sess.ID,
			"steps", len(resp.Plan.Steps))
		return nil
	}

	// A plan_review intent without a usable plan falls through here on
	// purpose: treat it as a normal reply rather than entering review with
	// nothing to approve.
	o.phase = Phase{Kind: PhaseIdle}
	reply := resp.Response
	if reply == "" {
		reply = "The backend returned an empty response."
	}
	sess.Append(session.RoleAssistant, reply)
	return nil
}

// accept executes the plan under review. Success and failure both resolve
// the phase to Idle; execute is never retried automatically.
func (o *Orchestrator) accept(ctx context.Context, echo string) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.phase.Kind != PhasePlanReview {
		o.mu.Unlock()
		return ErrNoPlanReview
	}
	plan, query := o.phase.Plan, o.phase.Query
	o.busy = true
	o.phase = Phase{Kind: PhaseExecuting, Plan: plan, Query: query}
	o.prefill = ""
	sess := o.store.Active()
	sess.Append(session.RoleUser, echo)
	o.mu.Unlock()

	o.logger.Info("executing research", "session_id", sess.ID, "query", query)
	resp, err := o.transport.ExecuteResearch(ctx, query, plan, o.enableCache)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	o.phase = Phase{Kind: PhaseIdle}

	if err != nil {
		sess.Append(session.RoleAssistant, failureMessage(err))
		o.logger.Warn("execute failed", "error", err)
		return nil
	}

	content := resp.Report + "\n\n---\n" + o.formatMetrics(resp.Metrics)
	sess.Append(session.RoleAssistant, content)
	return nil
}

// cancelReview discards the plan and acknowledges. No network call.
func (o *Orchestrator) cancelReview(echo string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	if o.phase.Kind != PhasePlanReview {
		return ErrNoPlanReview
	}
	o.phase = Phase{Kind: PhaseIdle}
	o.prefill = ""
	sess := o.store.Active()
	sess.Append(session.RoleUser, echo)
	sess.Append(session.RoleAssistant, "Research cancelled. The plan has been discarded.")
	o.logger.Info("plan review cancelled", "session_id", sess.ID)
	return nil
}

// refine sends feedback and replaces the stored plan with the revision. A
// failed refine keeps the pre-failure plan and stays in PlanReview.
func (o *Orchestrator) refine(ctx context.Context, echo, feedback string) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.phase.Kind != PhasePlanReview {
		o.mu.Unlock()
		return ErrNoPlanReview
	}
	plan := o.phase.Plan
	o.busy = true
	sess := o.store.Active()
	sess.Append(session.RoleUser, echo)
	o.mu.Unlock()

	resp, err := o.transport.RefinePlan(ctx, plan, feedback)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false

	if err != nil {
		// Phase and plan are untouched: still PlanReview, pre-failure plan.
		sess.Append(session.RoleAssistant, failureMessage(err))
		o.logger.Warn("refine failed", "error", err)
		return nil
	}

	o.phase.Plan = resp.Plan
	o.prefill = AcceptSentinel
	sess.Append(session.RoleAssistant, o.planText(resp.Response, resp.Plan))
	o.logger.Info("plan refined", "session_id", sess.ID, "steps", len(resp.Plan.Steps))
	return nil
}

// planText picks the backend's rendered plan text, falling back to a
// client-side rendering when the reply has none.
func (o *Orchestrator) planText(response string, plan *api.ResearchPlan) string {
	if response != "" {
		return response
	}
	if o.formatPlan != nil {
		return o.formatPlan(plan)
	}
	return plan.MainObjective
}

// failureMessage converts a transport or protocol error into the
// plain-language assistant message shown to the user.
func failureMessage(err error) string {
	var te *api.TransportError
	if errors.As(err, &te) {
		if te.Status == 0 {
			return "The research backend could not be reached. Check that the server is running and try again."
		}
		if te.Detail != "" {
			return fmt.Sprintf("The research backend reported an error: %s", te.Detail)
		}
		return fmt.Sprintf("The research backend reported an error (status %d). Please try again.", te.Status)
	}

	var me *api.MalformedResponseError
	if errors.As(err, &me) {
		return "The research backend returned an unexpected response. Please try again."
	}

	return fmt.Sprintf("Something went wrong: %v", err)
}

// ABOUTME: Request and response types for the research backend's JSON API.
// ABOUTME: Defines ResearchPlan, PlanStep, and the per-endpoint response structs.

package api

// Intent values returned by the chat endpoint.
const (
	IntentChat       = "chat"
	IntentResearch   = "research"
	IntentPlanReview = "plan_review"
)

// PlanStep is a single step of a research plan.
type PlanStep struct {
	StepNumber    int      `json:"step_number"`
	Action        string   `json:"action"`
	Reasoning     string   `json:"reasoning,omitempty"`
	SearchQueries []string `json:"search_queries,omitempty"`
}

// ResearchPlan is the backend-generated research strategy. The client treats
// it as pass-through data: received on plan_review, possibly replaced by
// refine, and sent back unmodified on execute.
type ResearchPlan struct {
	MainObjective string     `json:"main_objective"`
	Steps         []PlanStep `json:"steps"`
}

// Valid reports whether the plan is usable for review: it must name an
// objective and carry at least one step.
func (p *ResearchPlan) Valid() bool {
	return p != nil && p.MainObjective != "" && len(p.Steps) > 0
}

// ChatRequest is the body for POST /api/chat.
type ChatRequest struct {
	Message      string `json:"message"`
	ThreadID     string `json:"thread_id,omitempty"`
	DeepResearch bool   `json:"deep_research"`
}

// ChatResponse is the reply from POST /api/chat. Plan is present only when
// Intent is plan_review.
type ChatResponse struct {
	Response  string        `json:"response"`
	Intent    string        `json:"intent"`
	Timestamp string        `json:"timestamp"`
	Plan      *ResearchPlan `json:"plan,omitempty"`
}

// RefineRequest is the body for POST /api/research/refine.
type RefineRequest struct {
	Plan     *ResearchPlan `json:"plan"`
	Feedback string        `json:"feedback"`
}

// RefineResponse is the reply from POST /api/research/refine. Response holds
// the human-readable explanation of the revised plan.
type RefineResponse struct {
	Response  string        `json:"response"`
	Plan      *ResearchPlan `json:"plan"`
	Timestamp string        `json:"timestamp"`
}

// ExecuteRequest is the body for POST /api/research/execute.
type ExecuteRequest struct {
	Query       string        `json:"query"`
	Plan        *ResearchPlan `json:"plan"`
	EnableCache bool          `json:"enable_cache"`
}

// Metrics summarizes the cost of an executed research run.
type Metrics struct {
	TotalAPICalls int     `json:"total_api_calls"`
	TotalTokens   int     `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
}

// ExecuteResponse is the reply from POST /api/research/execute.
type ExecuteResponse struct {
	Report    string  `json:"report"`
	Query     string  `json:"query"`
	Timestamp string  `json:"timestamp"`
	Metrics   Metrics `json:"metrics"`
}

// HealthResponse is the reply from GET /.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// ABOUTME: Client-side markdown rendering of a research plan and execute metrics.
// ABOUTME: Mirrors the backend's own plan formatting so fallback output looks identical.

package render

import (
	"fmt"
	"strings"

	"github.com/2389/fathom/internal/api"
)

// PlanMarkdown renders a plan in the backend's display format. Used when a
// plan_review or refine reply carries a plan but no rendered text.
func PlanMarkdown(plan *api.ResearchPlan) string {
	var b strings.Builder
	b.WriteString("## Research Plan\n\n")
	b.WriteString(fmt.Sprintf("**Objective:** %s\n\n", plan.MainObjective))
	b.WriteString("### Steps:\n\n")
	for _, step := range plan.Steps {
		b.WriteString(fmt.Sprintf("%d. %s\n", step.StepNumber, step.Action))
	}
	b.WriteString("\n---\n\n")
	b.WriteString(fmt.Sprintf("Reply %q to begin, %q to abort, or describe any changes to refine the plan.\n",
		"start", "cancel"))
	return b.String()
}

// MetricsLine renders the run metrics appended beneath a report.
func MetricsLine(m api.Metrics) string {
	return fmt.Sprintf("API calls: %d | Tokens: %d | Cost: $%.4f",
		m.TotalAPICalls, m.TotalTokens, m.TotalCost)
}

// ABOUTME: Tests for the research backend REST client using httptest servers.
// ABOUTME: Covers request shapes, response decoding, and transport/malformed error handling.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() *ResearchPlan {
	return &ResearchPlan{
		MainObjective: "Assess climate change impacts",
		Steps: []PlanStep{
			{StepNumber: 1, Action: "Survey recent literature", SearchQueries: []string{"climate impact 2025"}},
			{StepNumber: 2, Action: "Summarize policy responses"},
		},
	}
}

func TestChatOrPlan_PlainChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Message)
		assert.Equal(t, "thread-1", req.ThreadID)
		assert.False(t, req.DeepResearch)

		json.NewEncoder(w).Encode(ChatResponse{
			Response: "hi there",
			Intent:   IntentChat,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	resp, err := client.ChatOrPlan(context.Background(), "hello", "thread-1", false)
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Response)
	assert.Equal(t, IntentChat, resp.Intent)
	assert.Nil(t, resp.Plan)
}

func TestChatOrPlan_PlanReview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.DeepResearch)

		json.NewEncoder(w).Encode(ChatResponse{
			Response: "## Research Plan\n...",
			Intent:   IntentPlanReview,
			Plan:     testPlan(),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	resp, err := client.ChatOrPlan(context.Background(), "Climate change impacts", "", true)
	require.NoError(t, err)
	assert.Equal(t, IntentPlanReview, resp.Intent)
	require.NotNil(t, resp.Plan)
	assert.True(t, resp.Plan.Valid())
	assert.Len(t, resp.Plan.Steps, 2)
}

func TestRefinePlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/research/refine", r.URL.Path)

		var req RefineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "focus more on policy", req.Feedback)
		require.NotNil(t, req.Plan)

		refined := testPlan()
		refined.Steps = append(refined.Steps, PlanStep{StepNumber: 3, Action: "Deep dive on policy"})
		json.NewEncoder(w).Encode(RefineResponse{
			Response: "## Revised Research Plan\n...",
			Plan:     refined,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	resp, err := client.RefinePlan(context.Background(), testPlan(), "focus more on policy")
	require.NoError(t, err)
	assert.Len(t, resp.Plan.Steps, 3)
}

func TestRefinePlan_MissingPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RefineResponse{Response: "revised"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.RefinePlan(context.Background(), testPlan(), "more depth")
	require.Error(t, err)

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "refine", malformed.Op)
}

func TestExecuteResearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/research/execute", r.URL.Path)

		var req ExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Climate change impacts", req.Query)
		assert.True(t, req.EnableCache)
		require.NotNil(t, req.Plan)

		json.NewEncoder(w).Encode(ExecuteResponse{
			Report: "# Report\nFindings...",
			Query:  req.Query,
			Metrics: Metrics{
				TotalAPICalls: 12,
				TotalTokens:   48213,
				TotalCost:     0.42,
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	resp, err := client.ExecuteResearch(context.Background(), "Climate change impacts", testPlan(), true)
	require.NoError(t, err)
	assert.Equal(t, "# Report\nFindings...", resp.Report)
	assert.Equal(t, 12, resp.Metrics.TotalAPICalls)
	assert.InDelta(t, 0.42, resp.Metrics.TotalCost, 0.0001)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/", r.URL.Path)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:   "healthy",
			Version:  "1.0.0",
			Services: map[string]string{"research_system": "active"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "active", health.Services["research_system"])
}

func TestTransportError_StatusAndDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "planner unavailable"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.ChatOrPlan(context.Background(), "hello", "", false)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Equal(t, "planner unavailable", te.Detail)
}

func TestTransportError_ConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(url, nil)
	_, err := client.ChatOrPlan(context.Background(), "hello", "", false)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.Status)
	assert.Error(t, te.Unwrap())
}

func TestPlanValid(t *testing.T) {
	assert.True(t, testPlan().Valid())
	assert.False(t, (*ResearchPlan)(nil).Valid())
	assert.False(t, (&ResearchPlan{MainObjective: "x"}).Valid())
	assert.False(t, (&ResearchPlan{Steps: []PlanStep{{StepNumber: 1}}}).Valid())
}

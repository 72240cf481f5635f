// ABOUTME: REST client for the research backend's chat, refine, execute, and health endpoints.
// ABOUTME: Uses a timeout-bounded client for fast calls and an unbounded one for execute.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds the fast calls (chat, refine, health). Execute is
// deliberately unbounded: a research run legitimately takes minutes.
const DefaultTimeout = 45 * time.Second

// Client issues REST calls against the research backend.
type Client struct {
	baseURL string
	fast    *http.Client // chat/refine/health
	slow    *http.Client // execute, no timeout
	logger  *slog.Logger
}

// NewClient creates a client for the backend at baseURL. Pass nil logger for
// the default.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fast:    &http.Client{Timeout: DefaultTimeout},
		slow:    &http.Client{},
		logger:  logger.With("component", "api"),
	}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ChatOrPlan sends a chat message. With deepResearch set, the backend
// answers with a plan_review intent carrying a proposed research plan
// instead of a direct reply.
func (c *Client) ChatOrPlan(ctx context.Context, message, threadID string, deepResearch bool) (*ChatResponse, error) {
	req := ChatRequest{
		Message:      message,
		ThreadID:     threadID,
		DeepResearch: deepResearch,
	}
	var resp ChatResponse
	if err := c.post(ctx, c.fast, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefinePlan asks the backend to revise a plan from free-text feedback.
// The returned plan replaces the caller's copy; a reply without a usable
// plan is a MalformedResponseError so the caller keeps its current plan.
func (c *Client) RefinePlan(ctx context.Context, plan *ResearchPlan, feedback string) (*RefineResponse, error) {
	req := RefineRequest{Plan: plan, Feedback: feedback}
	var resp RefineResponse
	if err := c.post(ctx, c.fast, "/api/research/refine", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Plan.Valid() {
		return nil, &MalformedResponseError{Op: "refine", Reason: "missing or empty plan"}
	}
	return &resp, nil
}

// ExecuteResearch runs an approved plan and returns the report with run
// metrics. No client timeout applies; callers must not retry automatically,
// a re-run bills again.
func (c *Client) ExecuteResearch(ctx context.Context, query string, plan *ResearchPlan, enableCache bool) (*ExecuteResponse, error) {
	req := ExecuteRequest{Query: query, Plan: plan, EnableCache: enableCache}
	var resp ExecuteResponse
	if err := c.post(ctx, c.slow, "/api/research/execute", req, &resp); err != nil {
		return nil, err
	}
	if resp.Report == "" {
		return nil, &MalformedResponseError{Op: "execute", Reason: "missing report"}
	}
	return &resp, nil
}

// Health fetches backend status and per-service availability.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.fast.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportError(resp)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, &MalformedResponseError{Op: "health", Reason: err.Error()}
	}
	return &health, nil
}

// post issues a JSON POST and decodes the reply into out.
func (c *Client) post(ctx context.Context, hc *http.Client, path string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed", "path", path, "error", err)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request complete",
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transportError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &MalformedResponseError{Op: path, Reason: err.Error()}
	}
	return nil
}

// transportError builds a TransportError from a non-2xx response, pulling
// the FastAPI-style {"detail": ...} message out of the body when present.
func transportError(resp *http.Response) *TransportError {
	te := &TransportError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return te
	}

	var errBody struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &errBody) == nil {
		if errBody.Detail != "" {
			te.Detail = errBody.Detail
		} else if errBody.Error != "" {
			te.Detail = errBody.Error
		}
	}
	return te
}

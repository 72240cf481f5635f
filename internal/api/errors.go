// ABOUTME: Error types for the research backend client.
// ABOUTME: TransportError for connectivity/status failures, MalformedResponseError for bad payloads.

package api

import "fmt"

// TransportError reports a failed REST exchange: either the connection
// failed (Status 0, Err set) or the server returned a non-2xx status.
type TransportError struct {
	Status int    // HTTP status, 0 for connectivity failures
	Detail string // server-provided detail, if any
	Err    error  // underlying error for connectivity failures
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("transport: server returned status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("transport: server returned status %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a response that decoded but is missing a
// field the current operation requires, e.g. a refine reply without a plan.
type MalformedResponseError struct {
	Op     string // the client operation that received the response
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Op, e.Reason)
}

// ABOUTME: Append/merge hook for streaming channel frames.
// ABOUTME: Accumulates message content per frame and finalizes one assistant Message on done.

package conversation

import (
	"encoding/json"

	"github.com/2389/fathom/internal/session"
)

// streamFrame is the loosely-typed shape of an inbound channel frame. The
// channel forwards frames opaquely; only this hook interprets them, and only
// as far as needed to merge content into the pending assistant message.
type streamFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Message string `json:"message"`
}

// NoteStreamSend records an outbound user message on the streaming path and
// marks the session busy until the stream delivers done or error. The
// streaming path carries plain chat only; PlanReview traffic stays on the
// one-shot transport.
func (o *Orchestrator) NoteStreamSend(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	if o.phase.Kind != PhaseIdle {
		return ErrNoPlanReview
	}
	o.busy = true
	o.streamOpen = true
	o.streamBuf.Reset()
	o.store.Active().Append(session.RoleUser, text)
	return nil
}

// HandleFrame merges one inbound frame into the pending assistant message.
// Malformed frames are dropped with a debug log and never crash the
// consuming loop. Unknown frame types are ignored.
func (o *Orchestrator) HandleFrame(raw json.RawMessage) {
	var f streamFrame
	if err := json.Unmarshal(raw, &f); err != nil || f.Type == "" {
		o.logger.Debug("dropping malformed frame", "error", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch f.Type {
	case "ack", "status":
		o.logger.Debug("stream status", "message", f.Message)

	case "message", "report":
		if !o.streamOpen {
			o.logger.Debug("dropping frame with no stream in progress", "type", f.Type)
			return
		}
		content := f.Content
		if content == "" {
			content = f.Message
		}
		o.streamBuf.WriteString(content)

	case "done":
		if !o.streamOpen {
			return
		}
		if o.streamBuf.Len() > 0 {
			o.store.Active().Append(session.RoleAssistant, o.streamBuf.String())
		}
		o.finishStreamLocked()

	case "error":
		if !o.streamOpen {
			return
		}
		msg := f.Message
		if msg == "" {
			msg = "The streaming channel reported an error."
		}
		o.store.Active().Append(session.RoleAssistant, msg)
		o.finishStreamLocked()

	default:
		o.logger.Debug("ignoring frame", "type", f.Type)
	}
}

// AbortStream resolves a stream that closed before delivering done. Any
// buffered content is kept; the caller decides whether to fall back to the
// one-shot transport for the next submission.
func (o *Orchestrator) AbortStream(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.streamOpen {
		return
	}
	if o.streamBuf.Len() > 0 {
		o.store.Active().Append(session.RoleAssistant, o.streamBuf.String())
	}
	o.store.Active().Append(session.RoleAssistant,
		"The streaming connection was lost. Your next message will use the standard connection.")
	o.logger.Warn("stream aborted", "error", err)
	o.finishStreamLocked()
}

// finishStreamLocked clears streaming state and the busy flag. Must be
// called with mu held.
func (o *Orchestrator) finishStreamLocked() {
	o.streamOpen = false
	o.streamBuf.Reset()
	o.busy = false
}

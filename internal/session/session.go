// ABOUTME: Session and Message data model for the research console.
// ABOUTME: Messages are immutable once appended; ordering is append order within a session.

package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TitleMaxLen bounds the derived session title length.
const TitleMaxLen = 48

// Message is a single transcript entry. Immutable once appended.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Session is one conversation: a stable id, an append-only transcript, and a
// title derived once when the session is archived.
type Session struct {
	ID        string
	Title     string
	Messages  []Message
	Timestamp time.Time
}

// New creates an empty session with a generated id.
func New() *Session {
	return &Session{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
	}
}

// Append adds a message to the transcript and returns it.
func (s *Session) Append(role Role, content string) Message {
	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.Messages = append(s.Messages, msg)
	return msg
}

// Empty reports whether the session has no messages yet.
func (s *Session) Empty() bool {
	return len(s.Messages) == 0
}

// DeriveTitle computes the archived title from the first user message,
// truncated to TitleMaxLen. Returns a placeholder for sessions with no user
// input. Called exactly once, at archive time; never recomputed after.
func (s *Session) DeriveTitle() string {
	for _, msg := range s.Messages {
		if msg.Role != RoleUser {
			continue
		}
		title := strings.TrimSpace(msg.Content)
		if utf8.RuneCountInString(title) > TitleMaxLen {
			// Truncate on a rune boundary; byte-slicing could split a
			// multibyte character.
			runes := []rune(title)
			title = string(runes[:TitleMaxLen-3]) + "..."
		}
		return title
	}
	return "(untitled)"
}

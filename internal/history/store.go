// ABOUTME: Process-lifetime history store: one active session plus an archive list.
// ABOUTME: The active session and the archive are disjoint; archived sessions are read-only.

package history

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/fathom/internal/session"
)

// ErrSessionNotFound is returned when activating an id that is not archived.
var ErrSessionNotFound = errors.New("session not found")

// Store holds the active session and the archive. Archive growth is
// unbounded; bounding memory is an explicit non-goal.
type Store struct {
	mu       sync.Mutex
	active   *session.Session
	archived []*session.Session
	logger   *slog.Logger
}

// NewStore creates a store with a fresh active session. Pass nil logger for
// the default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		active: session.New(),
		logger: logger.With("component", "history"),
	}
}

// Active returns the current active session. The transcript is mutated only
// by the orchestrator; the store never touches it.
func (s *Store) Active() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Archived returns the archive list, newest first.
func (s *Store) Archived() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, len(s.archived))
	copy(out, s.archived)
	return out
}

// StartNew archives the active session (if it has any messages) and makes a
// fresh one active. Returns the new active session.
func (s *Store) StartNew() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiveActiveLocked()
	s.active = session.New()
	return s.active
}

// Activate moves an archived session back to active, first archiving
// whatever was previously active if it has at least one message. The
// reactivated session resumes with no phase state.
func (s *Store) Activate(id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, sess := range s.archived {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrSessionNotFound
	}

	target := s.archived[idx]
	s.archived = append(s.archived[:idx], s.archived[idx+1:]...)

	s.archiveActiveLocked()
	s.active = target

	s.logger.Debug("session activated", "session_id", id)
	return target, nil
}

// archiveActiveLocked prepends the active session to the archive if it has
// any messages, deriving its title on first archive. Must be called with mu
// held. The active pointer is left for the caller to replace.
func (s *Store) archiveActiveLocked() {
	if s.active == nil || s.active.Empty() {
		return
	}
	if s.active.Title == "" {
		s.active.Title = s.active.DeriveTitle()
	}
	s.archived = append([]*session.Session{s.active}, s.archived...)
	s.logger.Debug("session archived",
		"session_id", s.active.ID,
		"title", s.active.Title,
		"messages", len(s.active.Messages))
	s.active = nil
}

// restore replaces the store contents wholesale. Used by the persistence
// boundary when loading a saved snapshot.
func (s *Store) restore(active *session.Session, archived []*session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active == nil {
		active = session.New()
	}
	s.active = active
	s.archived = archived
}

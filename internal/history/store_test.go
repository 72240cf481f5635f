// ABOUTME: Tests for the in-memory history store.
// ABOUTME: Validates archive/activate invariants, disjointness, and round-trip transcript fidelity.

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fathom/internal/session"
)

func TestStartNew_ArchivesNonEmptyActive(t *testing.T) {
	store := NewStore(nil)
	first := store.Active()
	first.Append(session.RoleUser, "hello")
	first.Append(session.RoleAssistant, "hi")

	fresh := store.StartNew()

	assert.NotEqual(t, first.ID, fresh.ID)
	assert.Same(t, fresh, store.Active())

	archived := store.Archived()
	require.Len(t, archived, 1)
	assert.Equal(t, first.ID, archived[0].ID)
	assert.Equal(t, "hello", archived[0].Title)
}

func TestStartNew_DiscardsEmptyActive(t *testing.T) {
	store := NewStore(nil)
	empty := store.Active()

	store.StartNew()

	assert.Empty(t, store.Archived(), "empty session should not be archived")
	assert.NotEqual(t, empty.ID, store.Active().ID)
}

func TestActivate_RoundTripPreservesTranscript(t *testing.T) {
	store := NewStore(nil)
	orig := store.Active()
	orig.Append(session.RoleUser, "question one")
	orig.Append(session.RoleAssistant, "answer one")
	wantMessages := make([]session.Message, len(orig.Messages))
	copy(wantMessages, orig.Messages)

	store.StartNew()
	reactivated, err := store.Activate(orig.ID)
	require.NoError(t, err)

	assert.Equal(t, orig.ID, reactivated.ID)
	assert.Equal(t, wantMessages, reactivated.Messages)
	assert.Same(t, reactivated, store.Active())
}

func TestActivate_ArchivesPreviousActive(t *testing.T) {
	store := NewStore(nil)
	first := store.Active()
	first.Append(session.RoleUser, "first session")

	store.StartNew()
	second := store.Active()
	second.Append(session.RoleUser, "second session")

	_, err := store.Activate(first.ID)
	require.NoError(t, err)

	// second is now archived, first is active, and the two sets are disjoint
	assert.Equal(t, first.ID, store.Active().ID)
	archived := store.Archived()
	require.Len(t, archived, 1)
	assert.Equal(t, second.ID, archived[0].ID)
	for _, sess := range archived {
		assert.NotEqual(t, store.Active().ID, sess.ID)
	}
}

func TestActivate_EmptyActiveNotArchived(t *testing.T) {
	store := NewStore(nil)
	first := store.Active()
	first.Append(session.RoleUser, "archived one")
	store.StartNew()

	// Current active has no messages; activating must not archive it
	_, err := store.Activate(first.ID)
	require.NoError(t, err)
	assert.Empty(t, store.Archived())
}

func TestActivate_UnknownID(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Activate("no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestArchive_NewestFirst(t *testing.T) {
	store := NewStore(nil)
	store.Active().Append(session.RoleUser, "oldest")
	store.StartNew()
	store.Active().Append(session.RoleUser, "newest")
	store.StartNew()

	archived := store.Archived()
	require.Len(t, archived, 2)
	assert.Equal(t, "newest", archived[0].Title)
	assert.Equal(t, "oldest", archived[1].Title)
}

func TestTitle_DerivedOnceAtArchive(t *testing.T) {
	store := NewStore(nil)
	sess := store.Active()
	sess.Append(session.RoleUser, "original question")
	store.StartNew()

	reactivated, err := store.Activate(sess.ID)
	require.NoError(t, err)
	reactivated.Append(session.RoleUser, "a different question")
	store.StartNew()

	// Title stays what it was on first archive
	archived := store.Archived()
	require.Len(t, archived, 1)
	assert.Equal(t, "original question", archived[0].Title)
}

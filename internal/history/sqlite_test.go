// ABOUTME: Tests for the SQLite history snapshot boundary.
// ABOUTME: Validates snapshot/restore round trips and replacement of prior snapshots.

package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fathom/internal/session"
)

func newTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store := NewStore(nil)
	first := store.Active()
	first.Append(session.RoleUser, "archived question")
	first.Append(session.RoleAssistant, "archived answer")
	store.StartNew()
	active := store.Active()
	active.Append(session.RoleUser, "current question")

	require.NoError(t, db.Snapshot(ctx, store))

	restored := NewStore(nil)
	require.NoError(t, db.Restore(ctx, restored))

	assert.Equal(t, active.ID, restored.Active().ID)
	require.Len(t, restored.Active().Messages, 1)
	assert.Equal(t, "current question", restored.Active().Messages[0].Content)

	archived := restored.Archived()
	require.Len(t, archived, 1)
	assert.Equal(t, first.ID, archived[0].ID)
	assert.Equal(t, "archived question", archived[0].Title)
	require.Len(t, archived[0].Messages, 2)
	assert.Equal(t, session.RoleAssistant, archived[0].Messages[1].Role)
	assert.Equal(t, "archived answer", archived[0].Messages[1].Content)
}

func TestSnapshot_ReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store := NewStore(nil)
	store.Active().Append(session.RoleUser, "version one")
	require.NoError(t, db.Snapshot(ctx, store))

	store.StartNew()
	store.Active().Append(session.RoleUser, "version two")
	require.NoError(t, db.Snapshot(ctx, store))

	restored := NewStore(nil)
	require.NoError(t, db.Restore(ctx, restored))

	require.Len(t, restored.Active().Messages, 1)
	assert.Equal(t, "version two", restored.Active().Messages[0].Content)
	assert.Len(t, restored.Archived(), 1)
}

func TestRestore_EmptyDatabaseLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store := NewStore(nil)
	store.Active().Append(session.RoleUser, "untouched")
	require.NoError(t, db.Restore(ctx, store))

	require.Len(t, store.Active().Messages, 1)
	assert.Equal(t, "untouched", store.Active().Messages[0].Content)
}

func TestArchiveOrder_SurvivesRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store := NewStore(nil)
	store.Active().Append(session.RoleUser, "oldest")
	store.StartNew()
	store.Active().Append(session.RoleUser, "middle")
	store.StartNew()
	store.Active().Append(session.RoleUser, "newest")
	store.StartNew()

	require.NoError(t, db.Snapshot(ctx, store))

	restored := NewStore(nil)
	require.NoError(t, db.Restore(ctx, restored))

	archived := restored.Archived()
	require.Len(t, archived, 3)
	assert.Equal(t, "newest", archived[0].Title)
	assert.Equal(t, "middle", archived[1].Title)
	assert.Equal(t, "oldest", archived[2].Title)
}

// ABOUTME: SQLite persistence boundary for the history store using modernc.org/sqlite.
// ABOUTME: Snapshot writes the full store state; Restore loads it back on startup.

package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/fathom/internal/session"
)

// SQLiteStore persists history snapshots. Persistence is an explicit
// serialize/deserialize boundary: the in-memory Store stays the source of
// truth and is written out wholesale, never incrementally.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the snapshot database at path. Parent
// directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history-db")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history database opened", "path", path)
	return s, nil
}

// createSchema creates the snapshot tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_seq
			ON messages(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Snapshot writes the store's full state, replacing any previous snapshot.
func (s *SQLiteStore) Snapshot(ctx context.Context, store *Store) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}

	if err := s.insertSession(ctx, tx, store.Active(), true, 0); err != nil {
		return err
	}
	for i, sess := range store.Archived() {
		if err := s.insertSession(ctx, tx, sess, false, i); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.logger.Debug("history snapshot written",
		"archived", len(store.Archived()))
	return nil
}

// insertSession writes one session and its messages.
func (s *SQLiteStore) insertSession(ctx context.Context, tx *sql.Tx, sess *session.Session, active bool, position int) error {
	if sess == nil {
		return nil
	}

	isActive := 0
	if active {
		isActive = 1
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO sessions (id, title, is_active, position, created_at) VALUES (?, ?, ?, ?, ?)",
		sess.ID, sess.Title, isActive, position, sess.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}

	for seq, msg := range sess.Messages {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO messages (id, session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			msg.ID, sess.ID, seq, string(msg.Role), msg.Content, msg.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", msg.ID, err)
		}
	}
	return nil
}

// Restore loads the latest snapshot into the store. A database with no
// sessions leaves the store untouched.
func (s *SQLiteStore) Restore(ctx context.Context, store *Store) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, is_active, created_at FROM sessions ORDER BY is_active DESC, position ASC")
	if err != nil {
		return fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var active *session.Session
	var archived []*session.Session
	var found bool

	for rows.Next() {
		var id, title, createdAt string
		var isActive int
		if err := rows.Scan(&id, &title, &isActive, &createdAt); err != nil {
			return fmt.Errorf("scanning session: %w", err)
		}

		sess := &session.Session{ID: id, Title: title}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			sess.Timestamp = ts
		}
		if err := s.loadMessages(ctx, sess); err != nil {
			return err
		}

		found = true
		if isActive == 1 {
			active = sess
		} else {
			archived = append(archived, sess)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating sessions: %w", err)
	}

	if !found {
		return nil
	}

	store.restore(active, archived)
	s.logger.Info("history restored", "archived", len(archived))
	return nil
}

// loadMessages fills a session's transcript in sequence order.
func (s *SQLiteStore) loadMessages(ctx context.Context, sess *session.Session) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq ASC",
		sess.ID)
	if err != nil {
		return fmt.Errorf("querying messages for %s: %w", sess.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, role, content, createdAt string
		if err := rows.Scan(&id, &role, &content, &createdAt); err != nil {
			return fmt.Errorf("scanning message: %w", err)
		}
		msg := session.Message{ID: id, Role: session.Role(role), Content: content}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			msg.Timestamp = ts
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

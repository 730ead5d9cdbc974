// Package sqlite implements relay.SessionStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	relay "github.com/nevindra/relay"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements relay.SessionStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ relay.SessionStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the required tables. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`)
	s.logger.Debug("sqlite: init complete")
	return nil
}

// CreateSession inserts a session row. An existing id is returned as-is.
func (s *Store) CreateSession(ctx context.Context, id, title string) (relay.SessionRecord, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, title, now.Unix())
	if err != nil {
		return relay.SessionRecord{}, fmt.Errorf("create session: %w", err)
	}
	var rec relay.SessionRecord
	var created int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Title, &created)
	if err != nil {
		return relay.SessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0)
	return rec, nil
}

// Sessions lists all sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]relay.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []relay.SessionRecord
	for rows.Next() {
		var rec relay.SessionRecord
		var created int64
		if err := rows.Scan(&rec.ID, &rec.Title, &created); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AppendMessage stores msg with the next sequence number for the session.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg relay.ChatMessage) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, seq, role, content, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?
		 FROM messages WHERE session_id = ?`,
		sessionID, msg.Role, msg.Content, time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	s.logger.Debug("sqlite: message appended",
		"session", sessionID,
		"role", msg.Role,
		"took", time.Since(start))
	return nil
}

// Messages returns up to limit most recent messages in ascending seq
// order. limit <= 0 returns all.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]relay.MessageRecord, error) {
	q := `SELECT session_id, seq, role, content, created_at FROM messages
	      WHERE session_id = ? ORDER BY seq`
	args := []any{sessionID}
	if limit > 0 {
		q = `SELECT session_id, seq, role, content, created_at FROM (
		       SELECT session_id, seq, role, content, created_at FROM messages
		       WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		     ) ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []relay.MessageRecord
	for rows.Next() {
		var rec relay.MessageRecord
		var created int64
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.Role, &rec.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

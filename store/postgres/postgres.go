// Package postgres implements relay.SessionStore using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool; Close here is a
// no-op on the pool itself.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	relay "github.com/nevindra/relay"
)

// Store implements relay.SessionStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ relay.SessionStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the required tables and indexes. Safe to call multiple
// times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS messages_session_idx ON messages(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a session row. An existing id is returned as-is.
func (s *Store) CreateSession(ctx context.Context, id, title string) (relay.SessionRecord, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, title, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		id, title, time.Now().Unix())
	if err != nil {
		return relay.SessionRecord{}, fmt.Errorf("create session: %w", err)
	}
	var rec relay.SessionRecord
	var created int64
	err = s.pool.QueryRow(ctx,
		`SELECT id, title, created_at FROM sessions WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Title, &created)
	if err != nil {
		return relay.SessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0)
	return rec, nil
}

// Sessions lists all sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]relay.SessionRecord, error) {
	rows, err := s.pool.Query(ctx,
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AppendMessage stores msg with the next sequence number for the session.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg relay.ChatMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (session_id, seq, role, content, created_at)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
		 FROM messages WHERE session_id = $1`,
		sessionID, msg.Role, msg.Content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Messages returns up to limit most recent messages in ascending seq
// order. limit <= 0 returns all.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]relay.MessageRecord, error) {
	q := `SELECT session_id, seq, role, content, created_at FROM messages
	      WHERE session_id = $1 ORDER BY seq`
	args := []any{sessionID}
	if limit > 0 {
		q = `SELECT session_id, seq, role, content, created_at FROM (
		       SELECT session_id, seq, role, content, created_at FROM messages
		       WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
		     ) latest ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
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

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

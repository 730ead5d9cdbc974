package relay

import (
	"context"
	"time"
)

// SessionRecord is a persisted chat session.
type SessionRecord struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// MessageRecord is one persisted message within a session, in insertion
// order by Seq.
type MessageRecord struct {
	SessionID string
	Seq       int
	Role      string
	Content   string
	CreatedAt time.Time
}

// SessionStore abstracts chat history persistence. Implementations live
// in store/sqlite and store/postgres.
type SessionStore interface {
	// --- Sessions ---
	CreateSession(ctx context.Context, id, title string) (SessionRecord, error)
	Sessions(ctx context.Context) ([]SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error

	// --- Messages ---
	AppendMessage(ctx context.Context, sessionID string, msg ChatMessage) error
	Messages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}

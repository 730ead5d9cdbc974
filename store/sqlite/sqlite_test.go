package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	relay "github.com/nevindra/relay"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "relay.db"))
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestCreateSessionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.CreateSession(ctx, "s1", "first title")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if rec.ID != "s1" || rec.Title != "first title" {
		t.Fatalf("record = %+v", rec)
	}

	// Re-creating the same id keeps the original row.
	rec, err = s.CreateSession(ctx, "s1", "second title")
	if err != nil {
		t.Fatalf("CreateSession again: %v", err)
	}
	if rec.Title != "first title" {
		t.Fatalf("existing session overwritten: %+v", rec)
	}
}

func TestAppendAssignsSequentialSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateSession(ctx, "s1", "")

	for _, content := range []string{"one", "two", "three"} {
		if err := s.AppendMessage(ctx, "s1", relay.UserMessage(content)); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.Messages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != i+1 {
			t.Fatalf("seq at %d = %d", i, m.Seq)
		}
	}
	if msgs[0].Content != "one" || msgs[2].Content != "three" {
		t.Fatalf("order wrong: %v", msgs)
	}
}

func TestMessagesLimitReturnsMostRecentAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c", "d"} {
		s.AppendMessage(ctx, "s1", relay.UserMessage(content))
	}

	msgs, err := s.Messages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if msgs[0].Content != "c" || msgs[1].Content != "d" {
		t.Fatalf("limited window = %v", msgs)
	}
}

func TestMessagesScopedBySession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AppendMessage(ctx, "s1", relay.UserMessage("mine"))
	s.AppendMessage(ctx, "s2", relay.UserMessage("theirs"))

	msgs, err := s.Messages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "mine" {
		t.Fatalf("cross-session leak: %v", msgs)
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateSession(ctx, "s1", "doomed")
	s.AppendMessage(ctx, "s1", relay.UserMessage("gone soon"))

	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	msgs, err := s.Messages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages survived delete: %v", msgs)
	}
	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("session survived delete: %v", sessions)
	}
}

func TestSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateSession(ctx, "a", "")
	s.CreateSession(ctx, "b", "")

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d", len(sessions))
	}
}

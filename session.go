package relay

import (
	"context"
	"sync"
	"unicode/utf8"
)

const (
	defaultMaxTurns  = 20
	defaultRuneLimit = 32000
)

// SessionOption configures a ChatSession.
type SessionOption func(*ChatSession)

// WithMaxTurns caps the number of non-system messages kept in the window
// (default 20).
func WithMaxTurns(n int) SessionOption {
	return func(s *ChatSession) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithRuneLimit caps the total rune count of the window's message
// contents (default 32000).
func WithRuneLimit(n int) SessionOption {
	return func(s *ChatSession) {
		if n > 0 {
			s.runeLimit = n
		}
	}
}

// WithSessionStore persists every appended message. Trimming affects the
// in-memory window only; the store keeps the full history.
func WithSessionStore(store SessionStore, sessionID string) SessionOption {
	return func(s *ChatSession) {
		s.store = store
		s.sessionID = sessionID
	}
}

// ChatSession maintains a bounded conversation window for repeated broker
// calls. The system message is pinned; when the window exceeds its turn
// or rune budget, the oldest turns are dropped first. An assistant
// message carrying tool calls and the tool-role messages answering it are
// dropped together, so the window never starts with an orphaned tool
// result.
type ChatSession struct {
	maxTurns  int
	runeLimit int
	store     SessionStore
	sessionID string

	mu       sync.Mutex
	system   *ChatMessage
	messages []ChatMessage
}

// NewChatSession creates a session with an optional pinned system prompt
// (empty string means none).
func NewChatSession(systemPrompt string, opts ...SessionOption) *ChatSession {
	s := &ChatSession{
		maxTurns:  defaultMaxTurns,
		runeLimit: defaultRuneLimit,
	}
	if systemPrompt != "" {
		sys := SystemMessage(systemPrompt)
		s.system = &sys
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message to the window, trims it to budget, and persists
// the message if a store is configured. The store error, if any, is
// returned; the in-memory window is updated regardless.
func (s *ChatSession) Append(ctx context.Context, msg ChatMessage) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.trimLocked()
	s.mu.Unlock()

	if s.store != nil {
		return s.store.AppendMessage(ctx, s.sessionID, msg)
	}
	return nil
}

// Messages returns the current window: the pinned system message (if
// any) followed by the retained turns. The slice is a copy.
func (s *ChatSession) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, 0, len(s.messages)+1)
	if s.system != nil {
		out = append(out, *s.system)
	}
	return append(out, s.messages...)
}

// Len returns the number of non-system messages in the window.
func (s *ChatSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Reset clears the window, keeping the pinned system message.
func (s *ChatSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// trimLocked drops the oldest turns until both budgets hold. Caller
// holds s.mu.
func (s *ChatSession) trimLocked() {
	for len(s.messages) > s.maxTurns || s.runesLocked() > s.runeLimit {
		n := s.dropUnit()
		if n == 0 {
			return
		}
		s.messages = s.messages[n:]
	}
}

// dropUnit returns how many leading messages form the next atomic drop:
// an assistant message with tool calls plus its answering tool messages,
// or a single message otherwise. Returns 0 when nothing can be dropped.
func (s *ChatSession) dropUnit() int {
	if len(s.messages) == 0 {
		return 0
	}
	head := s.messages[0]
	if head.Role != "assistant" || len(head.ToolCalls) == 0 {
		return 1
	}
	n := 1
	for n < len(s.messages) && s.messages[n].Role == "tool" {
		n++
	}
	return n
}

// runesLocked sums the rune length of the retained message contents.
func (s *ChatSession) runesLocked() int {
	total := 0
	if s.system != nil {
		total += utf8.RuneCountInString(s.system.Content)
	}
	for _, m := range s.messages {
		total += utf8.RuneCountInString(m.Content)
	}
	return total
}

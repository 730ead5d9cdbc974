package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// --- Gateway stub (shared across broker, solver, react tests) ---

// stubGateway replays a scripted sequence of responses. Each call (of any
// kind) consumes the next entry; a nil error with the zero response is
// returned when the script runs dry so tests fail visibly on content
// assertions rather than hanging.
type stubGateway struct {
	mu        sync.Mutex
	responses []GatewayResponse
	errs      []error // parallel to responses; nil entries mean success
	calls     [][]ChatMessage
}

func (g *stubGateway) next(messages []ChatMessage) (GatewayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	recorded := make([]ChatMessage, len(messages))
	copy(recorded, messages)
	g.calls = append(g.calls, recorded)

	i := len(g.calls) - 1
	if i >= len(g.responses) {
		return GatewayResponse{}, errors.New("stub gateway: script exhausted")
	}
	if i < len(g.errs) && g.errs[i] != nil {
		return GatewayResponse{}, g.errs[i]
	}
	return g.responses[i], nil
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) Complete(_ context.Context, _ string, messages []ChatMessage, _ []ToolDefinition, _ *CompletionConfig) (GatewayResponse, error) {
	return g.next(messages)
}

func (g *stubGateway) CompleteObject(_ context.Context, _ string, messages []ChatMessage, _ json.RawMessage, _ *CompletionConfig) (GatewayResponse, error) {
	return g.next(messages)
}

func (g *stubGateway) CompleteStream(ctx context.Context, _ string, messages []ChatMessage, _ []ToolDefinition, _ *CompletionConfig, ch chan<- string) (GatewayResponse, error) {
	defer close(ch)
	resp, err := g.next(messages)
	if err != nil {
		return GatewayResponse{}, err
	}
	if resp.Content != "" {
		select {
		case ch <- resp.Content:
		case <-ctx.Done():
			return GatewayResponse{}, ctx.Err()
		}
	}
	return resp, nil
}

func (g *stubGateway) AvailableModels(context.Context) ([]string, error) {
	return []string{"stub-model"}, nil
}

func (g *stubGateway) Embed(context.Context, string, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

// --- Tool mocks ---

type mockTool struct{}

func (mockTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "greet", Description: "Say hello"}}
}

func (mockTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "hello from " + name}, nil
}

type errTool struct{}

func (errTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "break", Description: "Always fails"}}
}

func (errTool) Execute(context.Context, string, json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

// echoTool reports the args it was called with, for asserting arg
// plumbing through tool calls.
type echoTool struct{}

func (echoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "echo", Description: "Echo args"}}
}

func (echoTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: string(args)}, nil
}

// --- Subscriber mocks ---

// recordSubscriber stores every event it receives and replies with a
// scripted set of derived events.
type recordSubscriber struct {
	mu      sync.Mutex
	events  []Event
	derived []Event
	err     error
}

func (s *recordSubscriber) ReceiveEvent(_ context.Context, ev Event) ([]Event, error) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.derived, nil
}

func (s *recordSubscriber) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// blockSubscriber holds every invocation until released.
type blockSubscriber struct {
	release chan struct{}
}

func (s *blockSubscriber) ReceiveEvent(context.Context, Event) ([]Event, error) {
	<-s.release
	return nil, nil
}

// panicSubscriber panics on every event.
type panicSubscriber struct{}

func (panicSubscriber) ReceiveEvent(context.Context, Event) ([]Event, error) {
	panic("subscriber exploded")
}

// mustEvent builds an event or fails the compile-time-obvious way.
func mustEvent(kind EventKind, source string, payload any) Event {
	ev, err := NewEvent(kind, source, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

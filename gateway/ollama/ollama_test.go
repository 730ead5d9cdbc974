package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	relay "github.com/nevindra/relay"
)

func TestCompleteWireRequestAndResponse(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message:         wireMessage{Role: "assistant", Content: "hello"},
			Done:            true,
			PromptEvalCount: 3,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	messages := []relay.ChatMessage{
		relay.SystemMessage("be brief"),
		relay.UserMessage("hi"),
		relay.ToolResultMessage("greet", "hello from greet"),
	}
	tools := []relay.ToolDefinition{{Name: "greet", Description: "Say hello"}}

	resp, err := g.Complete(context.Background(), "qwen3", messages, tools, relay.DefaultCompletionConfig())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 3 || resp.Usage.OutputTokens != 5 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	if got.Model != "qwen3" {
		t.Fatalf("model = %q", got.Model)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("messages = %d", len(got.Messages))
	}
	if got.Messages[2].Role != "tool" || got.Messages[2].ToolName != "greet" {
		t.Fatalf("tool result not matched by name: %+v", got.Messages[2])
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "greet" {
		t.Fatalf("tools = %+v", got.Tools)
	}
	if got.Options == nil || got.Options.NumPredict == nil || *got.Options.NumPredict != 16384 {
		t.Fatalf("max tokens not mapped to num_predict: %+v", got.Options)
	}
}

func TestCompleteParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Message: wireMessage{
				Role: "assistant",
				ToolCalls: []wireToolCall{{
					Function: wireToolCallFunction{Name: "greet", Arguments: json.RawMessage(`{"who":"you"}`)},
				}},
			},
			Done: true,
		})
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	resp, err := g.Complete(context.Background(), "m", []relay.ChatMessage{relay.UserMessage("hi")}, nil, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	// Ollama carries no call ids; the name doubles as the id.
	if tc.ID != "greet" || tc.Name != "greet" {
		t.Fatalf("tool call = %+v", tc)
	}
	if string(tc.Args) != `{"who":"you"}` {
		t.Fatalf("args = %s", tc.Args)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Error: "something broke"})
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	var apiErr *relay.ErrAPI
	if _, err := g.Complete(context.Background(), "m", nil, nil, nil); !errors.As(err, &apiErr) {
		t.Fatalf("expected ErrAPI, got %v", err)
	}
}

func TestHTTPErrorCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	_, err := g.Complete(context.Background(), "m", nil, nil, nil)
	var httpErr *relay.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected ErrHTTP, got %v", err)
	}
	if httpErr.Status != 429 || httpErr.RetryAfter != 7*time.Second {
		t.Fatalf("http error = %+v", httpErr)
	}
}

func TestMissingModelMapsToNotSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	if _, err := g.Complete(context.Background(), "nope", nil, nil, nil); !errors.Is(err, relay.ErrModelNotSupported) {
		t.Fatalf("expected ErrModelNotSupported, got %v", err)
	}
}

func TestCompleteObject(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(chatResponse{
			Message: wireMessage{Role: "assistant", Content: `{"answer":42}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	schema := json.RawMessage(`{"type":"object"}`)
	resp, err := g.CompleteObject(context.Background(), "m", []relay.ChatMessage{relay.UserMessage("hi")}, schema, nil)
	if err != nil {
		t.Fatalf("CompleteObject: %v", err)
	}
	if string(resp.Object) != `{"answer":42}` {
		t.Fatalf("object = %s", resp.Object)
	}
	if string(got.Format) != string(schema) {
		t.Fatalf("schema not passed through format: %s", got.Format)
	}
}

func TestCompleteObjectInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Message: wireMessage{Role: "assistant", Content: "not json at all"},
			Done:    true,
		})
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	if _, err := g.CompleteObject(context.Background(), "m", nil, nil, nil); !errors.Is(err, relay.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestCompleteStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"Hel"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":"lo"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":2,"eval_count":4}` + "\n"))
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	ch := make(chan string, 8)
	resp, err := g.CompleteStream(context.Background(), "m", []relay.ChatMessage{relay.UserMessage("hi")}, nil, nil, ch)
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}

	var chunks []string
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	if len(chunks) != 2 || chunks[0] != "Hel" || chunks[1] != "lo" {
		t.Fatalf("chunks = %v", chunks)
	}
	if resp.Content != "Hello" {
		t.Fatalf("accumulated content = %q", resp.Content)
	}
	if resp.Usage.OutputTokens != 4 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestAvailableModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"qwen3"},{"name":"llama3"}]}`))
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	models, err := g.AvailableModels(context.Background())
	if err != nil {
		t.Fatalf("AvailableModels: %v", err)
	}
	if len(models) != 2 || models[0] != "qwen3" || models[1] != "llama3" {
		t.Fatalf("models = %v", models)
	}
}

func TestEmbedUsesDefaultModel(t *testing.T) {
	var got embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
	}))
	defer srv.Close()

	g := New(WithHost(srv.URL))
	vec, err := g.Embed(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got.Model != "nomic-embed-text" {
		t.Fatalf("model = %q", got.Model)
	}
	if len(got.Input) != 1 || got.Input[0] != "hello" {
		t.Fatalf("input = %v", got.Input)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("embedding = %v", vec)
	}
}

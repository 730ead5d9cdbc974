package relay

import (
	"context"
	"encoding/json"
)

// Gateway abstracts a provider-specific LLM client. The broker is the
// only core component that talks to a gateway; implementations live in
// subpackages (gateway/ollama).
//
// A gateway must be safe for concurrent use if the broker built on it is
// shared across tasks.
type Gateway interface {
	// Complete sends a blocking chat completion. When tools is non-empty,
	// the response may contain ToolCalls.
	Complete(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition, cfg *CompletionConfig) (GatewayResponse, error)
	// CompleteObject requests a structured completion conforming to the
	// JSON schema; the response's Object field carries the result.
	CompleteObject(ctx context.Context, model string, messages []ChatMessage, schema json.RawMessage, cfg *CompletionConfig) (GatewayResponse, error)
	// CompleteStream streams text chunks into ch, then returns the final
	// accumulated response including any tool calls. Implementations close
	// ch when the stream ends, including on error.
	CompleteStream(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition, cfg *CompletionConfig, ch chan<- string) (GatewayResponse, error)
	// AvailableModels lists the model identifiers the gateway serves.
	AvailableModels(ctx context.Context) ([]string, error)
	// Embed returns the embedding vector for text. An empty model selects
	// the gateway's default embedding model.
	Embed(ctx context.Context, text, model string) ([]float32, error)
	// Name returns the gateway name (e.g. "ollama").
	Name() string
}

package relay

import "encoding/json"

// --- LLM protocol types ---

type ChatMessage struct {
	Role       string      `json:"role"` // "system", "user", "assistant", "tool"
	Content    string      `json:"content"`
	Images     []ImageData `json:"images,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

type ImageData struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

type ToolCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// GatewayResponse is the outcome of a completed gateway call. Exactly one
// of Content or Object is typically populated; ToolCalls may accompany
// either or appear alone.
type GatewayResponse struct {
	Content   string          `json:"content,omitempty"`
	Object    json.RawMessage `json:"object,omitempty"`
	ToolCalls []ToolCall      `json:"tool_calls,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Usage     Usage           `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ResponseFormat values accepted by CompletionConfig.
const (
	FormatJSONObject = "json_object"
	FormatText       = "text"
)

// ReasoningEffort values accepted by CompletionConfig.
const (
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
)

// CompletionConfig carries generation options for a gateway call.
// Nil pointer fields are omitted from the request.
type CompletionConfig struct {
	Temperature     float64         `json:"temperature"`
	NumCtx          int             `json:"num_ctx"`
	MaxTokens       int             `json:"max_tokens"`
	NumPredict      *int            `json:"num_predict,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	TopK            *int            `json:"top_k,omitempty"`
	ResponseFormat  string          `json:"response_format,omitempty"` // FormatJSONObject or FormatText
	Schema          json.RawMessage `json:"schema,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"` // EffortLow/Medium/High
}

// DefaultCompletionConfig returns a config with the standard defaults.
func DefaultCompletionConfig() *CompletionConfig {
	return &CompletionConfig{
		Temperature: 1.0,
		NumCtx:      32768,
		MaxTokens:   16384,
	}
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

package ollama

import (
	"encoding/json"

	relay "github.com/nevindra/relay"
)

// buildRequest converts relay messages, tools, and config into the wire
// request shape. cfg may be nil.
func buildRequest(model string, messages []relay.ChatMessage, tools []relay.ToolDefinition, cfg *relay.CompletionConfig) chatRequest {
	req := chatRequest{
		Model:    model,
		Messages: make([]wireMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, toWireMessage(m))
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if cfg != nil {
		req.Options = &wireOptions{
			Temperature: cfg.Temperature,
			NumCtx:      cfg.NumCtx,
			NumPredict:  cfg.NumPredict,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
		}
		if cfg.NumPredict == nil && cfg.MaxTokens > 0 {
			n := cfg.MaxTokens
			req.Options.NumPredict = &n
		}
		if cfg.ResponseFormat == relay.FormatJSONObject {
			if len(cfg.Schema) > 0 {
				req.Format = cfg.Schema
			} else {
				req.Format = json.RawMessage(`"json"`)
			}
		}
	}
	return req
}

func toWireMessage(m relay.ChatMessage) wireMessage {
	w := wireMessage{
		Role:    m.Role,
		Content: m.Content,
	}
	for _, img := range m.Images {
		w.Images = append(w.Images, img.Base64)
	}
	for _, tc := range m.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, wireToolCall{
			Function: wireToolCallFunction{Name: tc.Name, Arguments: tc.Args},
		})
	}
	// Ollama has no tool-call ids; results are matched by tool name, which
	// parseResponse stores as the call id.
	if m.Role == "tool" && m.ToolCallID != "" {
		w.ToolName = m.ToolCallID
	}
	return w
}

// parseResponse converts a wire response into a relay GatewayResponse.
func parseResponse(resp chatResponse) relay.GatewayResponse {
	out := relay.GatewayResponse{
		Content:  resp.Message.Content,
		Thinking: resp.Message.Thinking,
		Usage: relay.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}
	for _, tc := range resp.Message.ToolCalls {
		args := tc.Function.Arguments
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, relay.ToolCall{
			ID:   tc.Function.Name,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}

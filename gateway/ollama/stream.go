package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	relay "github.com/nevindra/relay"
)

// streamNDJSON reads Ollama's newline-delimited JSON stream from body,
// sends content deltas to ch, and returns the fully accumulated response
// (content + tool calls + usage from the final chunk).
//
// The channel is closed when streaming completes. The context cancels
// channel sends if the consumer is no longer interested.
func streamNDJSON(ctx context.Context, body io.Reader, ch chan<- string) (relay.GatewayResponse, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Large chunks can exceed the default 64K token buffer.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var content strings.Builder
	var out relay.GatewayResponse

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if chunk.Error != "" {
			return relay.GatewayResponse{}, &relay.ErrAPI{Provider: "ollama", Message: chunk.Error}
		}

		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			select {
			case ch <- chunk.Message.Content:
			case <-ctx.Done():
				return relay.GatewayResponse{}, ctx.Err()
			}
		}
		if chunk.Message.Thinking != "" {
			out.Thinking += chunk.Message.Thinking
		}
		for _, tc := range chunk.Message.ToolCalls {
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
		if chunk.Done {
			out.Usage = relay.Usage{
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return relay.GatewayResponse{}, &relay.ErrGateway{Provider: "ollama", Message: "stream read: " + err.Error()}
	}

	out.Content = content.String()
	return out, nil
}

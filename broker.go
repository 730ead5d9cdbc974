package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBrokerLogger sets a structured logger. If not set, no output.
func WithBrokerLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = l }
}

// WithBrokerTracer sets the tracer (default NopTracer).
func WithBrokerTracer(t Tracer) BrokerOption {
	return func(b *Broker) { b.tracer = t }
}

// Broker mediates between callers and a Gateway, resolving tool calls
// recursively: when a completion comes back with tool calls, the broker
// executes each tool, appends the results as tool-role messages, and asks
// the gateway again, until a response carries no tool calls.
//
// A Broker is stateless between calls; each call builds its own message
// list, so one Broker can serve concurrent tasks.
type Broker struct {
	gateway Gateway
	model   string
	logger  *slog.Logger
	tracer  Tracer
}

// NewBroker creates a broker over the gateway using model for all calls.
func NewBroker(gateway Gateway, model string, opts ...BrokerOption) *Broker {
	b := &Broker{
		gateway: gateway,
		model:   model,
		logger:  nopLogger,
		tracer:  NopTracer{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Model returns the model the broker sends completions to.
func (b *Broker) Model() string {
	return b.model
}

// Generate runs a completion, resolving any tool calls until the gateway
// returns plain text. A nil cfg uses DefaultCompletionConfig.
func (b *Broker) Generate(ctx context.Context, messages []ChatMessage, tools []Tool, cfg *CompletionConfig) (string, error) {
	if cfg == nil {
		cfg = DefaultCompletionConfig()
	}
	ctx, span := b.tracer.Start(ctx, "broker.generate",
		StringAttr("model", b.model),
		IntAttr("tools", len(tools)))
	defer span.End()

	content, err := b.generate(ctx, span, messages, tools, cfg)
	if err != nil {
		span.Error(err)
		return "", err
	}
	return content, nil
}

func (b *Broker) generate(ctx context.Context, span Span, messages []ChatMessage, tools []Tool, cfg *CompletionConfig) (string, error) {
	resp, err := b.complete(ctx, span, messages, tools, cfg)
	if err != nil {
		return "", err
	}
	if len(resp.ToolCalls) == 0 {
		return resp.Content, nil
	}
	next := b.resolveToolCalls(ctx, span, messages, tools, resp)
	return b.generate(ctx, span, next, tools, cfg)
}

// GenerateObject runs a structured completion against the JSON schema and
// returns the raw object. A response without an object is ErrInvalidResponse.
func (b *Broker) GenerateObject(ctx context.Context, messages []ChatMessage, schema json.RawMessage, cfg *CompletionConfig) (json.RawMessage, error) {
	if cfg == nil {
		cfg = DefaultCompletionConfig()
	}
	ctx, span := b.tracer.Start(ctx, "broker.generate_object",
		StringAttr("model", b.model))
	defer span.End()

	start := time.Now()
	span.Event("llm.call", IntAttr("messages", len(messages)))
	resp, err := b.gateway.CompleteObject(ctx, b.model, messages, schema, cfg)
	b.recordResponse(span, resp, start, err)
	if err != nil {
		span.Error(err)
		return nil, err
	}
	if len(resp.Object) == 0 {
		span.Error(ErrInvalidResponse)
		return nil, ErrInvalidResponse
	}
	return resp.Object, nil
}

// GenerateStream streams the completion's text chunks into ch, resolving
// tool calls between rounds; chunks of every recursive round follow the
// initial round's on the same channel. The broker closes ch when the
// final round ends, including on error.
func (b *Broker) GenerateStream(ctx context.Context, messages []ChatMessage, tools []Tool, cfg *CompletionConfig, ch chan<- string) error {
	if cfg == nil {
		cfg = DefaultCompletionConfig()
	}
	ctx, span := b.tracer.Start(ctx, "broker.generate_stream",
		StringAttr("model", b.model),
		IntAttr("tools", len(tools)))
	defer span.End()
	defer close(ch)

	if err := b.streamOnce(ctx, span, messages, tools, cfg, ch); err != nil {
		span.Error(err)
		return err
	}
	return nil
}

func (b *Broker) streamOnce(ctx context.Context, span Span, messages []ChatMessage, tools []Tool, cfg *CompletionConfig, ch chan<- string) error {
	inner := make(chan string, 16)
	type streamEnd struct {
		resp GatewayResponse
		err  error
	}
	endc := make(chan streamEnd, 1)

	start := time.Now()
	span.Event("llm.call", IntAttr("messages", len(messages)))
	go func() {
		resp, err := b.gateway.CompleteStream(ctx, b.model, messages, definitions(tools), cfg, inner)
		endc <- streamEnd{resp: resp, err: err}
	}()

	// The gateway closes inner when the stream ends, so this loop always
	// terminates even when the gateway errors mid-stream.
	for chunk := range inner {
		select {
		case ch <- chunk:
		case <-ctx.Done():
			// Keep draining inner so the gateway goroutine can finish.
		}
	}

	end := <-endc
	b.recordResponse(span, end.resp, start, end.err)
	if end.err != nil {
		return end.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(end.resp.ToolCalls) == 0 {
		return nil
	}
	next := b.resolveToolCalls(ctx, span, messages, tools, end.resp)
	return b.streamOnce(ctx, span, next, tools, cfg, ch)
}

// complete runs one blocking gateway round with call/response trace events.
func (b *Broker) complete(ctx context.Context, span Span, messages []ChatMessage, tools []Tool, cfg *CompletionConfig) (GatewayResponse, error) {
	start := time.Now()
	span.Event("llm.call", IntAttr("messages", len(messages)))
	resp, err := b.gateway.Complete(ctx, b.model, messages, definitions(tools), cfg)
	b.recordResponse(span, resp, start, err)
	return resp, err
}

func (b *Broker) recordResponse(span Span, resp GatewayResponse, start time.Time, err error) {
	attrs := []SpanAttr{
		IntAttr("duration_ms", int(time.Since(start).Milliseconds())),
		IntAttr("tool_calls", len(resp.ToolCalls)),
	}
	if err != nil {
		attrs = append(attrs, StringAttr("error", err.Error()))
	}
	span.Event("llm.response", attrs...)
}

// resolveToolCalls executes the response's tool calls and returns a fresh
// message list extended with the assistant turn and one tool-role message
// per successful call. Unknown tools and failed executions are logged and
// skipped; the conversation continues without their results.
func (b *Broker) resolveToolCalls(ctx context.Context, span Span, messages []ChatMessage, tools []Tool, resp GatewayResponse) []ChatMessage {
	next := make([]ChatMessage, 0, len(messages)+1+len(resp.ToolCalls))
	next = append(next, messages...)
	next = append(next, ChatMessage{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	for _, tc := range resp.ToolCalls {
		tool, ok := findTool(tools, tc.Name)
		if !ok {
			b.logger.Warn("relay: unknown tool requested, skipping",
				"tool", tc.Name)
			continue
		}
		start := time.Now()
		result, err := tool.Execute(ctx, tc.Name, tc.Args)
		if err == nil && result.Error != "" {
			err = &ErrTool{Tool: tc.Name, Message: result.Error}
		}
		attrs := []SpanAttr{
			StringAttr("tool", tc.Name),
			StringAttr("args", string(tc.Args)),
			IntAttr("duration_ms", int(time.Since(start).Milliseconds())),
		}
		if err != nil {
			attrs = append(attrs, StringAttr("error", err.Error()))
		}
		span.Event("tool.call", attrs...)
		if err != nil {
			b.logger.Warn("relay: tool execution failed, skipping result",
				"tool", tc.Name,
				"error", err)
			continue
		}
		next = append(next, ToolResultMessage(tc.ID, result.Content))
	}
	return next
}

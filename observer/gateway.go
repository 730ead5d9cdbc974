package observer

import (
	"context"
	"encoding/json"
	"time"

	relay "github.com/nevindra/relay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedGateway wraps a relay.Gateway with OTEL instrumentation.
type ObservedGateway struct {
	inner relay.Gateway
	inst  *Instruments
}

// WrapGateway returns an instrumented gateway that emits traces, metrics,
// and logs for every call.
func WrapGateway(inner relay.Gateway, inst *Instruments) *ObservedGateway {
	return &ObservedGateway{inner: inner, inst: inst}
}

func (o *ObservedGateway) Name() string { return o.inner.Name() }

func (o *ObservedGateway) Complete(ctx context.Context, model string, messages []relay.ChatMessage, tools []relay.ToolDefinition, cfg *relay.CompletionConfig) (relay.GatewayResponse, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(
			AttrLLMModel.String(model),
			AttrLLMGateway.String(o.inner.Name()),
		),
	}
	spanName := "llm.complete"
	method := "complete"
	if len(tools) > 0 {
		toolNames := make([]string, len(tools))
		for i, t := range tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(tools)),
			AttrToolNames.StringSlice(toolNames),
		))
		spanName = "llm.complete_with_tools"
		method = "complete_with_tools"
	}

	ctx, span := o.inst.Tracer.Start(ctx, spanName, spanAttrs...)
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Complete(ctx, model, messages, tools, cfg)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, span, model, method, status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedGateway) CompleteObject(ctx context.Context, model string, messages []relay.ChatMessage, schema json.RawMessage, cfg *relay.CompletionConfig) (relay.GatewayResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.complete_object", trace.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.CompleteObject(ctx, model, messages, schema, cfg)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, span, model, "complete_object", status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedGateway) CompleteStream(ctx context.Context, model string, messages []relay.ChatMessage, tools []relay.ToolDefinition, cfg *relay.CompletionConfig, ch chan<- string) (relay.GatewayResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.complete_stream", trace.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Wrap the channel to count chunks. Buffer generously so the inner
	// gateway never blocks on send, preventing a deadlock where the
	// goroutine can't drain wrappedCh because ch is full and nobody reads
	// ch until CompleteStream returns.
	bufSize := max(cap(ch), 64)
	wrappedCh := make(chan string, bufSize)
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for chunk := range wrappedCh {
			chunks++
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	resp, err := o.inner.CompleteStream(ctx, model, messages, tools, cfg, wrappedCh)
	<-done // wait for goroutine to finish before reading chunks

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrStreamChunks.Int(chunks))
	o.record(ctx, span, model, "complete_stream", status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedGateway) AvailableModels(ctx context.Context) ([]string, error) {
	return o.inner.AvailableModels(ctx)
}

func (o *ObservedGateway) Embed(ctx context.Context, text, model string) ([]float32, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.embed", trace.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	vec, err := o.inner.Embed(ctx, text, model)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrEmbedDimensions.Int(len(vec)))

	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.EmbedDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
	))
	return vec, err
}

func (o *ObservedGateway) record(ctx context.Context, span trace.Span, model, method, status string, durationMs float64, usage relay.Usage) {
	attrs := metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
		AttrLLMMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
	)

	o.inst.TokenUsage.Add(ctx, int64(usage.InputTokens), metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(usage.OutputTokens), metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
		attribute.String("direction", "output"),
	))
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMGateway.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", model),
		otellog.String("llm.gateway", o.inner.Name()),
		otellog.String("llm.method", method),
		otellog.Int("llm.tokens.input", usage.InputTokens),
		otellog.Int("llm.tokens.output", usage.OutputTokens),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

var _ relay.Gateway = (*ObservedGateway)(nil)

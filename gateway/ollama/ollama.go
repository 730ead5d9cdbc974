// Package ollama implements the relay Gateway against the Ollama native
// API: /api/chat for completions and streaming, /api/tags for model
// discovery, and /api/embed for embeddings.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	relay "github.com/nevindra/relay"
)

const (
	defaultHost       = "http://localhost:11434"
	defaultEmbedModel = "nomic-embed-text"
)

// Gateway talks to an Ollama server. The zero value is not usable; use New.
type Gateway struct {
	host       string
	embedModel string
	client     *http.Client
	logger     *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHost overrides the server address (default: OLLAMA_HOST environment
// variable, falling back to http://localhost:11434).
func WithHost(host string) Option {
	return func(g *Gateway) { g.host = strings.TrimRight(host, "/") }
}

// WithEmbedModel sets the model used when Embed is called with an empty
// model (default "nomic-embed-text").
func WithEmbedModel(model string) Option {
	return func(g *Gateway) { g.embedModel = model }
}

// WithHTTPClient overrides the HTTP client (default http.DefaultClient
// semantics with no timeout; pass one with a Timeout for production use).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithLogger sets a structured logger for request-level diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates an Ollama gateway. The host resolves from the OLLAMA_HOST
// environment variable when no WithHost option is given.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		host:       defaultHost,
		embedModel: defaultEmbedModel,
		client:     &http.Client{},
		logger:     slog.New(discardHandler{}),
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		g.host = strings.TrimRight(host, "/")
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "ollama".
func (g *Gateway) Name() string { return "ollama" }

// Complete implements relay.Gateway.
func (g *Gateway) Complete(ctx context.Context, model string, messages []relay.ChatMessage, tools []relay.ToolDefinition, cfg *relay.CompletionConfig) (relay.GatewayResponse, error) {
	req := buildRequest(model, messages, tools, cfg)
	var resp chatResponse
	if err := g.post(ctx, "/api/chat", req, &resp); err != nil {
		return relay.GatewayResponse{}, err
	}
	return parseResponse(resp), nil
}

// CompleteObject implements relay.Gateway. The schema is passed through
// Ollama's format field; an empty schema requests plain JSON mode.
func (g *Gateway) CompleteObject(ctx context.Context, model string, messages []relay.ChatMessage, schema json.RawMessage, cfg *relay.CompletionConfig) (relay.GatewayResponse, error) {
	req := buildRequest(model, messages, nil, cfg)
	if len(schema) > 0 {
		req.Format = schema
	} else {
		req.Format = json.RawMessage(`"json"`)
	}
	var resp chatResponse
	if err := g.post(ctx, "/api/chat", req, &resp); err != nil {
		return relay.GatewayResponse{}, err
	}
	out := parseResponse(resp)
	content := strings.TrimSpace(out.Content)
	if content == "" || !json.Valid([]byte(content)) {
		return out, fmt.Errorf("%w: structured response is not valid JSON", relay.ErrInvalidResponse)
	}
	out.Object = json.RawMessage(content)
	return out, nil
}

// CompleteStream implements relay.Gateway. Chunks are read from Ollama's
// NDJSON stream; ch is closed before returning, including on error.
func (g *Gateway) CompleteStream(ctx context.Context, model string, messages []relay.ChatMessage, tools []relay.ToolDefinition, cfg *relay.CompletionConfig, ch chan<- string) (relay.GatewayResponse, error) {
	req := buildRequest(model, messages, tools, cfg)
	req.Stream = true

	resp, err := g.send(ctx, "/api/chat", req)
	if err != nil {
		close(ch)
		return relay.GatewayResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		close(ch)
		return relay.GatewayResponse{}, g.httpErr(resp)
	}
	return streamNDJSON(ctx, resp.Body, ch)
}

// AvailableModels implements relay.Gateway via /api/tags.
func (g *Gateway) AvailableModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.host+"/api/tags", nil)
	if err != nil {
		return nil, &relay.ErrGateway{Provider: "ollama", Message: fmt.Sprintf("create request: %v", err)}
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &relay.ErrGateway{Provider: "ollama", Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, g.httpErr(resp)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &relay.ErrGateway{Provider: "ollama", Message: fmt.Sprintf("decode response: %v", err)}
	}
	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Embed implements relay.Gateway via /api/embed. An empty model uses the
// gateway's default embedding model.
func (g *Gateway) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = g.embedModel
	}
	var resp embedResponse
	if err := g.post(ctx, "/api/embed", embedRequest{Model: model, Input: []string{text}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", relay.ErrInvalidResponse)
	}
	return resp.Embeddings[0], nil
}

// post sends a JSON request and decodes a JSON response into out.
func (g *Gateway) post(ctx context.Context, path string, body, out any) error {
	resp, err := g.send(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return g.httpErr(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &relay.ErrGateway{Provider: "ollama", Message: fmt.Sprintf("decode response: %v", err)}
	}
	if cr, ok := out.(*chatResponse); ok && cr.Error != "" {
		return &relay.ErrAPI{Provider: "ollama", Message: cr.Error}
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &relay.ErrSerialization{Message: fmt.Sprintf("marshal request: %v", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &relay.ErrGateway{Provider: "ollama", Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	g.logger.Debug("ollama request", "path", path)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &relay.ErrGateway{Provider: "ollama", Message: fmt.Sprintf("request failed: %v", err)}
	}
	return resp, nil
}

// httpErr reads the response body and returns an ErrHTTP for the retry
// middleware. A 404 naming a missing model maps to ErrModelNotSupported.
func (g *Gateway) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound && strings.Contains(string(body), "model") {
		return fmt.Errorf("%w: %s", relay.ErrModelNotSupported, strings.TrimSpace(string(body)))
	}
	return &relay.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: relay.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// discardHandler is a no-op slog handler used when no logger is supplied.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Compile-time interface check.
var _ relay.Gateway = (*Gateway)(nil)

package relay

import (
	"context"
	"encoding/json"
)

// Tool defines a callable capability exposed to the LLM, with one or more
// tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. Content is the
// JSON-serializable result; Error is set for tool-level failures.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// FunctionDescriptor is the wire form of a tool definition as sent to
// gateways: {"type":"function","function":{...}}.
type FunctionDescriptor struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

// Descriptor wraps a ToolDefinition in its wire form.
func Descriptor(def ToolDefinition) FunctionDescriptor {
	return FunctionDescriptor{Type: "function", Function: def}
}

// ToolRegistry holds registered tools and dispatches execution by name.
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{}
	for _, t := range tools {
		r.Add(t)
	}
	return r
}

// Add registers a tool.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// Tools returns the registered tools in registration order.
func (r *ToolRegistry) Tools() []Tool {
	return r.tools
}

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name. An unknown name is a tool-level
// error, not a Go error.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t.Execute(ctx, name, args)
			}
		}
	}
	return ToolResult{Error: "unknown tool: " + name}, nil
}

// findTool locates the tool providing name among tools.
func findTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t, true
			}
		}
	}
	return nil, false
}

// definitions flattens the definitions of a tool list.
func definitions(tools []Tool) []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

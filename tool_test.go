package relay

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRegistryExecuteDispatchesByName(t *testing.T) {
	r := NewToolRegistry(mockTool{}, echoTool{})

	result, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != `{"x":1}` {
		t.Fatalf("content = %q", result.Content)
	}
}

func TestRegistryUnknownToolIsToolLevelError(t *testing.T) {
	r := NewToolRegistry(mockTool{})

	result, err := r.Execute(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("unknown tool must not be a Go error: %v", err)
	}
	if !strings.Contains(result.Error, "unknown tool: missing") {
		t.Fatalf("result.Error = %q", result.Error)
	}
}

func TestRegistryAllDefinitions(t *testing.T) {
	r := NewToolRegistry(mockTool{}, errTool{})

	defs := r.AllDefinitions()
	if len(defs) != 2 {
		t.Fatalf("definitions = %d", len(defs))
	}
	if defs[0].Name != "greet" || defs[1].Name != "break" {
		t.Fatalf("definition order: %v", defs)
	}
}

func TestDescriptorWireShape(t *testing.T) {
	d := Descriptor(ToolDefinition{Name: "greet", Description: "Say hello"})

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.Type != "function" || wire.Function.Name != "greet" {
		t.Fatalf("wire form = %s", raw)
	}
}

func TestFindTool(t *testing.T) {
	tools := []Tool{mockTool{}, errTool{}}

	if tool, ok := findTool(tools, "break"); !ok || tool == nil {
		t.Fatal("break not found")
	}
	if _, ok := findTool(tools, "nope"); ok {
		t.Fatal("found a tool that does not exist")
	}
	if got := definitions(tools); len(got) != 2 {
		t.Fatalf("definitions = %d", len(got))
	}
}

package mcpserver

import (
	"encoding/json"
	"testing"

	"github.com/corvid-labs/skillkernel/internal/dispatch"
	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/feedback"
	"github.com/corvid-labs/skillkernel/internal/manifest"
	"github.com/corvid-labs/skillkernel/internal/registry"
)

func TestCommandToMCPTool(t *testing.T) {
	cmd := manifest.Command{
		Name:        "status",
		Description: "show working tree status",
		Parameters: []manifest.ParamSpec{
			{Name: "verbose", Type: "boolean", Required: false},
			{Name: "path", Type: "string", Required: true},
		},
	}

	tool := commandToMCPTool("git", cmd)
	if tool.Name != "git.status" {
		t.Fatalf("expected name git.status, got %s", tool.Name)
	}

	schemaBytes, err := json.Marshal(tool.InputSchema)
	if err != nil {
		t.Fatalf("marshal InputSchema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) != 2 {
		t.Fatalf("expected 2 properties, got %+v", schema["properties"])
	}
	required, ok := schema["required"].([]any)
	if !ok || len(required) != 1 || required[0] != "path" {
		t.Fatalf("expected required=[path], got %v", schema["required"])
	}
}

func TestCommandToMCPToolNoParams(t *testing.T) {
	tool := commandToMCPTool("git", manifest.Command{Name: "status"})

	schemaBytes, _ := json.Marshal(tool.InputSchema)
	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}
	if _, ok := schema["required"]; ok {
		t.Error("schema should not have required field when no params are required")
	}
}

func newTestRegistry(t *testing.T) (*registry.Registry, *dispatch.Dispatch) {
	t.Helper()
	bus := events.NewBus(16)
	t.Cleanup(func() { bus.Close() })

	reg := registry.New(nil, bus, 0)

	feed, err := feedback.Open(t.TempDir()+"/feedback.json", feedback.DefaultDecayRate, feedback.DefaultFloor)
	if err != nil {
		t.Fatalf("feedback.Open: %v", err)
	}
	disp := dispatch.New(reg, nil, feed, bus)
	return reg, disp
}

func TestNewBuildsServerWithoutSkills(t *testing.T) {
	reg, disp := newTestRegistry(t)
	server := New(reg, disp, "")
	if server == nil {
		t.Fatal("New returned nil")
	}
}

func TestNewBuildsServerWithFilter(t *testing.T) {
	reg, disp := newTestRegistry(t)
	server := New(reg, disp, "git")
	if server == nil {
		t.Fatal("New with filter returned nil")
	}
}

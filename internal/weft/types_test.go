package weft

import (
	"strings"
	"testing"
)

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunStatusQueued, RunStatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestEventTypeTerminal(t *testing.T) {
	if !EventRunCompleted.Terminal() || !EventRunFailed.Terminal() || !EventRunCancelled.Terminal() {
		t.Error("run.* closing events should be terminal")
	}
	if EventStepCompleted.Terminal() || EventRunStarted.Terminal() {
		t.Error("non-closing events should not be terminal")
	}
}

func TestNormalizedDefaults(t *testing.T) {
	doc := GraphDocument{}.Normalized()
	if doc.SchemaVersion != SchemaVersionV1 {
		t.Errorf("schema_version: got %q", doc.SchemaVersion)
	}
	if doc.Nodes == nil || doc.Edges == nil {
		t.Error("nodes and edges should be non-nil after normalization")
	}
	if doc.Viewport == nil || doc.Viewport.Zoom != 1 {
		t.Errorf("viewport default: got %+v", doc.Viewport)
	}
	// Idempotent.
	again := doc.Normalized()
	if again.SchemaVersion != doc.SchemaVersion || again.Viewport.Zoom != doc.Viewport.Zoom {
		t.Error("normalization should be idempotent")
	}
}

func TestNormalizedPreservesContent(t *testing.T) {
	doc := GraphDocument{
		SchemaVersion: "v1",
		Nodes:         []Node{{ID: "a", Type: NodeTypeAgent, Model: "echo"}},
		Viewport:      &Viewport{X: 10, Y: 20, Zoom: 2},
	}
	got := doc.Normalized()
	if got.Viewport.X != 10 || got.Viewport.Zoom != 2 {
		t.Errorf("viewport should be preserved: %+v", got.Viewport)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].Model != "echo" {
		t.Errorf("nodes should be preserved: %+v", got.Nodes)
	}
}

func TestStableHashDeterministic(t *testing.T) {
	doc := GraphDocument{
		Nodes: []Node{
			{ID: "t1", Type: NodeTypeTool, ToolName: "x", Schema: map[string]any{"type": "object", "properties": map[string]any{"b": 1, "a": 2}}},
		},
	}
	h1, err := StableHash(doc)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := StableHash(doc)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash not stable: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("want sha256 hex digest, got %q", h1)
	}

	doc.Nodes[0].ToolName = "y"
	h3, err := StableHash(doc)
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Error("different content should hash differently")
	}
}

func TestStableHashMapOrderIndependent(t *testing.T) {
	a := map[string]any{"x": 1, "y": 2, "z": map[string]any{"k": "v"}}
	b := map[string]any{"z": map[string]any{"k": "v"}, "y": 2, "x": 1}
	ha, _ := StableHash(a)
	hb, _ := StableHash(b)
	if ha != hb {
		t.Errorf("map insertion order should not affect the hash: %s vs %s", ha, hb)
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID("wf")
	if !strings.HasPrefix(id, "wf-") {
		t.Errorf("missing prefix: %q", id)
	}
	if len(id) != len("wf-")+16 {
		t.Errorf("want 16 hex chars after the prefix, got %q", id)
	}
	if id == GenerateID("wf") {
		t.Error("ids should be unique")
	}
}

package graph

import (
	"testing"

	"github.com/minseok/weft/internal/weft"
)

func agentNode(id string) weft.Node {
	return weft.Node{ID: id, Type: weft.NodeTypeAgent, Name: id, Instructions: "hi", Model: "echo"}
}

func linearDoc() weft.GraphDocument {
	return weft.GraphDocument{
		Nodes: []weft.Node{
			{ID: "in", Type: weft.NodeTypeInput, Name: "in"},
			agentNode("a1"),
			{ID: "out", Type: weft.NodeTypeOutput, Name: "out"},
		},
		Edges: []weft.Edge{
			{ID: "e1", Source: "in", Target: "a1"},
			{ID: "e2", Source: "a1", Target: "out"},
		},
	}
}

func codes(r Result) []string {
	out := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		out = append(out, is.Code)
	}
	return out
}

func hasCode(r Result, code string) bool {
	for _, is := range r.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func TestValidateOK(t *testing.T) {
	r := Validate(linearDoc())
	if !r.OK {
		t.Fatalf("expected valid document, got issues %v", codes(r))
	}
	if r.Issues == nil || len(r.Issues) != 0 {
		t.Errorf("issues should be an empty slice, got %v", r.Issues)
	}
	if r.Normalized.SchemaVersion != weft.SchemaVersionV1 {
		t.Errorf("normalized schema version: got %q", r.Normalized.SchemaVersion)
	}
}

func TestValidateEmptyDocument(t *testing.T) {
	r := Validate(weft.GraphDocument{})
	if r.OK {
		t.Fatal("empty document should not validate")
	}
	if len(r.Issues) != 1 || r.Issues[0].Code != CodeNoAgent {
		t.Errorf("want only %s, got %v", CodeNoAgent, codes(r))
	}
}

func TestValidateSingleAgent(t *testing.T) {
	// A lone agent is runnable: no disconnected or reachability noise.
	r := Validate(weft.GraphDocument{Nodes: []weft.Node{agentNode("a1")}})
	if !r.OK {
		t.Fatalf("single agent should validate, got %v", codes(r))
	}
}

func TestValidateDuplicateNodeID(t *testing.T) {
	doc := linearDoc()
	doc.Nodes = append(doc.Nodes, agentNode("a1"))
	r := Validate(doc)
	if !hasCode(r, CodeDuplicateNodeID) {
		t.Errorf("want %s, got %v", CodeDuplicateNodeID, codes(r))
	}
}

func TestValidateEdgeEndpoints(t *testing.T) {
	doc := linearDoc()
	doc.Edges = append(doc.Edges,
		weft.Edge{ID: "bad1", Source: "ghost", Target: "a1"},
		weft.Edge{ID: "bad2", Source: "a1", Target: "ghost"},
	)
	r := Validate(doc)
	if !hasCode(r, CodeEdgeMissingSource) || !hasCode(r, CodeEdgeMissingTarget) {
		t.Errorf("want missing source and target issues, got %v", codes(r))
	}
}

func TestValidateAgentChecks(t *testing.T) {
	doc := linearDoc()
	doc.Nodes[1].Model = ""
	doc.Nodes[1].Tools = []string{"nope"}
	r := Validate(doc)
	if !hasCode(r, CodeAgentMissingModel) {
		t.Errorf("want %s, got %v", CodeAgentMissingModel, codes(r))
	}
	if !hasCode(r, CodeAgentMissingTool) {
		t.Errorf("want %s, got %v", CodeAgentMissingTool, codes(r))
	}
}

func TestValidateToolChecks(t *testing.T) {
	doc := linearDoc()
	doc.Nodes[1].Tools = []string{"t1", "t2"}
	doc.Nodes = append(doc.Nodes,
		weft.Node{ID: "t1", Type: weft.NodeTypeTool, ToolName: "fetch", Schema: map[string]any{"type": "array"}},
		weft.Node{ID: "t2", Type: weft.NodeTypeTool, ToolName: "fetch", Impl: "webpage.fetch"},
	)
	r := Validate(doc)
	if !hasCode(r, CodeToolInvalidSchema) {
		t.Errorf("want %s, got %v", CodeToolInvalidSchema, codes(r))
	}
	if !hasCode(r, CodeToolDuplicateName) {
		t.Errorf("want %s, got %v", CodeToolDuplicateName, codes(r))
	}
	// t1 is used by the agent but has no impl.
	if !hasCode(r, CodeToolMissingImpl) {
		t.Errorf("want %s, got %v", CodeToolMissingImpl, codes(r))
	}
}

func TestValidateToolSchemaTypeOptional(t *testing.T) {
	doc := linearDoc()
	doc.Nodes[1].Tools = []string{"t1"}
	// No "type" key: defaults to object and passes.
	doc.Nodes = append(doc.Nodes,
		weft.Node{ID: "t1", Type: weft.NodeTypeTool, ToolName: "fetch", Impl: "webpage.fetch",
			Schema: map[string]any{"properties": map[string]any{"url": map[string]any{"type": "string"}}}},
	)
	r := Validate(doc)
	if hasCode(r, CodeToolInvalidSchema) {
		t.Errorf("schema without a type key must be accepted, got %v", codes(r))
	}

	doc.Nodes[3].Schema["type"] = "object"
	if r := Validate(doc); hasCode(r, CodeToolInvalidSchema) {
		t.Errorf("explicit object type must be accepted, got %v", codes(r))
	}

	doc.Nodes[3].Schema["type"] = "string"
	if r := Validate(doc); !hasCode(r, CodeToolInvalidSchema) {
		t.Errorf("want %s for a non-object type, got %v", CodeToolInvalidSchema, codes(r))
	}
}

func TestValidateUnusedToolNeedsNoImpl(t *testing.T) {
	doc := linearDoc()
	doc.Nodes = append(doc.Nodes, weft.Node{ID: "t1", Type: weft.NodeTypeTool, ToolName: "spare"})
	r := Validate(doc)
	if hasCode(r, CodeToolMissingImpl) {
		t.Errorf("unused tool should not require an impl, got %v", codes(r))
	}
	// But it is disconnected.
	if !hasCode(r, CodeNodeDisconnected) {
		t.Errorf("unreferenced edge-less tool should be disconnected, got %v", codes(r))
	}
}

func TestValidateToolEdgeDirection(t *testing.T) {
	doc := linearDoc()
	doc.Nodes = append(doc.Nodes, weft.Node{ID: "t1", Type: weft.NodeTypeTool, ToolName: "fetch", Impl: "webpage.fetch"})
	doc.Edges = append(doc.Edges, weft.Edge{ID: "e3", Source: "a1", Target: "t1"})
	r := Validate(doc)
	if !hasCode(r, CodeToolInvalidEdge) {
		t.Errorf("agent→tool edge should be invalid, got %v", codes(r))
	}

	doc.Edges[len(doc.Edges)-1] = weft.Edge{ID: "e3", Source: "t1", Target: "a1"}
	r = Validate(doc)
	if hasCode(r, CodeToolInvalidEdge) {
		t.Errorf("tool→agent edge should be valid, got %v", codes(r))
	}
}

func TestValidateEndpointRoles(t *testing.T) {
	doc := linearDoc()
	doc.Edges = append(doc.Edges,
		weft.Edge{ID: "e3", Source: "out", Target: "a1"},
		weft.Edge{ID: "e4", Source: "a1", Target: "in"},
	)
	r := Validate(doc)
	if !hasCode(r, CodeOutputNotTarget) {
		t.Errorf("want %s, got %v", CodeOutputNotTarget, codes(r))
	}
	if !hasCode(r, CodeInputNotSource) {
		t.Errorf("want %s, got %v", CodeInputNotSource, codes(r))
	}
}

func TestValidateCycle(t *testing.T) {
	doc := linearDoc()
	doc.Nodes = append(doc.Nodes, agentNode("a2"))
	doc.Edges = append(doc.Edges,
		weft.Edge{ID: "e3", Source: "a1", Target: "a2"},
		weft.Edge{ID: "e4", Source: "a2", Target: "a1"},
	)
	r := Validate(doc)
	if !hasCode(r, CodeCycle) {
		t.Errorf("want %s, got %v", CodeCycle, codes(r))
	}
}

func TestValidateReachability(t *testing.T) {
	doc := linearDoc()
	// a2 hangs off to the side: reachable from nothing, leads nowhere,
	// but has an edge so it is not merely disconnected.
	doc.Nodes = append(doc.Nodes, agentNode("a2"), agentNode("a3"))
	doc.Edges = append(doc.Edges, weft.Edge{ID: "e3", Source: "a2", Target: "a3"})
	r := Validate(doc)
	if !hasCode(r, CodeNodeUnreachable) {
		t.Errorf("want %s, got %v", CodeNodeUnreachable, codes(r))
	}
	if !hasCode(r, CodeNodeDeadEnd) {
		t.Errorf("want %s, got %v", CodeNodeDeadEnd, codes(r))
	}
}

func TestValidateDisconnected(t *testing.T) {
	doc := linearDoc()
	doc.Nodes = append(doc.Nodes, agentNode("floating"))
	r := Validate(doc)
	if !hasCode(r, CodeNodeDisconnected) {
		t.Errorf("want %s, got %v", CodeNodeDisconnected, codes(r))
	}
	// Disconnected already covers it: no extra unreachable/dead_end noise.
	for _, is := range r.Issues {
		if is.NodeID == "floating" && (is.Code == CodeNodeUnreachable || is.Code == CodeNodeDeadEnd) {
			t.Errorf("floating node should only be disconnected, got %s", is.Code)
		}
	}
}

func loopDoc() weft.GraphDocument {
	return weft.GraphDocument{
		Nodes: []weft.Node{
			{ID: "in", Type: weft.NodeTypeInput},
			{ID: "grp", Type: weft.NodeTypeLoopGroup, Condition: "iteration < max_iterations", MaxIterations: 3},
			{ID: "body", Type: weft.NodeTypeAgent, ParentID: "grp", Model: "echo", Instructions: "work"},
			{ID: "out", Type: weft.NodeTypeOutput},
		},
		Edges: []weft.Edge{
			{ID: "e1", Source: "in", Target: "body"},
			{ID: "e2", Source: "body", Target: "out"},
		},
	}
}

func TestValidateLoopGroupOK(t *testing.T) {
	r := Validate(loopDoc())
	if !r.OK {
		t.Fatalf("loop document should validate, got %v", codes(r))
	}
}

func TestValidateLoopGroupIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*weft.GraphDocument)
		want   string
	}{
		{"missing condition", func(d *weft.GraphDocument) { d.Nodes[1].Condition = "" }, CodeLoopMissingCondition},
		{"bad condition", func(d *weft.GraphDocument) { d.Nodes[1].Condition = "iteration <" }, CodeLoopInvalidCondition},
		{"bad limit", func(d *weft.GraphDocument) { d.Nodes[1].MaxIterations = 0 }, CodeLoopInvalidLimit},
		{"empty group", func(d *weft.GraphDocument) {
			d.Nodes[2].ParentID = ""
			d.Nodes = d.Nodes[:3] // drop out; body now top-level
			d.Edges = d.Edges[:1]
		}, CodeLoopEmpty},
		{"nested group", func(d *weft.GraphDocument) {
			d.Nodes = append(d.Nodes, weft.Node{ID: "grp2", Type: weft.NodeTypeLoopGroup, ParentID: "grp", Condition: "true", MaxIterations: 1})
		}, CodeLoopNested},
		{"edge to group", func(d *weft.GraphDocument) {
			d.Edges = append(d.Edges, weft.Edge{ID: "e3", Source: "in", Target: "grp"})
		}, CodeLoopEdgeToGroup},
		{"two entries", func(d *weft.GraphDocument) {
			d.Nodes = append(d.Nodes, weft.Node{ID: "in2", Type: weft.NodeTypeInput})
			d.Edges = append(d.Edges, weft.Edge{ID: "e3", Source: "in2", Target: "body"})
		}, CodeLoopEdgesInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loopDoc()
			tt.mutate(&doc)
			r := Validate(doc)
			if !hasCode(r, tt.want) {
				t.Errorf("want %s, got %v", tt.want, codes(r))
			}
		})
	}
}

func TestValidateIssueOrderStable(t *testing.T) {
	doc := linearDoc()
	doc.Nodes[1].Model = ""
	doc.Edges = append(doc.Edges, weft.Edge{ID: "bad", Source: "ghost", Target: "a1"})
	first := codes(Validate(doc))
	for i := 0; i < 5; i++ {
		again := codes(Validate(doc))
		if len(again) != len(first) {
			t.Fatalf("issue count changed between passes: %v vs %v", first, again)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("issue order changed between passes: %v vs %v", first, again)
			}
		}
	}
}

func TestTopoOrderDeclarationTies(t *testing.T) {
	// Diamond: in → (b, a) → out, with b declared before a.
	doc := weft.GraphDocument{
		Nodes: []weft.Node{
			{ID: "in", Type: weft.NodeTypeInput},
			agentNode("b"),
			agentNode("a"),
			{ID: "out", Type: weft.NodeTypeOutput},
		},
		Edges: []weft.Edge{
			{ID: "e1", Source: "in", Target: "b"},
			{ID: "e2", Source: "in", Target: "a"},
			{ID: "e3", Source: "b", Target: "out"},
			{ID: "e4", Source: "a", Target: "out"},
		},
	}
	ix := BuildIndex(doc.Normalized())
	order, cyclic := ix.TopoOrder()
	if cyclic != nil {
		t.Fatalf("unexpected cycle: %v", cyclic)
	}
	want := []string{"in", "b", "a", "out"}
	if len(order) != len(want) {
		t.Fatalf("order length: got %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("declaration order should break ties: got %v, want %v", order, want)
		}
	}
}

package graph

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/minseok/weft/internal/weft"
)

// Issue codes. They are part of the API surface; clients match on them.
const (
	CodeDuplicateNodeID   = "node.duplicate_id"
	CodeEdgeMissingSource = "edge.missing_source"
	CodeEdgeMissingTarget = "edge.missing_target"
	CodeNodeDisconnected  = "node.disconnected"
	CodeNodeUnreachable   = "node.unreachable"
	CodeNodeDeadEnd       = "node.dead_end"
	CodeNoAgent           = "graph.no_agent"
	CodeCycle             = "graph.cycle"
	CodeAgentMissingModel = "agent.missing_model"
	CodeAgentMissingTool  = "agent.missing_tool"
	CodeToolDuplicateName = "tool.duplicate_name"
	CodeToolInvalidSchema = "tool.invalid_schema"
	CodeToolMissingImpl   = "tool.missing_impl"
	CodeToolInvalidEdge   = "tool.invalid_edge"
	CodeInputNotSource    = "input.not_source"
	CodeOutputNotTarget   = "output.not_target"

	CodeLoopMissingCondition = "loop_group.missing_condition"
	CodeLoopInvalidLimit     = "loop_group.invalid_limit"
	CodeLoopInvalidCondition = "loop_group.invalid_condition"
	CodeLoopEmpty            = "loop_group.empty"
	CodeLoopEdgesInvalid     = "loop_group.edges_invalid"
	CodeLoopEdgeToGroup      = "loop_group.edge_to_group"
	CodeLoopNested           = "loop_group.nested"
)

// Result is the outcome of validating a document. Issues is empty and
// OK true for valid documents. Normalized is the canonical form of the
// input and is returned even when validation fails.
type Result struct {
	OK         bool                   `json:"ok"`
	Issues     []weft.ValidationIssue `json:"issues"`
	Normalized weft.GraphDocument     `json:"normalized"`
}

// Validate checks a document for structural problems. It never fails on
// content: every problem becomes an issue. Issue order is stable for a
// given document.
func Validate(doc weft.GraphDocument) Result {
	doc = doc.Normalized()
	v := &validator{ix: BuildIndex(doc), issues: []weft.ValidationIssue{}}
	v.checkNodeIDs()
	v.checkEdges()
	v.checkNodes()
	v.checkGraph()
	return Result{OK: len(v.issues) == 0, Issues: v.issues, Normalized: doc}
}

type validator struct {
	ix      *Index
	issues  []weft.ValidationIssue
	flagged map[string]bool
}

func (v *validator) add(code, msg, nodeID, edgeID string) {
	v.issues = append(v.issues, weft.ValidationIssue{Code: code, Message: msg, NodeID: nodeID, EdgeID: edgeID})
}

func (v *validator) checkNodeIDs() {
	seen := make(map[string]bool)
	for _, n := range v.ix.Doc.Nodes {
		if seen[n.ID] {
			v.add(CodeDuplicateNodeID, fmt.Sprintf("duplicate node id %q", n.ID), n.ID, "")
			continue
		}
		seen[n.ID] = true
	}
}

func (v *validator) checkEdges() {
	for _, e := range v.ix.Doc.Edges {
		src, srcOK := v.ix.Nodes[e.Source]
		tgt, tgtOK := v.ix.Nodes[e.Target]
		if !srcOK {
			v.add(CodeEdgeMissingSource, fmt.Sprintf("edge %q references unknown source %q", e.ID, e.Source), "", e.ID)
		}
		if !tgtOK {
			v.add(CodeEdgeMissingTarget, fmt.Sprintf("edge %q references unknown target %q", e.ID, e.Target), "", e.ID)
		}
		if !srcOK || !tgtOK {
			continue
		}
		if src.Type == weft.NodeTypeTool || tgt.Type == weft.NodeTypeTool {
			if !(src.Type == weft.NodeTypeTool && tgt.Type == weft.NodeTypeAgent) {
				v.add(CodeToolInvalidEdge, fmt.Sprintf("edge %q: tool nodes connect only tool→agent", e.ID), "", e.ID)
			}
			continue
		}
		if tgt.Type == weft.NodeTypeInput {
			v.add(CodeInputNotSource, fmt.Sprintf("edge %q targets input node %q", e.ID, e.Target), e.Target, e.ID)
		}
		if src.Type == weft.NodeTypeOutput {
			v.add(CodeOutputNotTarget, fmt.Sprintf("edge %q starts at output node %q", e.ID, e.Source), e.Source, e.ID)
		}
		if src.Type == weft.NodeTypeLoopGroup {
			v.add(CodeLoopEdgeToGroup, fmt.Sprintf("edge %q references loop group %q directly; connect its members", e.ID, e.Source), e.Source, e.ID)
		}
		if tgt.Type == weft.NodeTypeLoopGroup {
			v.add(CodeLoopEdgeToGroup, fmt.Sprintf("edge %q references loop group %q directly; connect its members", e.ID, e.Target), e.Target, e.ID)
		}
	}
}

func (v *validator) checkNodes() {
	toolNames := make(map[string]bool)
	used := v.ix.UsedToolIDs()
	for _, n := range v.ix.Doc.Nodes {
		switch n.Type {
		case weft.NodeTypeAgent:
			v.checkAgent(n)
		case weft.NodeTypeTool:
			v.checkTool(n, toolNames, used)
		case weft.NodeTypeLoopGroup:
			v.checkLoopGroup(n)
		}
	}
	v.checkConnectivity()
}

func (v *validator) checkAgent(n weft.Node) {
	if n.Model == "" {
		v.add(CodeAgentMissingModel, fmt.Sprintf("agent %q has no model selector", n.ID), n.ID, "")
	}
	for _, id := range n.Tools {
		ref, ok := v.ix.Nodes[id]
		if !ok || ref.Type != weft.NodeTypeTool {
			v.add(CodeAgentMissingTool, fmt.Sprintf("agent %q references %q which is not a tool node", n.ID, id), n.ID, "")
		}
	}
}

func (v *validator) checkTool(n weft.Node, names map[string]bool, used map[string]bool) {
	name := ToolName(n)
	if names[name] {
		v.add(CodeToolDuplicateName, fmt.Sprintf("duplicate tool name %q", name), n.ID, "")
	}
	names[name] = true

	if n.Schema != nil {
		// An absent "type" defaults to object; only an explicit
		// non-object type is wrong.
		if typ, ok := n.Schema["type"]; ok && typ != nil {
			if s, _ := typ.(string); s != "object" {
				v.add(CodeToolInvalidSchema, fmt.Sprintf("tool %q schema must be an object schema", n.ID), n.ID, "")
			}
		}
	}
	if used[n.ID] && n.Impl == "" {
		v.add(CodeToolMissingImpl, fmt.Sprintf("tool %q is used but has no implementation reference", n.ID), n.ID, "")
	}
}

func (v *validator) checkLoopGroup(n weft.Node) {
	if n.ParentID != "" {
		v.add(CodeLoopNested, fmt.Sprintf("loop group %q cannot be nested inside another group", n.ID), n.ID, "")
	}
	if n.Condition == "" {
		v.add(CodeLoopMissingCondition, fmt.Sprintf("loop group %q has no condition", n.ID), n.ID, "")
	} else if _, err := expr.Compile(n.Condition); err != nil {
		v.add(CodeLoopInvalidCondition, fmt.Sprintf("loop group %q condition does not compile: %v", n.ID, err), n.ID, "")
	}
	if n.MaxIterations < 1 {
		v.add(CodeLoopInvalidLimit, fmt.Sprintf("loop group %q max_iterations must be at least 1", n.ID), n.ID, "")
	}
	if len(v.ix.Members[n.ID]) == 0 {
		v.add(CodeLoopEmpty, fmt.Sprintf("loop group %q has no member nodes", n.ID), n.ID, "")
		return
	}

	entries, exits := v.groupBoundary(n.ID)
	if entries != 1 || exits != 1 {
		v.add(CodeLoopEdgesInvalid,
			fmt.Sprintf("loop group %q needs exactly one entry and one exit edge, found %d entry and %d exit", n.ID, entries, exits),
			n.ID, "")
	}
}

// groupBoundary counts contracted edges crossing the group boundary.
// Tool edges and edges touching the group node itself are excluded;
// the latter are already flagged by checkEdges.
func (v *validator) groupBoundary(groupID string) (entries, exits int) {
	for _, e := range v.ix.Doc.Edges {
		if e.Source == groupID || e.Target == groupID {
			continue
		}
		sv, ok := v.ix.Vertex(e.Source)
		if !ok {
			continue
		}
		tv, ok := v.ix.Vertex(e.Target)
		if !ok {
			continue
		}
		if sv != groupID && tv == groupID {
			entries++
		}
		if sv == groupID && tv != groupID {
			exits++
		}
	}
	return entries, exits
}

// checkConnectivity flags zero-degree nodes. Loop group members inherit
// their group's connectivity, and a tool counts as connected when an
// agent references it by id. Single-vertex documents are left alone so
// a lone agent stays runnable.
func (v *validator) checkConnectivity() {
	v.flagged = make(map[string]bool)
	degree := make(map[string]int)
	for _, e := range v.ix.Doc.Edges {
		degree[e.Source]++
		degree[e.Target]++
	}
	used := v.ix.UsedToolIDs()
	vertices := v.ix.Vertices()

	vertexDegree := make(map[string]int)
	for _, p := range v.ix.ControlEdges() {
		vertexDegree[p[0]]++
		vertexDegree[p[1]]++
	}

	for _, n := range v.ix.Doc.Nodes {
		if n.Type == weft.NodeTypeTool {
			if degree[n.ID] == 0 && !used[n.ID] {
				v.add(CodeNodeDisconnected, fmt.Sprintf("tool %q is not referenced by any agent", n.ID), n.ID, "")
				v.flagged[n.ID] = true
			}
			continue
		}
		vtx, ok := v.ix.Vertex(n.ID)
		if !ok || vtx != n.ID {
			continue // members inherit the group's connectivity
		}
		if len(vertices) >= 2 && vertexDegree[n.ID] == 0 {
			v.add(CodeNodeDisconnected, fmt.Sprintf("node %q has no edges", n.ID), n.ID, "")
			v.flagged[n.ID] = true
		}
	}
}

func (v *validator) checkGraph() {
	hasAgent := false
	for _, n := range v.ix.Doc.Nodes {
		if n.Type == weft.NodeTypeAgent {
			hasAgent = true
			break
		}
	}
	if !hasAgent {
		v.add(CodeNoAgent, "document has no agent node", "", "")
	}

	_, cyclic := v.ix.TopoOrder()
	if len(cyclic) > 0 {
		v.add(CodeCycle, fmt.Sprintf("cycle involving nodes %v", cyclic), "", "")
	}

	v.checkReachability()
}

// checkReachability walks the contracted graph forward from inputs and
// backward from outputs. Both checks are skipped when the document has
// no node of the respective anchor type, and nodes already flagged as
// disconnected are not flagged again.
func (v *validator) checkReachability() {
	adj := make(map[string][]string)
	radj := make(map[string][]string)
	for _, p := range v.ix.ControlEdges() {
		adj[p[0]] = append(adj[p[0]], p[1])
		radj[p[1]] = append(radj[p[1]], p[0])
	}

	var inputs, outputs []string
	for _, vtx := range v.ix.Vertices() {
		switch v.ix.Nodes[vtx].Type {
		case weft.NodeTypeInput:
			inputs = append(inputs, vtx)
		case weft.NodeTypeOutput:
			outputs = append(outputs, vtx)
		}
	}

	if len(inputs) > 0 {
		seen := bfs(inputs, adj)
		for _, vtx := range v.ix.Vertices() {
			if seen[vtx] || v.flagged[vtx] || v.ix.Nodes[vtx].Type == weft.NodeTypeInput {
				continue
			}
			v.add(CodeNodeUnreachable, fmt.Sprintf("node %q is not reachable from any input", vtx), vtx, "")
		}
	}
	if len(outputs) > 0 {
		seen := bfs(outputs, radj)
		for _, vtx := range v.ix.Vertices() {
			if seen[vtx] || v.flagged[vtx] || v.ix.Nodes[vtx].Type == weft.NodeTypeOutput {
				continue
			}
			v.add(CodeNodeDeadEnd, fmt.Sprintf("node %q has no path to any output", vtx), vtx, "")
		}
	}
}

func bfs(start []string, adj map[string][]string) map[string]bool {
	seen := make(map[string]bool, len(start))
	queue := append([]string(nil), start...)
	for _, s := range start {
		seen[s] = true
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range adj[v] {
			if !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

// ToolName returns the registry name a tool node exposes: tool_name,
// falling back to the display name, then the node id.
func ToolName(n weft.Node) string {
	if n.ToolName != "" {
		return n.ToolName
	}
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

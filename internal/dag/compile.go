package dag

import (
	"fmt"

	"github.com/minseok/weft/internal/graph"
	"github.com/minseok/weft/internal/weft"
)

// Compile turns a document into an execution plan. Callers are expected
// to validate first; Compile re-checks only what would make a plan
// impossible to build and reports those as *CompileError.
func Compile(doc weft.GraphDocument) (*Plan, error) {
	doc = doc.Normalized()
	ix := graph.BuildIndex(doc)

	if err := checkStructure(ix); err != nil {
		return nil, err
	}

	order, cyclic := ix.TopoOrder()
	if len(cyclic) > 0 {
		return nil, &CompileError{Reason: fmt.Sprintf("cycle involving nodes %v", cyclic)}
	}

	upstream := upstreamMap(ix)
	steps := make([]Step, 0, len(order))
	for _, id := range order {
		n := ix.Nodes[id]
		switch n.Type {
		case weft.NodeTypeInput:
			steps = append(steps, Step{NodeID: n.ID, Kind: StepInput, Name: n.Name, Upstream: upstream[n.ID]})
		case weft.NodeTypeAgent:
			steps = append(steps, agentStep(ix, n, upstream[n.ID]))
		case weft.NodeTypeOutput:
			steps = append(steps, Step{NodeID: n.ID, Kind: StepOutput, Name: n.Name, Upstream: upstream[n.ID]})
		case weft.NodeTypeLoopGroup:
			s, err := loopStep(ix, n, upstream[n.ID])
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
		}
	}

	hash, err := weft.StableHash(doc)
	if err != nil {
		return nil, &CompileError{Reason: fmt.Sprintf("hash document: %v", err)}
	}
	return &Plan{Hash: hash, Steps: steps}, nil
}

// checkStructure rejects documents no plan can be built from.
func checkStructure(ix *graph.Index) error {
	seen := make(map[string]bool)
	for _, n := range ix.Doc.Nodes {
		if seen[n.ID] {
			return &CompileError{NodeID: n.ID, Reason: "duplicate node id"}
		}
		seen[n.ID] = true
	}
	for _, e := range ix.Doc.Edges {
		if _, ok := ix.Nodes[e.Source]; !ok {
			return &CompileError{Reason: fmt.Sprintf("edge %q references unknown source %q", e.ID, e.Source)}
		}
		if _, ok := ix.Nodes[e.Target]; !ok {
			return &CompileError{Reason: fmt.Sprintf("edge %q references unknown target %q", e.ID, e.Target)}
		}
	}
	return nil
}

// upstreamMap collects each vertex's contracted predecessors in edge
// declaration order, deduplicated.
func upstreamMap(ix *graph.Index) map[string][]string {
	up := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, p := range ix.ControlEdges() {
		src, dst := p[0], p[1]
		if seen[dst] == nil {
			seen[dst] = make(map[string]bool)
		}
		if seen[dst][src] {
			continue
		}
		seen[dst][src] = true
		up[dst] = append(up[dst], src)
	}
	return up
}

func agentStep(ix *graph.Index, n weft.Node, upstream []string) Step {
	return Step{
		NodeID:           n.ID,
		Kind:             StepAgent,
		Name:             n.Name,
		Upstream:         upstream,
		Instructions:     n.Instructions,
		Model:            n.Model,
		Temperature:      n.Temperature,
		Tools:            toolBindings(ix, n.ID),
		InputGuardrails:  n.InputGuardrails,
		OutputGuardrails: n.OutputGuardrails,
		OutputType:       n.OutputType,
	}
}

// toolBindings resolves an agent's tools in the stable order defined by
// the document: the agent's tools list first, then incoming tool edges.
// References that are not tool nodes are dropped; validation reports
// them.
func toolBindings(ix *graph.Index, agentID string) []ToolBinding {
	var bindings []ToolBinding
	for _, id := range ix.AgentToolIDs(agentID) {
		tn, ok := ix.Nodes[id]
		if !ok || tn.Type != weft.NodeTypeTool {
			continue
		}
		bindings = append(bindings, ToolBinding{
			NodeID:      tn.ID,
			Name:        graph.ToolName(tn),
			Impl:        tn.Impl,
			Schema:      tn.Schema,
			Description: tn.Description,
		})
	}
	return bindings
}

func loopStep(ix *graph.Index, n weft.Node, upstream []string) (Step, error) {
	order, cyclic := ix.MemberOrder(n.ID)
	if len(cyclic) > 0 {
		return Step{}, &CompileError{NodeID: n.ID, Reason: fmt.Sprintf("cycle among loop members %v", cyclic)}
	}
	body := make([]Step, 0, len(order))
	for _, id := range order {
		m := ix.Nodes[id]
		switch m.Type {
		case weft.NodeTypeInput:
			body = append(body, Step{NodeID: m.ID, Kind: StepInput, Name: m.Name})
		case weft.NodeTypeAgent:
			body = append(body, agentStep(ix, m, memberUpstream(ix, n.ID, m.ID)))
		case weft.NodeTypeOutput:
			body = append(body, Step{NodeID: m.ID, Kind: StepOutput, Name: m.Name, Upstream: memberUpstream(ix, n.ID, m.ID)})
		}
	}
	return Step{
		NodeID:        n.ID,
		Kind:          StepLoop,
		Name:          n.Name,
		Upstream:      upstream,
		Condition:     n.Condition,
		MaxIterations: n.MaxIterations,
		Body:          body,
	}, nil
}

// memberUpstream collects a member's predecessors among its own group's
// members, in edge declaration order.
func memberUpstream(ix *graph.Index, groupID, memberID string) []string {
	var up []string
	seen := make(map[string]bool)
	for _, e := range ix.Doc.Edges {
		if e.Target != memberID || seen[e.Source] || e.Source == memberID {
			continue
		}
		src, ok := ix.Nodes[e.Source]
		if !ok || src.Type == weft.NodeTypeTool || src.ParentID != groupID {
			continue
		}
		seen[e.Source] = true
		up = append(up, e.Source)
	}
	return up
}

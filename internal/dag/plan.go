// Package dag compiles graph documents into deterministic execution
// plans. Steps are ordered by a topological sort of the contracted
// graph; ties fall back to node declaration order, so compiling the
// same document always yields the same plan.
package dag

import (
	"fmt"

	"github.com/minseok/weft/internal/weft"
)

type StepKind string

const (
	StepInput  StepKind = "input"
	StepAgent  StepKind = "agent"
	StepLoop   StepKind = "loop"
	StepOutput StepKind = "output"
)

// Plan is the compiled form of a document. Hash ties it back to the
// source document's content.
type Plan struct {
	Hash  string `json:"hash"`
	Steps []Step `json:"steps"`
}

// Step is one unit of execution. Agent steps carry their resolved tool
// bindings; loop steps carry the contracted members as an inner plan in
// Body. Tool nodes never become steps.
type Step struct {
	NodeID   string   `json:"node_id"`
	Kind     StepKind `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Upstream []string `json:"upstream,omitempty"`

	// agent
	Instructions     string           `json:"instructions,omitempty"`
	Model            string           `json:"model,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	Tools            []ToolBinding    `json:"tools,omitempty"`
	InputGuardrails  []weft.Guardrail `json:"input_guardrails,omitempty"`
	OutputGuardrails []weft.Guardrail `json:"output_guardrails,omitempty"`
	OutputType       string           `json:"output_type,omitempty"`

	// loop
	Condition     string `json:"condition,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Body          []Step `json:"body,omitempty"`
}

// ToolBinding resolves a tool node for an agent step. Impl selects the
// implementation in the tool registry.
type ToolBinding struct {
	NodeID      string         `json:"node_id"`
	Name        string         `json:"name"`
	Impl        string         `json:"impl"`
	Schema      map[string]any `json:"schema,omitempty"`
	Description string         `json:"description,omitempty"`
}

// Summary describes the plan in event payloads.
func (p *Plan) Summary() map[string]any {
	return map[string]any{"steps": len(p.Steps), "hash": p.Hash}
}

// FindAgent locates an agent step by node id or name, searching loop
// bodies as well. Used to resolve handoff targets.
func (p *Plan) FindAgent(ref string) (*Step, bool) {
	return findAgent(p.Steps, ref)
}

func findAgent(steps []Step, ref string) (*Step, bool) {
	for i := range steps {
		s := &steps[i]
		if s.Kind == StepAgent && (s.NodeID == ref || s.Name == ref) {
			return s, true
		}
		if s.Kind == StepLoop {
			if found, ok := findAgent(s.Body, ref); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// CompileError reports a structurally impossible document. Documents
// that pass validation never produce one.
type CompileError struct {
	NodeID string
	Reason string
}

func (e *CompileError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("compile: %s (node %s)", e.Reason, e.NodeID)
	}
	return "compile: " + e.Reason
}

// Package weft defines the core domain types shared across the runtime:
// graph documents, compiled runs, events, and their identifiers.
package weft

// SchemaVersionV1 is the only document schema version currently understood.
const SchemaVersionV1 = "v1"

type NodeType string

const (
	NodeTypeInput     NodeType = "input"
	NodeTypeAgent     NodeType = "agent"
	NodeTypeTool      NodeType = "tool"
	NodeTypeLoopGroup NodeType = "loop_group"
	NodeTypeOutput    NodeType = "output"
)

// GraphDocument is the authored form of a workflow: a flat node list plus
// edges. Node declaration order is significant and used for tie-breaking
// during compilation.
type GraphDocument struct {
	SchemaVersion string    `json:"schema_version"`
	Nodes         []Node    `json:"nodes"`
	Edges         []Edge    `json:"edges"`
	Viewport      *Viewport `json:"viewport,omitempty"`
}

// Node is a tagged union over Type. Only the fields belonging to the
// node's type are populated; the rest stay at their zero values and are
// omitted from JSON.
type Node struct {
	ID       string    `json:"id"`
	Type     NodeType  `json:"type"`
	Name     string    `json:"name,omitempty"`
	ParentID string    `json:"parent_id,omitempty"`
	Position *Position `json:"position,omitempty"`

	// agent
	Instructions     string      `json:"instructions,omitempty"`
	Model            string      `json:"model,omitempty"`
	Tools            []string    `json:"tools,omitempty"`
	Temperature      *float64    `json:"temperature,omitempty"`
	InputGuardrails  []Guardrail `json:"input_guardrails,omitempty"`
	OutputGuardrails []Guardrail `json:"output_guardrails,omitempty"`
	OutputType       string      `json:"output_type,omitempty"`

	// tool
	ToolName    string         `json:"tool_name,omitempty"`
	Impl        string         `json:"impl,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
	Description string         `json:"description,omitempty"`

	// loop_group
	Condition     string `json:"condition,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Label        string `json:"label,omitempty"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Guardrail is a boolean rule checked around an agent step. A violated
// blocking guardrail fails the step; a non-blocking one only records a
// guardrail.triggered event.
type Guardrail struct {
	Name        string `json:"name"`
	Rule        string `json:"rule"`
	Blocking    bool   `json:"blocking"`
	Description string `json:"description,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Normalized returns a copy of the document with defaults applied:
// schema version, viewport, and non-nil node and edge slices. Calling it
// twice yields the same document.
func (d GraphDocument) Normalized() GraphDocument {
	if d.SchemaVersion == "" {
		d.SchemaVersion = SchemaVersionV1
	}
	if d.Viewport == nil {
		d.Viewport = &Viewport{Zoom: 1}
	}
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Edges == nil {
		d.Edges = []Edge{}
	}
	return d
}

// NodeByID returns the first node with the given id.
func (d GraphDocument) NodeByID(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

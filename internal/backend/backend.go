// Package backend defines the model backend abstraction consumed by the
// execution engine. Model invocation itself is out of scope for the
// runtime; embedders register their own backends, and the built-in echo
// backend keeps workflows runnable without one.
package backend

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in an agent step's conversation with its backend.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a backend's request to invoke a bound tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolDefinition advertises a bound tool to the backend.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Request carries everything a backend needs for one generation turn.
// Instructions is the agent's rendered prompt; Context is the run
// context at the time of the call; Messages holds the in-step turn
// history (tool results and prior assistant turns).
type Request struct {
	Model        string
	Instructions string
	Context      map[string]any
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  *float64
}

// Result is one generation outcome. Exactly one of Output, ToolCalls,
// or Handoff is meaningful: tool calls ask the engine to execute tools
// and call again, a handoff names another agent to continue with, and
// otherwise Output is the step's final text.
type Result struct {
	Output    string
	ToolCalls []ToolCall
	Handoff   string
}

// Backend generates a completion for an agent step turn.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

// ParseSelector splits a model selector into backend and model names.
// "openai/gpt-4.1" selects backend "openai" with model "gpt-4.1"; a
// bare selector like "echo" is both.
func ParseSelector(s string) (backendName, model string) {
	if i := strings.Index(s, "/"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, s
}

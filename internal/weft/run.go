package weft

import "time"

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final. A terminal run never
// changes again; updates against it are no-ops.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Run is one execution of a revision's compiled plan.
type Run struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id,omitempty"`
	RevisionID      string         `json:"revision_id"`
	Status          RunStatus      `json:"status"`
	Inputs          map[string]any `json:"inputs,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	GroupID         string         `json:"group_id,omitempty"`
	FinalOutput     string         `json:"final_output,omitempty"`
	Error           string         `json:"error,omitempty"`
	CancelRequested bool           `json:"cancel_requested"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
}

// RunFilter narrows ListRuns results. Zero fields are ignored.
type RunFilter struct {
	WorkflowID string
	RevisionID string
	Status     RunStatus
	Limit      int
	Offset     int
}

type EventType string

const (
	EventRunStarted         EventType = "run.started"
	EventStepStarted        EventType = "step.started"
	EventStepCompleted      EventType = "step.completed"
	EventStepFailed         EventType = "step.failed"
	EventToolCall           EventType = "tool.call"
	EventToolResult         EventType = "tool.result"
	EventGuardrailTriggered EventType = "guardrail.triggered"
	EventLoopIteration      EventType = "loop.iteration"
	EventHandoff            EventType = "handoff"
	EventRunCompleted       EventType = "run.completed"
	EventRunFailed          EventType = "run.failed"
	EventRunCancelled       EventType = "run.cancelled"
)

// Terminal reports whether the event type closes a run's trace. Every
// run's event log ends with exactly one terminal event.
func (t EventType) Terminal() bool {
	switch t {
	case EventRunCompleted, EventRunFailed, EventRunCancelled:
		return true
	}
	return false
}

// Event is one entry in a run's append-only trace. Seq is assigned by
// the event store and is gap-free per run, starting at 1.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Seq       int64          `json:"seq"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

package weft

import "time"

// Workflow is a named container for revisions.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Revision is an immutable snapshot of a workflow's document. Version
// increases by one per distinct save; saving a document whose content
// hash matches the head revision returns the head instead of minting a
// new version.
type Revision struct {
	ID          string        `json:"id"`
	WorkflowID  string        `json:"workflow_id"`
	Version     int           `json:"version"`
	ContentHash string        `json:"content_hash"`
	Document    GraphDocument `json:"document"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Schedule fires runs of a workflow's latest revision on a cron
// expression (six fields, with seconds).
type Schedule struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Cron       string         `json:"cron"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Enabled    bool           `json:"enabled"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ValidationIssue is one structural problem found in a document.
// Code is stable and machine-readable; NodeID/EdgeID are set when the
// issue is anchored to a specific node or edge.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
}

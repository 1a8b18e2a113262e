package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Workflow is a named canvas whose translated revisions are stored.
type Workflow struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	LatestVersion int       `json:"latest_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WorkflowUpdate holds the mutable workflow fields. Nil fields are left
// untouched.
type WorkflowUpdate struct {
	Name        *string
	Description *string
}

// WorkflowFilter narrows ListWorkflows.
type WorkflowFilter struct {
	NamePrefix string
	Since      *time.Time
	Limit      int
	Offset     int
}

// Revision is one accepted save: the authored graph and the step program it
// translated to.
type Revision struct {
	WorkflowID string        `json:"workflow_id"`
	Version    int           `json:"version"`
	Graph      schema.Graph  `json:"graph"`
	Steps      []schema.Step `json:"steps"`
	Warnings   []string      `json:"warnings,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RevisionSummary is the listing form of a Revision.
type RevisionSummary struct {
	WorkflowID string    `json:"workflow_id"`
	Version    int       `json:"version"`
	StepCount  int       `json:"step_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is an entry in the per-workflow audit log.
type Event struct {
	ID         int64           `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	NodeID     string          `json:"node_id,omitempty"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// EventFilter narrows GetEventsByType.
type EventFilter struct {
	WorkflowID string
	NodeID     string
	Since      *time.Time
	Limit      int
}

// SavePayload is the payload of revision.saved and save.rejected events.
type SavePayload struct {
	Version   int      `json:"version,omitempty"`
	StepCount int      `json:"step_count"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

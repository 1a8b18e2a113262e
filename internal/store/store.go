package store

import "context"

// Store defines the persistence layer for saved canvases.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Revisions (immutable once written)
	SaveRevision(ctx context.Context, rev *Revision) error
	GetRevision(ctx context.Context, workflowID string, version int) (*Revision, error)
	LatestRevision(ctx context.Context, workflowID string) (*Revision, error)
	ListRevisions(ctx context.Context, workflowID string) ([]*RevisionSummary, error)

	// Audit log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}

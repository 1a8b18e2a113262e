package schema

// Event type constants shared by the canvas event hub and the audit log.
const (
	EventNodeAdded       = "node.added"
	EventNodeRemoved     = "node.removed"
	EventNodeUpdated     = "node.updated"
	EventEdgeAssigned    = "edge.assigned"
	EventEdgeRemoved     = "edge.removed"
	EventEdgesRelabeled  = "edges.relabeled"
	EventGraphTranslated = "graph.translated"

	EventRevisionSaved   = "revision.saved"
	EventSaveRejected    = "save.rejected"
	EventWorkflowDeleted = "workflow.deleted"
)

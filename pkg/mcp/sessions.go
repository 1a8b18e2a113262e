package mcp

import (
	"slices"
	"sync"
)

// SessionRegistry tracks which MCP sessions are interested in which
// workflows. A session is registered for a workflow whenever it calls a
// tool that names that workflow.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // workflowID → sessionIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]map[string]struct{})}
}

// Watch subscribes a session to a workflow. Repeated calls are no-ops.
func (r *SessionRegistry) Watch(workflowID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[workflowID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[workflowID] = set
	}
	set[sessionID] = struct{}{}
}

// Watchers returns the sessions subscribed to a workflow, sorted.
func (r *SessionRegistry) Watchers(workflowID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.watchers[workflowID]))
	for sid := range r.watchers[workflowID] {
		out = append(out, sid)
	}
	slices.Sort(out)
	return out
}

// Remove drops a session from every workflow.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for wid, set := range r.watchers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, wid)
		}
	}
}

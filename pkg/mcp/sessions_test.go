package mcp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_WatchAndLookup(t *testing.T) {
	r := NewSessionRegistry()

	r.Watch("wf-1", "session-b")
	r.Watch("wf-1", "session-a")
	r.Watch("wf-1", "session-a")

	assert.Equal(t, []string{"session-a", "session-b"}, r.Watchers("wf-1"))
}

func TestSessionRegistry_NotFound(t *testing.T) {
	r := NewSessionRegistry()

	assert.Empty(t, r.Watchers("unknown"))
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()

	r.Watch("wf-1", "session-1")
	r.Watch("wf-2", "session-1")
	r.Watch("wf-2", "session-2")

	r.Remove("session-1")

	assert.Empty(t, r.Watchers("wf-1"))
	assert.Equal(t, []string{"session-2"}, r.Watchers("wf-2"))
}

func TestSessionRegistry_Concurrent(t *testing.T) {
	r := NewSessionRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sid := "session-" + string(rune('a'+i%26))
			r.Watch("wf", sid)
			_ = r.Watchers("wf")
			if i%5 == 0 {
				r.Remove(sid)
			}
		}()
	}
	wg.Wait()
}

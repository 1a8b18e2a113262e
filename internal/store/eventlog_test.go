package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/pkg/schema"
)

func newTestEventLog(t *testing.T) (*EventLog, *LibSQLStore) {
	t.Helper()
	s := newTestStore(t)
	return NewEventLog(s), s
}

func savePayload(t *testing.T, p SavePayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func TestEventLog_AppendEvent_MonotonicSequence(t *testing.T) {
	el, s := newTestEventLog(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	for i := 0; i < 5; i++ {
		e := &Event{WorkflowID: wf.ID, Type: schema.EventSaveRejected}
		require.NoError(t, el.AppendEvent(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence, "sequence should be monotonic")
	}
}

func TestEventLog_History(t *testing.T) {
	el, s := newTestEventLog(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	require.NoError(t, el.AppendEvent(ctx, &Event{
		WorkflowID: wf.ID, Type: schema.EventSaveRejected,
		Payload: savePayload(t, SavePayload{Errors: []string{"no start node"}}),
	}))
	require.NoError(t, el.AppendEvent(ctx, &Event{
		WorkflowID: wf.ID, Type: "custom.note",
	}))
	require.NoError(t, el.AppendEvent(ctx, &Event{
		WorkflowID: wf.ID, Type: schema.EventRevisionSaved,
		Payload: savePayload(t, SavePayload{Version: 1, StepCount: 3, Warnings: []string{"w"}}),
	}))

	history, err := el.History(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "unrelated events are skipped")

	assert.False(t, history[0].Accepted)
	assert.Equal(t, []string{"no start node"}, history[0].Errors)
	assert.Equal(t, int64(1), history[0].Sequence)

	assert.True(t, history[1].Accepted)
	assert.Equal(t, 1, history[1].Version)
	assert.Equal(t, 3, history[1].StepCount)
	assert.Equal(t, int64(3), history[1].Sequence)
}

func TestEventLog_History_Empty(t *testing.T) {
	el, s := newTestEventLog(t)
	wf := seedWorkflow(t, s)

	history, err := el.History(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)
}

func TestEventLog_History_SequenceGap(t *testing.T) {
	el, s := newTestEventLog(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	require.NoError(t, el.AppendEvent(ctx, &Event{WorkflowID: wf.ID, Type: schema.EventRevisionSaved}))
	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO events (workflow_id, event_type, timestamp, sequence) VALUES (?, ?, CURRENT_TIMESTAMP, 5)`,
		wf.ID, schema.EventRevisionSaved)
	require.NoError(t, err)

	_, err = el.History(ctx, wf.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence gap")
}

func TestEventLog_History_MalformedPayload(t *testing.T) {
	el, s := newTestEventLog(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	require.NoError(t, el.AppendEvent(ctx, &Event{
		WorkflowID: wf.ID, Type: schema.EventRevisionSaved, Payload: json.RawMessage(`[1,2]`),
	}))

	_, err := el.History(ctx, wf.ID)
	requireCode(t, err, schema.ErrCodeStore)
}

func TestEventLog_ConcurrentAppend_DifferentWorkflows(t *testing.T) {
	el, s := newTestEventLog(t)
	ctx := context.Background()

	var workflows []*Workflow
	for i := 0; i < 5; i++ {
		workflows = append(workflows, seedWorkflow(t, s))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 50)

	for _, wf := range workflows {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := el.AppendEvent(ctx, &Event{WorkflowID: wf.ID, Type: schema.EventSaveRejected}); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent append error: %v", err)
	}

	for _, wf := range workflows {
		events, err := el.GetEvents(ctx, wf.ID, 0)
		require.NoError(t, err)
		assert.Len(t, events, 10)
		for i, e := range events {
			assert.Equal(t, int64(i+1), e.Sequence)
		}
	}
}

func TestEventLog_WorkflowScopedSequences(t *testing.T) {
	el, s := newTestEventLog(t)
	ctx := context.Background()

	wf1 := seedWorkflow(t, s)
	wf2 := seedWorkflow(t, s)

	require.NoError(t, el.AppendEvent(ctx, &Event{WorkflowID: wf1.ID, Type: schema.EventSaveRejected}))
	require.NoError(t, el.AppendEvent(ctx, &Event{WorkflowID: wf1.ID, Type: schema.EventRevisionSaved}))

	e := &Event{WorkflowID: wf2.ID, Type: schema.EventRevisionSaved}
	require.NoError(t, el.AppendEvent(ctx, e))
	assert.Equal(t, int64(1), e.Sequence, "wf2 should have its own sequence starting at 1")
}

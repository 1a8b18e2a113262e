package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/canvasflow/pkg/schema"
)

// EventLog provides audit-log operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide audit-log operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-workflow
// sequence, taking the write lock before the sequence is read.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := el.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx starts a deferred transaction; a write forces the lock.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a workflow with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, workflowID, since)
}

// SaveAttempt is one save recorded in the audit log.
type SaveAttempt struct {
	Sequence  int64     `json:"sequence"`
	Accepted  bool      `json:"accepted"`
	Version   int       `json:"version,omitempty"`
	StepCount int       `json:"step_count"`
	Errors    []string  `json:"errors,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// History replays the audit log of a workflow into its save attempts, oldest
// first. Returns an error if sequence gaps are detected.
func (el *EventLog) History(ctx context.Context, workflowID string) ([]SaveAttempt, error) {
	events, err := el.store.GetEvents(ctx, workflowID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in workflow %s: expected %d, got %d", workflowID, expected, e.Sequence)
		}
	}

	attempts := []SaveAttempt{}
	for _, e := range events {
		var accepted bool
		switch e.Type {
		case schema.EventRevisionSaved:
			accepted = true
		case schema.EventSaveRejected:
		default:
			continue
		}

		var p SavePayload
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStore,
					"event %d of workflow %s has a malformed payload", e.Sequence, workflowID).WithCause(err)
			}
		}
		attempts = append(attempts, SaveAttempt{
			Sequence:  e.Sequence,
			Accepted:  accepted,
			Version:   p.Version,
			StepCount: p.StepCount,
			Errors:    p.Errors,
			Warnings:  p.Warnings,
			Timestamp: e.Timestamp,
		})
	}
	return attempts, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/canvasflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/canvasflow.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB (used by the event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	_, err := runMigrations(ctx, s.db)
	return err
}

// SchemaVersion returns the highest applied migration.
func (s *LibSQLStore) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

const workflowColumns = `w.id, w.name, w.description, w.created_at, w.updated_at,
	(SELECT COALESCE(MAX(r.version), 0) FROM revisions r WHERE r.workflow_id = w.id)`

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	if wf.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	wf.CreatedAt = timeOrNow(wf.CreatedAt)
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = wf.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, nullStr(wf.Description), wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID).WithCause(err)
		}
		return err
	}
	return nil
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows w WHERE w.id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	return wf, err
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	var where []string
	var args []any

	if filter.NamePrefix != "" {
		where = append(where, "w.name LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(filter.NamePrefix)+"%")
	}
	if filter.Since != nil {
		where = append(where, "w.updated_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT " + workflowColumns + " FROM workflows w"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY w.updated_at DESC, w.id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	wf := &Workflow{}
	var desc sql.NullString
	if err := row.Scan(&wf.ID, &wf.Name, &desc, &wf.CreatedAt, &wf.UpdatedAt, &wf.LatestVersion); err != nil {
		return nil, err
	}
	wf.Description = desc.String
	return wf, nil
}

// --- Revisions ---

// SaveRevision stores rev as the workflow's next version and sets
// rev.Version. A non-zero rev.Version is treated as the expected next
// version; a mismatch returns a CONFLICT error.
func (s *LibSQLStore) SaveRevision(ctx context.Context, rev *Revision) error {
	graphJSON, err := json.Marshal(rev.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	steps := rev.Steps
	if steps == nil {
		steps = []schema.Step{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	var warningsJSON any
	if len(rev.Warnings) > 0 {
		b, err := json.Marshal(rev.Warnings)
		if err != nil {
			return fmt.Errorf("marshal warnings: %w", err)
		}
		warningsJSON = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rev.CreatedAt = timeOrNow(rev.CreatedAt)

	// Touching the parent first takes the write lock and proves it exists.
	res, err := tx.ExecContext(ctx, `UPDATE workflows SET updated_at = ? WHERE id = ?`, rev.CreatedAt, rev.WorkflowID)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "workflow", rev.WorkflowID); err != nil {
		return err
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM revisions WHERE workflow_id = ?`, rev.WorkflowID,
	).Scan(&next); err != nil {
		return fmt.Errorf("get next version: %w", err)
	}
	if rev.Version != 0 && rev.Version != next {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %q: expected version %d, next version is %d", rev.WorkflowID, rev.Version, next)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO revisions (workflow_id, version, graph, steps, warnings, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rev.WorkflowID, next, string(graphJSON), string(stepsJSON), warningsJSON, rev.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revision: %w", err)
	}
	rev.Version = next
	return nil
}

func (s *LibSQLStore) GetRevision(ctx context.Context, workflowID string, version int) (*Revision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, version, graph, steps, warnings, created_at
		 FROM revisions WHERE workflow_id = ? AND version = ?`, workflowID, version)
	rev, err := scanRevision(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("revision", fmt.Sprintf("%s@%d", workflowID, version))
	}
	return rev, err
}

func (s *LibSQLStore) LatestRevision(ctx context.Context, workflowID string) (*Revision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, version, graph, steps, warnings, created_at
		 FROM revisions WHERE workflow_id = ? ORDER BY version DESC LIMIT 1`, workflowID)
	rev, err := scanRevision(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("revision", workflowID)
	}
	return rev, err
}

func (s *LibSQLStore) ListRevisions(ctx context.Context, workflowID string) ([]*RevisionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, version, json_array_length(steps), created_at
		 FROM revisions WHERE workflow_id = ? ORDER BY version ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RevisionSummary
	for rows.Next() {
		rs := &RevisionSummary{}
		if err := rows.Scan(&rs.WorkflowID, &rs.Version, &rs.StepCount, &rs.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func scanRevision(row rowScanner) (*Revision, error) {
	rev := &Revision{}
	var graphJSON, stepsJSON string
	var warnings sql.NullString
	if err := row.Scan(&rev.WorkflowID, &rev.Version, &graphJSON, &stepsJSON, &warnings, &rev.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(graphJSON), &rev.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &rev.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if raw := rawOrNil(warnings); raw != nil {
		if err := json.Unmarshal(raw, &rev.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return rev, nil
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

// insertEvent assigns the next per-workflow sequence and writes the event
// inside tx.
func insertEvent(ctx context.Context, tx *sql.Tx, event *Event) error {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE workflow_id = ?`, event.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (workflow_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.WorkflowID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storeNotFound("workflow", event.WorkflowID)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	event.Sequence = seq
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, node_id, event_type, payload, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, workflow_id, node_id, event_type, payload, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.CanvasError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

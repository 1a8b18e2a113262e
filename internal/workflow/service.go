// Package workflow ties translation, validation and persistence together
// behind the operations the CLI and the MCP server expose.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/internal/translate"
	"github.com/rendis/canvasflow/internal/validation"
	"github.com/rendis/canvasflow/pkg/schema"
)

// AuditLog abstracts the event log operations needed by the service.
// Satisfied by *store.EventLog and test mocks.
type AuditLog interface {
	AppendEvent(ctx context.Context, event *store.Event) error
	History(ctx context.Context, workflowID string) ([]store.SaveAttempt, error)
}

// Config wires a Service. Validator, Hub and Logger are optional.
type Config struct {
	Store     store.Store
	Audit     AuditLog
	Validator validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
	// Strict makes warnings block a save.
	Strict bool
}

// Service is safe for concurrent use.
type Service struct {
	store     store.Store
	audit     AuditLog
	validator validation.Validator
	hub       streaming.EventHub
	logger    *slog.Logger
	strict    bool
}

// NewService creates a Service from cfg.
func NewService(cfg Config) *Service {
	s := &Service{
		store:     cfg.Store,
		audit:     cfg.Audit,
		validator: cfg.Validator,
		hub:       cfg.Hub,
		logger:    cfg.Logger,
		strict:    cfg.Strict,
	}
	if s.hub == nil {
		s.hub = streaming.Discard
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SaveResult is returned by Save. Revision is nil when the save was rejected.
type SaveResult struct {
	Workflow    *store.Workflow           `json:"workflow,omitempty"`
	Revision    *store.Revision           `json:"revision,omitempty"`
	Translation *schema.TranslationResult `json:"translation"`
}

// Translate validates and translates a snapshot of g. The result is always
// non-nil; a panic inside translation is reported as an INTERNAL_ERROR issue.
func (s *Service) Translate(ctx context.Context, g schema.Graph) *schema.TranslationResult {
	snapshot := g.Clone()
	var vr *schema.ValidationResult
	if s.validator != nil {
		vr = s.validator.Validate(snapshot)
	}
	return s.translateChecked(ctx, snapshot, vr)
}

// TranslateDocument decodes a JSON graph document and translates it. A
// document that fails the structural checks yields no steps.
func (s *Service) TranslateDocument(ctx context.Context, raw []byte) (schema.Graph, *schema.TranslationResult) {
	g, vr := s.decode(raw)
	if !vr.Valid() {
		return g, schema.NewTranslationResult(nil, vr)
	}
	return g, s.translateChecked(ctx, g, vr)
}

// decode validates raw with the configured validator, or only unmarshals it
// when there is none.
func (s *Service) decode(raw []byte) (schema.Graph, *schema.ValidationResult) {
	if s.validator != nil {
		return s.validator.ValidateDocument(raw)
	}
	var g schema.Graph
	vr := &schema.ValidationResult{}
	if err := json.Unmarshal(raw, &g); err != nil {
		vr.AddError("/", schema.ErrCodeValidation, "cannot decode graph: "+err.Error())
		return schema.Graph{}, vr
	}
	return g, vr
}

// translateChecked translates g and folds in an already computed
// validation result.
func (s *Service) translateChecked(ctx context.Context, g schema.Graph, vr *schema.ValidationResult) *schema.TranslationResult {
	snapshot := g
	res := s.safeTranslate(ctx, snapshot)
	mergeValidation(res, vr)

	logging.LogWith(ctx, s.logger).Debug("graph translated",
		"nodes", len(snapshot.Nodes),
		"steps", len(res.Steps),
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
	)
	s.publish(ctx, logging.WorkflowID(ctx), schema.EventGraphTranslated, map[string]any{
		"steps":    len(res.Steps),
		"errors":   res.Errors,
		"warnings": res.Warnings,
	})
	return res
}

// Save translates g and, when the result has no errors, stores it as the
// next revision of workflow id. The workflow is created by the first
// accepted save; a rejected save writes nothing for an unknown id. Attempts
// on existing workflows are recorded in the audit log. A rejected save
// returns a VALIDATION_ERROR along with the SaveResult describing why.
func (s *Service) Save(ctx context.Context, id string, g schema.Graph) (*SaveResult, error) {
	if id == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	ctx = logging.WithWorkflowID(ctx, id)
	log := logging.LogWith(ctx, s.logger)

	res := s.Translate(ctx, g)
	out := &SaveResult{Translation: res}

	if blocked := s.blocking(res); len(blocked) > 0 {
		existing, err := s.store.GetWorkflow(ctx, id)
		if err == nil {
			out.Workflow = existing
			s.appendEvent(ctx, id, schema.EventSaveRejected, store.SavePayload{
				StepCount: len(res.Steps),
				Errors:    blocked,
				Warnings:  res.Warnings,
			})
		} else {
			log.Debug("rejected save not audited", "error", err)
		}
		s.publish(ctx, id, schema.EventSaveRejected, map[string]any{"errors": blocked})
		log.Info("save rejected", "errors", len(blocked))
		return out, schema.NewErrorf(schema.ErrCodeValidation,
			"workflow %q not saved: %d blocking issue(s)", id, len(blocked)).
			WithDetails(map[string]any{"errors": blocked})
	}

	wf, err := s.ensureWorkflow(ctx, id, g)
	if err != nil {
		return nil, err
	}
	out.Workflow = wf

	rev := &store.Revision{
		WorkflowID: id,
		Graph:      g.Clone(),
		Steps:      res.Steps,
		Warnings:   res.Warnings,
	}
	if err := s.store.SaveRevision(ctx, rev); err != nil {
		return out, err
	}
	out.Revision = rev
	wf.LatestVersion = rev.Version
	wf.UpdatedAt = rev.CreatedAt

	s.appendEvent(ctx, id, schema.EventRevisionSaved, store.SavePayload{
		Version:   rev.Version,
		StepCount: len(rev.Steps),
		Warnings:  rev.Warnings,
	})
	s.publish(ctx, id, schema.EventRevisionSaved, map[string]any{"version": rev.Version})
	log.Info("revision saved", "version", rev.Version, "steps", len(rev.Steps))
	return out, nil
}

// Get returns a workflow and one of its revisions. version 0 selects the
// latest; a workflow without revisions returns a nil revision.
func (s *Service) Get(ctx context.Context, id string, version int) (*store.Workflow, *store.Revision, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if version == 0 {
		if wf.LatestVersion == 0 {
			return wf, nil, nil
		}
		rev, err := s.store.LatestRevision(ctx, id)
		return wf, rev, err
	}
	rev, err := s.store.GetRevision(ctx, id, version)
	return wf, rev, err
}

// List returns stored workflows matching filter.
func (s *Service) List(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	return s.store.ListWorkflows(ctx, filter)
}

// Revisions lists the stored versions of a workflow.
func (s *Service) Revisions(ctx context.Context, id string) ([]*store.RevisionSummary, error) {
	if _, err := s.store.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, id)
}

// History returns every recorded save attempt of a workflow.
func (s *Service) History(ctx context.Context, id string) ([]store.SaveAttempt, error) {
	if s.audit == nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "audit log not configured")
	}
	return s.audit.History(ctx, id)
}

// Delete removes a workflow with its revisions and audit log.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	ctx = logging.WithWorkflowID(ctx, id)
	s.publish(ctx, id, schema.EventWorkflowDeleted, nil)
	logging.LogWith(ctx, s.logger).Info("workflow deleted")
	return nil
}

// ensureWorkflow retrieves an existing workflow or creates it from g's
// name and description.
func (s *Service) ensureWorkflow(ctx context.Context, id string, g schema.Graph) (*store.Workflow, error) {
	existing, err := s.store.GetWorkflow(ctx, id)
	if err == nil {
		return existing, nil
	}

	var ce *schema.CanvasError
	if !errors.As(err, &ce) || ce.Code != schema.ErrCodeNotFound {
		return nil, err
	}

	wf := &store.Workflow{ID: id, Name: g.Name, Description: g.Description}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		// Lost a create race; the winner's record is what we want.
		if errors.As(err, &ce) && ce.Code == schema.ErrCodeConflict {
			return s.store.GetWorkflow(ctx, id)
		}
		return nil, err
	}
	logging.LogWith(ctx, s.logger).Info("workflow created", "name", wf.Name)
	return wf, nil
}

// blocking returns the messages that prevent a save.
func (s *Service) blocking(res *schema.TranslationResult) []string {
	if !s.strict {
		return res.Errors
	}
	out := make([]string, 0, len(res.Errors)+len(res.Warnings))
	out = append(out, res.Errors...)
	return append(out, res.Warnings...)
}

func (s *Service) appendEvent(ctx context.Context, id, eventType string, payload store.SavePayload) {
	if s.audit == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		logging.LogWith(ctx, s.logger).Warn("encode audit payload", "error", err)
		return
	}
	if err := s.audit.AppendEvent(ctx, &store.Event{WorkflowID: id, Type: eventType, Payload: raw}); err != nil {
		logging.LogWith(ctx, s.logger).Warn("append audit event", "type", eventType, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, workflowID, eventType string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		raw = b
	}
	err := s.hub.Publish(ctx, streaming.StreamEvent{
		SessionID:  logging.SessionID(ctx),
		WorkflowID: workflowID,
		EventType:  eventType,
		Payload:    raw,
	})
	if err != nil {
		logging.LogWith(ctx, s.logger).Debug("publish event", "type", eventType, "error", err)
	}
}

// safeTranslate runs translate.Translate, converting a panic into an
// INTERNAL_ERROR issue.
func (s *Service) safeTranslate(ctx context.Context, g schema.Graph) (res *schema.TranslationResult) {
	defer func() {
		if r := recover(); r != nil {
			vr := &schema.ValidationResult{}
			vr.AddError("/", schema.ErrCodeInternal, fmt.Sprintf("translation failed: %v", r))
			res = schema.NewTranslationResult(nil, vr)
			logging.LogWith(ctx, s.logger).Error("translation panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return translateFunc(g)
}

// translateFunc is swapped in tests to exercise panic recovery.
var translateFunc = translate.Translate

// mergeValidation appends validator issues to res, skipping messages the
// translation already reported.
func mergeValidation(res *schema.TranslationResult, vr *schema.ValidationResult) {
	if vr == nil {
		return
	}
	seen := make(map[string]bool, len(res.Errors)+len(res.Warnings))
	for _, m := range res.Errors {
		seen[m] = true
	}
	for _, m := range res.Warnings {
		seen[m] = true
	}
	for _, issue := range vr.Errors {
		if seen[issue.Message] {
			continue
		}
		seen[issue.Message] = true
		res.Errors = append(res.Errors, issue.Message)
		res.Issues = append(res.Issues, issue)
	}
	for _, issue := range vr.Warnings {
		if seen[issue.Message] {
			continue
		}
		seen[issue.Message] = true
		res.Warnings = append(res.Warnings, issue.Message)
		res.Issues = append(res.Issues, issue)
	}
}

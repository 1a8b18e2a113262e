package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/canvasflow/internal/actions"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/internal/validation"
	"github.com/rendis/canvasflow/internal/workflow"
)

// app carries the wired dependencies one command runs against.
type app struct {
	cfg       Config
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
	engines   *expressions.Registry
	catalog   *actions.Catalog
	validator *validation.WorkflowValidator
	hub       *streaming.MemoryHub
	store     *store.LibSQLStore
	service   *workflow.Service
}

// newApp wires everything except storage. Commands that persist call
// openStore before touching the service.
func newApp(cfg Config, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	))

	engines, err := expressions.NewRegistry(cfg.ExpressionEngine)
	if err != nil {
		return nil, err
	}
	var (
		catalog *actions.Catalog
		lookup  validation.ActionLookup
	)
	if cfg.ActionsFile != "" {
		catalog, err = actions.Load(cfg.ActionsFile)
		if err != nil {
			return nil, err
		}
		lookup = catalog
		logger.Debug("action catalog loaded", "path", cfg.ActionsFile, "actions", catalog.Count())
	}
	validator, err := validation.NewWorkflowValidator(engines, lookup)
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}

	a := &app{
		cfg:       cfg,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		logger:    logger,
		engines:   engines,
		catalog:   catalog,
		validator: validator,
		hub:       streaming.NewMemoryHub(),
	}
	a.service = a.newService(nil)
	return a, nil
}

func (a *app) newService(st *store.LibSQLStore) *workflow.Service {
	cfg := workflow.Config{
		Validator: a.validator,
		Hub:       a.hub,
		Logger:    a.logger,
		Strict:    a.cfg.Strict,
	}
	if st != nil {
		cfg.Store = st
		cfg.Audit = store.NewEventLog(st)
	}
	return workflow.NewService(cfg)
}

// openStore opens and migrates the configured database and rebuilds the
// service on top of it.
func (a *app) openStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if dir := filepath.Dir(a.cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	st, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return fmt.Errorf("migrate %s: %w", a.cfg.DBPath, err)
	}
	a.store = st
	a.service = a.newService(st)
	a.logger.Debug("store opened", "path", a.cfg.DBPath)
	return nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}

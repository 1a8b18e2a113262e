package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rendis/canvasflow/internal/actions"
	"github.com/rendis/canvasflow/internal/diagram"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/preview"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/internal/workflow"
	"github.com/rendis/canvasflow/pkg/mcp"
	"github.com/rendis/canvasflow/pkg/schema"
)

var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// --- translate ---

func runTranslate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "translate", "[flags] file...")
	workflowID := fs.String("workflow", "", "workflow id attached to log lines and events")
	text := fs.Bool("text", false, "print a readable listing instead of JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErrorf("translate needs at least one graph file")
	}
	if *workflowID != "" {
		ctx = logging.WithWorkflowID(ctx, *workflowID)
	}

	if fs.NArg() == 1 {
		raw, err := readInput(a, fs.Arg(0))
		if err != nil {
			return err
		}
		_, res := a.service.TranslateDocument(ctx, raw)
		if *text {
			printTranslation(a.stdout, fs.Arg(0), res)
		} else if err := writeJSON(a.stdout, res); err != nil {
			return err
		}
		if !res.Valid() {
			return errInvalid
		}
		return nil
	}

	docs := make([]workflow.Document, 0, fs.NArg())
	for _, name := range fs.Args() {
		raw, err := readInput(a, name)
		if err != nil {
			return err
		}
		docs = append(docs, workflow.Document{Name: name, Raw: raw})
	}

	items, metrics := a.service.TranslateBatch(ctx, docs, a.cfg.Concurrency)
	logging.LogWith(ctx, a.logger).Debug("batch translated",
		"documents", len(items),
		"completed", metrics.Completed,
		"failed", metrics.Failed,
		"panics", metrics.Panics,
	)

	if *text {
		for _, it := range items {
			printTranslation(a.stdout, it.Name, it.Result)
		}
	} else if err := writeJSON(a.stdout, items); err != nil {
		return err
	}

	invalid := 0
	for _, it := range items {
		if !it.Result.Valid() {
			invalid++
		}
	}
	if invalid > 0 {
		fmt.Fprintf(a.stderr, "%d of %d graph(s) have errors\n", invalid, len(items))
		return errInvalid
	}
	return nil
}

func printTranslation(w io.Writer, name string, res *schema.TranslationResult) {
	fmt.Fprintf(w, "== %s: %d step(s), %d error(s), %d warning(s)\n",
		name, len(res.Steps), len(res.Errors), len(res.Warnings))
	for _, s := range res.Steps {
		fmt.Fprintf(w, "  %d. %s [%s]\n", s.Order+1, s.Name, s.Type)
		for _, b := range s.Branches {
			fmt.Fprintf(w, "       %s -> %s\n", b.ConditionLabel, b.TargetNodeID)
		}
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}

// --- diagram ---

func runDiagram(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "diagram", "[flags] [file]")
	format := fs.String("format", "ascii", "output format: mermaid, ascii or image")
	out := fs.String("o", "", "write to this file instead of stdout")
	dataPath := fs.String("data", "", "sample data file; highlights the path it takes")
	steps := fs.Bool("steps", true, "number nodes by step order and flag nodes with issues")
	workflowID := fs.String("workflow", "", "draw a stored workflow instead of a file")
	version := fs.Int("version", 0, "revision of -workflow to draw (0 = latest)")
	if err := parse(fs, args); err != nil {
		return err
	}

	var render func(*diagram.DiagramModel) ([]byte, error)
	switch *format {
	case "mermaid":
		render = func(m *diagram.DiagramModel) ([]byte, error) { return withNewline(diagram.RenderMermaid(m)), nil }
	case "ascii":
		render = func(m *diagram.DiagramModel) ([]byte, error) { return withNewline(diagram.RenderASCII(m)), nil }
	case "image", "png":
		render = func(m *diagram.DiagramModel) ([]byte, error) { return diagram.RenderImage(ctx, m) }
	default:
		return usageErrorf("unknown format %q; use mermaid, ascii or image", *format)
	}

	g, err := loadGraph(ctx, a, fs, *workflowID, *version)
	if err != nil {
		return err
	}
	if *workflowID != "" {
		ctx = logging.WithWorkflowID(ctx, *workflowID)
	}

	var opts diagram.Options
	if *steps {
		opts.Translation = a.service.Translate(ctx, g)
	}
	if *dataPath != "" {
		data, err := readData(a, *dataPath)
		if err != nil {
			return err
		}
		path, err := preview.Trace(ctx, g, data, a.previewOptions(g, *workflowID))
		if err != nil {
			return err
		}
		opts.Path = path
	}

	model, err := diagram.Build(g, opts)
	if err != nil {
		return err
	}
	payload, err := render(model)
	if err != nil {
		return err
	}
	return writeOutput(ctx, a, *out, payload)
}

func withNewline(s string) []byte {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return []byte(s)
}

// --- preview ---

func runPreview(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "preview", "[flags] [file]")
	dataPath := fs.String("data", "", "sample data file: inputs plus optional approvals and outputs")
	workflowID := fs.String("workflow", "", "trace a stored workflow instead of a file")
	version := fs.Int("version", 0, "revision of -workflow to trace (0 = latest)")
	if err := parse(fs, args); err != nil {
		return err
	}

	g, err := loadGraph(ctx, a, fs, *workflowID, *version)
	if err != nil {
		return err
	}
	data, err := readData(a, *dataPath)
	if err != nil {
		return err
	}
	path, err := preview.Trace(ctx, g, data, a.previewOptions(g, *workflowID))
	if err != nil {
		return err
	}
	for _, w := range path.Warnings {
		logging.LogWith(ctx, a.logger).Debug("preview warning", "warning", w)
	}
	return writeJSON(a.stdout, path)
}

func (a *app) previewOptions(g schema.Graph, workflowID string) preview.Options {
	meta := map[string]any{"name": g.Name}
	if workflowID != "" {
		meta["id"] = workflowID
	}
	return preview.Options{Engines: a.engines, Inputs: a.validator, Workflow: meta}
}

// --- actions ---

func runActions(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "actions", "")
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.catalog == nil {
		return schema.NewError(schema.ErrCodeConfig, "no action catalog configured; set actions_file or CANVASFLOW_ACTIONS_FILE")
	}
	return writeJSON(a.stdout, a.catalog.List())
}

// --- save / get / list / history / delete ---

func runSave(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "save", "-id <workflow> [flags] file")
	id := fs.String("id", "", "workflow id (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageErrorf("save needs -id")
	}
	if fs.NArg() != 1 {
		return usageErrorf("save needs exactly one graph file")
	}

	raw, err := readInput(a, fs.Arg(0))
	if err != nil {
		return err
	}
	g, err := decodeGraph(fs.Arg(0), raw)
	if err != nil {
		return err
	}

	res, err := a.service.Save(ctx, *id, g)
	if res != nil {
		if werr := writeJSON(a.stdout, res); werr != nil {
			return werr
		}
	}
	return err
}

func runGet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "get", "-id <workflow> [-version n]")
	id := fs.String("id", "", "workflow id (required)")
	version := fs.Int("version", 0, "revision to print (0 = latest)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageErrorf("get needs -id")
	}

	wf, rev, err := a.service.Get(ctx, *id, *version)
	if err != nil {
		return err
	}
	return writeJSON(a.stdout, map[string]any{"workflow": wf, "revision": rev})
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "list", "[flags]")
	prefix := fs.String("prefix", "", "only workflows whose name starts with this")
	limit := fs.Int("limit", 50, "maximum number of workflows")
	offset := fs.Int("offset", 0, "number of workflows to skip")
	if err := parse(fs, args); err != nil {
		return err
	}

	wfs, err := a.service.List(ctx, store.WorkflowFilter{
		NamePrefix: *prefix,
		Limit:      *limit,
		Offset:     *offset,
	})
	if err != nil {
		return err
	}
	if wfs == nil {
		wfs = []*store.Workflow{}
	}
	return writeJSON(a.stdout, wfs)
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "history", "-id <workflow> [flags]")
	id := fs.String("id", "", "workflow id")
	resource := fs.String("resource", "attempts", "what to show: revisions, attempts or events")
	after := fs.Int64("after", 0, "events only: skip events up to this sequence")
	eventType := fs.String("type", "", "events only: filter by event type across workflows")
	limit := fs.Int("limit", 0, "events only: maximum events when filtering by -type")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" && !(*resource == "events" && *eventType != "") {
		return usageErrorf("history needs -id")
	}

	switch *resource {
	case "revisions":
		revs, err := a.service.Revisions(ctx, *id)
		if err != nil {
			return err
		}
		return writeJSON(a.stdout, revs)
	case "attempts":
		attempts, err := a.service.History(ctx, *id)
		if err != nil {
			return err
		}
		return writeJSON(a.stdout, attempts)
	case "events":
		var (
			events []*store.Event
			err    error
		)
		if *eventType != "" {
			events, err = a.store.GetEventsByType(ctx, *eventType, store.EventFilter{WorkflowID: *id, Limit: *limit})
		} else {
			events, err = a.store.GetEvents(ctx, *id, *after)
		}
		if err != nil {
			return err
		}
		if events == nil {
			events = []*store.Event{}
		}
		return writeJSON(a.stdout, events)
	default:
		return usageErrorf("unknown resource %q; use revisions, attempts or events", *resource)
	}
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "delete", "-id <workflow>")
	id := fs.String("id", "", "workflow id (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageErrorf("delete needs -id")
	}
	if err := a.service.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", *id)
	return nil
}

// --- serve ---

func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "serve", "")
	if err := parse(fs, args); err != nil {
		return err
	}

	srv := mcp.NewCanvasServer(mcp.ServerDeps{
		Service: a.service,
		Store:   a.store,
		Engines: a.engines,
		Inputs:  a.validator,
		Hub:     a.hub,
		Logger:  a.logger,
		Version: version,
	})
	a.logger.Info("canvasflow MCP server on stdio", "version", version, "db", a.cfg.DBPath)

	err := srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// --- init ---

// runInit writes dir/settings.json from flags, starting from the current
// file contents. Environment overrides are not persisted.
func runInit(dir string, args []string, stdout, stderr io.Writer) error {
	current, err := loadConfigFrom(dir, func(string) string { return "" })
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db-path", current.DBPath, "database path")
	logLevel := fs.String("log-level", current.LogLevel, "log level: debug, info, warn, error")
	engine := fs.String("expression-engine", current.ExpressionEngine, "default condition language: expr, cel or jq")
	strict := fs.Bool("strict", current.Strict, "reject saves that have warnings")
	concurrency := fs.Int("concurrency", current.Concurrency, "batch translation workers")
	actionsFile := fs.String("actions-file", current.ActionsFile, "action catalog checked against AutomatedTask nodes")
	if err := parse(fs, args); err != nil {
		return err
	}

	next := Config{
		DBPath:           *dbPath,
		LogLevel:         *logLevel,
		ExpressionEngine: *engine,
		Strict:           *strict,
		Concurrency:      *concurrency,
		ActionsFile:      *actionsFile,
	}
	if next.ActionsFile != "" {
		if _, err := actions.Load(next.ActionsFile); err != nil {
			return err
		}
	}
	if _, err := parseLevel(next.LogLevel); err != nil {
		return err
	}
	if _, err := expressions.NewRegistry(next.ExpressionEngine); err != nil {
		return err
	}
	if next.Concurrency < 1 {
		return usageErrorf("concurrency must be at least 1")
	}

	path, err := saveConfig(dir, next)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Config written to %s\n", path)
	if changed := changedFields(current, next); len(changed) > 0 {
		fmt.Fprintf(stdout, "Changed: %s\n", strings.Join(changed, ", "))
	}
	return nil
}

// --- Helpers ---

func newFlagSet(a *app, name, argsUsage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: canvasflow %s %s\n\nFlags:\n", name, argsUsage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %s", errUsage, err.Error())
}

// readInput reads a file, or stdin when name is "-".
func readInput(a *app, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(a.stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func decodeGraph(name string, raw []byte) (schema.Graph, error) {
	var g schema.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return schema.Graph{}, schema.NewErrorf(schema.ErrCodeValidation, "decode %s: %s", name, err.Error())
	}
	return g, nil
}

func readData(a *app, path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := readInput(a, path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "sample data %s is not a JSON object: %s", path, err.Error())
	}
	return data, nil
}

// loadGraph reads the graph named on the command line, or a stored revision
// when workflowID is set.
func loadGraph(ctx context.Context, a *app, fs *flag.FlagSet, workflowID string, version int) (schema.Graph, error) {
	switch {
	case workflowID != "" && fs.NArg() > 0:
		return schema.Graph{}, usageErrorf("pass either a graph file or -workflow, not both")
	case workflowID != "":
		if err := a.openStore(ctx); err != nil {
			return schema.Graph{}, err
		}
		_, rev, err := a.service.Get(ctx, workflowID, version)
		if err != nil {
			return schema.Graph{}, err
		}
		if rev == nil {
			return schema.Graph{}, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q has no saved revision", workflowID)
		}
		return rev.Graph, nil
	case fs.NArg() == 1:
		raw, err := readInput(a, fs.Arg(0))
		if err != nil {
			return schema.Graph{}, err
		}
		return decodeGraph(fs.Arg(0), raw)
	default:
		return schema.Graph{}, usageErrorf("%s needs one graph file or -workflow", fs.Name())
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(ctx context.Context, a *app, path string, payload []byte) error {
	if path == "" {
		_, err := a.stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logging.LogWith(ctx, a.logger).Info("diagram written", "path", path, "bytes", len(payload))
	return nil
}

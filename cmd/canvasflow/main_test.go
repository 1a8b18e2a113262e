package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/internal/preview"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/internal/workflow"
	"github.com/rendis/canvasflow/pkg/schema"
)

const (
	onboardingFile = "../../examples/onboarding.json"
	expenseFile    = "../../examples/expense-approval.json"
	expenseData    = "../../examples/expense-approval.data.json"
)

// --- Helpers ---

// isolate points HOME and the database at a temp dir so no test reads or
// writes the real ~/.canvasflow.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CANVASFLOW_DB_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("CANVASFLOW_LOG_LEVEL", "error")
	return dir
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

// --- Dispatch ---

func TestRun_Version(t *testing.T) {
	r := runCLI(t, "", "version")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, version+"\n", r.stdout)
}

func TestRun_UsageErrors(t *testing.T) {
	isolate(t)

	r := runCLI(t, "")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "Usage: canvasflow")

	r = runCLI(t, "", "frobnicate")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, `unknown command "frobnicate"`)

	r = runCLI(t, "", "translate")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "at least one graph file")
}

func TestRun_BadConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("CANVASFLOW_EXPRESSION_ENGINE", "lua")

	r := runCLI(t, "", "translate", onboardingFile)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "unknown expression engine")
}

// --- translate ---

func TestTranslate_SingleFile(t *testing.T) {
	isolate(t)

	r := runCLI(t, "", "translate", onboardingFile)
	require.Equal(t, 0, r.code, r.stderr)

	res := decode[schema.TranslationResult](t, r.stdout)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Steps, 7)
	assert.Equal(t, "Collect signed contract", res.Steps[0].Name)
	for i, s := range res.Steps {
		assert.Equal(t, i, s.Order)
		assert.NotEqual(t, string(schema.KindStart), s.Type)
		assert.NotEqual(t, string(schema.KindEnd), s.Type)
	}
}

func TestTranslate_StdinWithErrors(t *testing.T) {
	isolate(t)

	doc := `{"nodes":[{"id":"a","type":"Task","label":"A"}],"edges":[]}`
	r := runCLI(t, doc, "translate", "-")
	assert.Equal(t, 1, r.code)

	res := decode[schema.TranslationResult](t, r.stdout)
	assert.Empty(t, res.Steps)
	assert.NotEmpty(t, res.Errors)
}

func TestTranslate_BatchText(t *testing.T) {
	isolate(t)

	r := runCLI(t, "", "translate", "-text", onboardingFile, expenseFile)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "== "+onboardingFile+": 7 step(s), 0 error(s)")
	assert.Contains(t, r.stdout, "== "+expenseFile+":")
	assert.Contains(t, r.stdout, "Over limit -> review")
}

func TestTranslate_BatchReportsInvalidDocuments(t *testing.T) {
	dir := isolate(t)
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"nodes":[]}`), 0o644))

	r := runCLI(t, "", "translate", onboardingFile, broken)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "1 of 2 graph(s) have errors")

	items := decode[[]workflow.BatchItem](t, r.stdout)
	require.Len(t, items, 2)
	assert.Equal(t, onboardingFile, items[0].Name)
	assert.True(t, items[0].Result.Valid())
	assert.False(t, items[1].Result.Valid())
}

// --- diagram / preview ---

func TestDiagram_Formats(t *testing.T) {
	isolate(t)

	r := runCLI(t, "", "diagram", "-format", "mermaid", onboardingFile)
	require.Equal(t, 0, r.code, r.stderr)
	assert.True(t, strings.HasPrefix(r.stdout, "graph TD\n"))
	assert.Contains(t, r.stdout, "Collect signed contract")

	r = runCLI(t, "", "diagram", expenseFile)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "=== Expense approval ===")

	r = runCLI(t, "", "diagram", "-format", "svg", expenseFile)
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, `unknown format "svg"`)
}

func TestDiagram_WritesFileWithPath(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "expense.mmd")

	r := runCLI(t, "", "diagram", "-format", "mermaid", "-data", expenseData, "-o", out, expenseFile)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Empty(t, r.stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "==>", "edges on the preview path are drawn thick")
}

func TestPreview_FollowsSampleData(t *testing.T) {
	isolate(t)

	r := runCLI(t, "", "preview", "-data", expenseData, expenseFile)
	require.Equal(t, 0, r.code, r.stderr)

	path := decode[preview.Path](t, r.stdout)
	assert.Equal(t, []string{"start", "check", "review", "pay", "notify", "done"}, path.NodeIDs())
	assert.Equal(t, []string{"done"}, path.Ends)
}

func TestPreview_RejectsInputsOutsideSchema(t *testing.T) {
	isolate(t)

	r := runCLI(t, `{"amount": "lots"}`, "preview", "-data", "-", expenseFile)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "Error:")
}

// --- Persistence ---

func TestSaveGetListHistoryDelete(t *testing.T) {
	isolate(t)

	r := runCLI(t, "", "save", "-id", "expenses", expenseFile)
	require.Equal(t, 0, r.code, r.stderr)
	saved := decode[workflow.SaveResult](t, r.stdout)
	require.NotNil(t, saved.Revision)
	assert.Equal(t, 1, saved.Revision.Version)

	r = runCLI(t, "", "save", "-id", "expenses", expenseFile)
	require.Equal(t, 0, r.code, r.stderr)

	r = runCLI(t, "", "get", "-id", "expenses", "-version", "1")
	require.Equal(t, 0, r.code, r.stderr)
	got := decode[struct {
		Workflow store.Workflow `json:"workflow"`
		Revision store.Revision `json:"revision"`
	}](t, r.stdout)
	assert.Equal(t, "Expense approval", got.Workflow.Name)
	assert.Equal(t, 2, got.Workflow.LatestVersion)
	assert.Equal(t, 1, got.Revision.Version)

	r = runCLI(t, "", "list")
	require.Equal(t, 0, r.code, r.stderr)
	list := decode[[]store.Workflow](t, r.stdout)
	require.Len(t, list, 1)
	assert.Equal(t, "expenses", list[0].ID)

	r = runCLI(t, "", "history", "-id", "expenses")
	require.Equal(t, 0, r.code, r.stderr)
	attempts := decode[[]store.SaveAttempt](t, r.stdout)
	require.Len(t, attempts, 2)
	assert.True(t, attempts[1].Accepted)
	assert.Equal(t, 2, attempts[1].Version)

	r = runCLI(t, "", "history", "-id", "expenses", "-resource", "revisions")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Len(t, decode[[]store.RevisionSummary](t, r.stdout), 2)

	r = runCLI(t, "", "history", "-resource", "events", "-type", schema.EventRevisionSaved)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Len(t, decode[[]store.Event](t, r.stdout), 2)

	r = runCLI(t, "", "diagram", "-format", "mermaid", "-workflow", "expenses")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Manager review")

	r = runCLI(t, "", "delete", "-id", "expenses")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "deleted expenses\n", r.stdout)

	r = runCLI(t, "", "get", "-id", "expenses")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, schema.ErrCodeNotFound)
}

func TestSave_RejectsInvalidGraph(t *testing.T) {
	dir := isolate(t)
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken,
		[]byte(`{"name":"broken","nodes":[{"id":"a","type":"Task","label":"A"}],"edges":[]}`), 0o644))

	r := runCLI(t, "", "save", "-id", "broken", broken)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, schema.ErrCodeValidation)

	res := decode[workflow.SaveResult](t, r.stdout)
	assert.Nil(t, res.Revision)
	assert.Nil(t, res.Workflow)
	assert.NotEmpty(t, res.Translation.Errors)

	r = runCLI(t, "", "get", "-id", "broken")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, schema.ErrCodeNotFound)

	r = runCLI(t, "", "save", "-id", "broken", expenseFile)
	require.Equal(t, 0, r.code, r.stderr)
	r = runCLI(t, "", "save", "-id", "broken", broken)
	assert.Equal(t, 1, r.code)

	r = runCLI(t, "", "history", "-id", "broken")
	require.Equal(t, 0, r.code, r.stderr)
	attempts := decode[[]store.SaveAttempt](t, r.stdout)
	require.Len(t, attempts, 2)
	assert.True(t, attempts[0].Accepted)
	assert.False(t, attempts[1].Accepted)
}

func TestSave_RequiresID(t *testing.T) {
	isolate(t)
	r := runCLI(t, "", "save", expenseFile)
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "save needs -id")
}

// --- init ---

func TestInit_WritesSettings(t *testing.T) {
	home := isolate(t)

	r := runCLI(t, "", "init", "-strict", "-concurrency", "2")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Config written to")
	assert.Contains(t, r.stdout, "Changed: strict, concurrency")

	cfg, err := loadConfigFrom(filepath.Join(home, ".canvasflow"), envMap(nil))
	require.NoError(t, err)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 2, cfg.Concurrency)

	r = runCLI(t, "", "init", "-expression-engine", "lua")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "unknown expression engine")
}

// --- actions ---

func TestActionCatalog(t *testing.T) {
	dir := isolate(t)
	catalog := filepath.Join(dir, "actions.json")
	require.NoError(t, os.WriteFile(catalog, []byte(`{"actions": [{"name": "http.request"}]}`), 0o644))
	t.Setenv("CANVASFLOW_ACTIONS_FILE", catalog)

	r := runCLI(t, "", "actions")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, `"name": "http.request"`)

	r = runCLI(t, "", "translate", "-text", expenseFile)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, `unknown action "payments.transfer"`)

	require.NoError(t, os.WriteFile(catalog,
		[]byte(`{"actions": [{"name": "payments.transfer", "description": "Move money"}]}`), 0o644))
	r = runCLI(t, "", "translate", expenseFile)
	assert.Equal(t, 0, r.code, r.stdout)
}

func TestActionCatalog_NotConfigured(t *testing.T) {
	isolate(t)
	r := runCLI(t, "", "actions")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "no action catalog configured")
}

// gen-diagrams renders every graph under examples/ for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/canvasflow/internal/diagram"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/preview"
	"github.com/rendis/canvasflow/internal/validation"
	"github.com/rendis/canvasflow/internal/workflow"
)

func main() {
	ctx := context.Background()

	engines, err := expressions.NewRegistry("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "engines: %v\n", err)
		os.Exit(1)
	}
	validator, err := validation.NewWorkflowValidator(engines, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validator: %v\n", err)
		os.Exit(1)
	}
	svc := workflow.NewService(workflow.Config{Validator: validator})

	files, _ := filepath.Glob(filepath.Join("examples", "*.json"))
	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	for _, file := range files {
		if strings.HasSuffix(file, ".data.json") {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(file), ".json")

		raw, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			continue
		}
		g, res := svc.TranslateDocument(ctx, raw)
		opts := diagram.Options{Translation: res}

		// A sibling <name>.data.json highlights the path its sample takes.
		if data := loadData(strings.TrimSuffix(file, ".json") + ".data.json"); data != nil {
			path, err := preview.Trace(ctx, g, data, preview.Options{Engines: engines, Inputs: validator})
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s preview: %v\n", name, err)
			} else {
				opts.Path = path
			}
		}

		model, err := diagram.Build(g, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s build error: %v\n", name, err)
			continue
		}

		ascii := diagram.RenderASCII(model)
		os.WriteFile(filepath.Join(outDir, name+"-ascii.txt"), []byte(ascii), 0o644)
		fmt.Printf("=== %s (ASCII) ===\n%s\n", name, ascii)

		mermaid := diagram.RenderMermaid(model)
		os.WriteFile(filepath.Join(outDir, name+"-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"), 0o644)
		fmt.Printf("=== %s (Mermaid) ===\n%s\n", name, mermaid)

		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			fmt.Fprintf(os.Stderr, "%s image error: %v\n", name, imgErr)
			continue
		}
		pngPath := filepath.Join(outDir, name+".png")
		os.WriteFile(pngPath, png, 0o644)
		fmt.Printf("=== %s (PNG) ===\nWritten: %s (%d bytes)\n", name, pngPath, len(png))
	}
}

func loadData(path string) map[string]any {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return nil
	}
	return data
}

// canvasflow translates workflow canvases into ordered, executable steps.
//
//	canvasflow translate graph.json          validate and translate
//	canvasflow diagram -format ascii g.json  draw a graph
//	canvasflow save -id onboarding g.json    store a revision
//	canvasflow serve                         MCP server on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// errInvalid marks a command that ran but found blocking issues. Its output
// has already been written, so run only sets the exit code.
var errInvalid = errors.New("graph has errors")

type command struct {
	name    string
	summary string
	store   bool
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{name: "translate", summary: "validate graph documents and print their steps", run: runTranslate},
	{name: "diagram", summary: "draw a graph as mermaid, ascii or image", run: runDiagram},
	{name: "preview", summary: "trace the path sample data takes through a graph", run: runPreview},
	{name: "actions", summary: "list the configured action catalog", run: runActions},
	{name: "save", summary: "store a graph as the next revision of a workflow", store: true, run: runSave},
	{name: "get", summary: "print a stored workflow revision", store: true, run: runGet},
	{name: "list", summary: "list stored workflows", store: true, run: runList},
	{name: "history", summary: "show revisions, save attempts or raw events", store: true, run: runHistory},
	{name: "delete", summary: "delete a stored workflow", store: true, run: runDelete},
	{name: "serve", summary: "run the MCP server on stdio", store: true, run: runServe},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one subcommand and returns the process exit code: 0 on
// success, 1 when the command failed or found errors, 2 on usage errors.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "version", "-version", "--version":
		printVersion(stdout)
		return 0
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return 0
	case "init":
		return exitCode(stderr, runInit(canvasflowDir(), args[1:], stdout, stderr))
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	a, err := newApp(cfg, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	if cmd.store {
		if err := a.openStore(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	return exitCode(stderr, cmd.run(ctx, a, args[1:]))
}

func exitCode(stderr io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errInvalid):
		return 1
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: canvasflow <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "init", "write ~/.canvasflow/settings.json")
	fmt.Fprintf(w, "  %-10s %s\n", "version", "print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'canvasflow <command> -h' for command flags.")
}

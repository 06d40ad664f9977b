// Command oregan expands a parameterized build specification into a
// concrete dependency graph and executes it in parallel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/lucadealfaro/oregan"
	"github.com/lucadealfaro/oregan/internal/env"
	"github.com/lucadealfaro/oregan/internal/graph"
	"github.com/lucadealfaro/oregan/internal/oninterrupt"
	"github.com/lucadealfaro/oregan/internal/specdoc"
	"github.com/lucadealfaro/oregan/internal/trace"
)

// stringListFlag is a repeatable string flag: each occurrence on the
// command line appends to Values, giving each declared parameter an
// option that takes a list of string values.
type stringListFlag struct {
	Values []string
}

func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.Values, ",")
}

func (f *stringListFlag) Set(s string) error {
	f.Values = append(f.Values, s)
	return nil
}

// exitCode distinguishes a pre-execution failure (bad spec, bad expansion)
// from an execution-time failure (some task failed), for operator
// convenience.
type exitCode int

const (
	exitOK             exitCode = 0
	exitPreExecution   exitCode = 1
	exitExecutionFault exitCode = 2
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: oregan <spec.yaml> [flags]")
		os.Exit(int(exitPreExecution))
	}
	specPath := os.Args[1]

	code, err := run(specPath, os.Args[2:])
	if err != nil {
		log.Printf("oregan: %v", err)
	}
	if err := oregan.RunAtExit(); err != nil {
		log.Printf("oregan: at-exit: %v", err)
	}
	os.Exit(int(code))
}

func run(specPath string, args []string) (exitCode, error) {
	f, err := os.Open(specPath)
	if err != nil {
		return exitPreExecution, xerrors.Errorf("opening specification: %w", err)
	}
	defer f.Close()

	doc, err := specdoc.Load(f)
	if err != nil {
		return exitPreExecution, err
	}

	fs := flag.NewFlagSet("oregan", flag.ContinueOnError)
	rootPath := fs.String("root_path", env.OreganRoot, "root directory prepended to every concretized file path")
	target := fs.String("target", "", "logical_name of the file to build")
	parallelism := fs.Int("parallelism", 1, "number of commands to run concurrently")
	redoIfModified := fs.Bool("redo_if_modified", false, "rerun a task when an input is newer than its outputs")
	failFast := fs.Bool("fail_fast", false, "stop admitting new tasks after the first failure (does not kill running ones)")
	tracefile := fs.String("tracefile", "", "path to write a Chrome trace event file to")

	paramFlags := make(map[string]*stringListFlag, len(doc.Parameters))
	for name, help := range doc.Parameters {
		v := &stringListFlag{}
		fs.Var(v, name, help)
		paramFlags[name] = v
	}
	if err := fs.Parse(args); err != nil {
		return exitPreExecution, err
	}

	if *target == "" {
		return exitPreExecution, xerrors.New("-target is required")
	}

	if *tracefile != "" {
		tf, err := os.Create(*tracefile)
		if err != nil {
			return exitPreExecution, xerrors.Errorf("creating trace file: %w", err)
		}
		trace.Sink(tf)
		oregan.RegisterAtExit(tf.Close)
	}

	mg, _, err := doc.Build(*rootPath)
	if err != nil {
		return exitPreExecution, err
	}

	space := make(graph.ParameterSpace, len(paramFlags))
	for name, v := range paramFlags {
		space[name] = v.Values
	}

	cg, err := graph.ExpandAll(mg, *target, space, *redoIfModified)
	if err != nil {
		return exitPreExecution, xerrors.Errorf("expansion: %w", err)
	}

	ctx, cancel := oregan.InterruptibleContext()
	defer cancel()
	oninterrupt.Register(cancel)

	ex := &graph.Executor{
		Parallelism: *parallelism,
		FailFast:    *failFast,
	}
	ok, err := ex.Run(ctx, cg)
	if err != nil {
		return exitExecutionFault, xerrors.Errorf("execution: %w", err)
	}
	if !ok {
		return exitExecutionFault, xerrors.New("one or more tasks failed")
	}
	return exitOK, nil
}

// Package specdoc loads and validates the YAML specification document: the
// declarative description of parameters, resources, files, and tasks that
// internal/graph expands and executes.
//
// Loading and validating this document is kept separate from the graph
// core: the core only ever consumes the already-lowered *graph.MakeGraph /
// graph.Resource values that Document.Build produces. The
// graph.ParameterSpace is not built here; the caller assembles it from the
// declared parameter names.
package specdoc

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/lucadealfaro/oregan/internal/graph"
)

// Document is the parsed form of a specification document.
type Document struct {
	Parameters map[string]string `yaml:"parameters"`
	Resources  map[string]int    `yaml:"resources"`
	Files      map[string]string `yaml:"files"`
	Tasks      []TaskDoc         `yaml:"tasks"`
}

// TaskDoc is one entry of the document's "tasks" sequence.
type TaskDoc struct {
	Name         string   `yaml:"name"`
	Command      string   `yaml:"command"`
	Generates    []string `yaml:"generates"`
	Dependencies []string `yaml:"dependencies"`
	Uses         []string `yaml:"uses"`
}

// SpecValidation reports every violation found, rather than only the
// first, so a user can fix a hand-written document in one pass.
type SpecValidation struct {
	Errors []string
}

func (e *SpecValidation) Error() string {
	return fmt.Sprintf("invalid specification document:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load parses a specification document from r and validates it.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, xerrors.Errorf("parsing specification document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

var placeholderRegexp = regexp.MustCompile(`\{([^{}]+)\}`)

func placeholders(s string) []string {
	var names []string
	for _, m := range placeholderRegexp.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

// Validate checks every logical_name in generates/dependencies keys Files,
// every name in uses keys Resources, and every placeholder in any command
// or path template keys Parameters.
func (d *Document) Validate() error {
	var errs []string

	checkPlaceholders := func(place, template string) {
		for _, name := range placeholders(template) {
			if _, ok := d.Parameters[name]; !ok {
				errs = append(errs, fmt.Sprintf("%s: undeclared parameter {%s}", place, name))
			}
		}
	}

	for name, tmpl := range d.Files {
		checkPlaceholders(fmt.Sprintf("files.%s", name), tmpl)
	}

	seenNames := map[string]bool{}
	for i, t := range d.Tasks {
		place := t.Name
		if place == "" {
			place = fmt.Sprintf("tasks[%d]", i)
		}
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: missing name", place))
		} else if seenNames[t.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate task name", place))
		}
		seenNames[t.Name] = true

		checkPlaceholders(place+".command", t.Command)

		for _, g := range t.Generates {
			if _, ok := d.Files[g]; !ok {
				errs = append(errs, fmt.Sprintf("%s: generates unknown file %q", place, g))
			}
		}
		for _, dep := range t.Dependencies {
			if _, ok := d.Files[dep]; !ok {
				errs = append(errs, fmt.Sprintf("%s: depends on unknown file %q", place, dep))
			}
		}
		for _, u := range t.Uses {
			if _, ok := d.Resources[u]; !ok {
				errs = append(errs, fmt.Sprintf("%s: uses unknown resource %q", place, u))
			}
		}
	}

	for name, capacity := range d.Resources {
		if capacity < 1 {
			errs = append(errs, fmt.Sprintf("resources.%s: capacity must be >= 1, got %d", name, capacity))
		}
	}

	if len(errs) > 0 {
		return &SpecValidation{Errors: errs}
	}
	return nil
}

// Build lowers the document into the core's types, rooted at root. It
// assumes Validate has already succeeded (Load always validates).
func (d *Document) Build(root string) (*graph.MakeGraph, map[string]*graph.Resource, error) {
	resources := make(map[string]*graph.Resource, len(d.Resources))
	for name, capacity := range d.Resources {
		resources[name] = graph.NewResource(name, int64(capacity))
	}

	fileSpecs := make(map[string]graph.FileSpec, len(d.Files))
	for name, tmpl := range d.Files {
		fileSpecs[name] = graph.FileSpec{LogicalName: name, PathTemplate: tmpl}
	}

	mg := graph.NewMakeGraph(root)
	for _, td := range d.Tasks {
		ts := &graph.TaskSpec{
			Name:            td.Name,
			CommandTemplate: td.Command,
		}
		for _, g := range td.Generates {
			ts.Outputs = append(ts.Outputs, fileSpecs[g])
		}
		for _, dep := range td.Dependencies {
			ts.Inputs = append(ts.Inputs, fileSpecs[dep])
		}
		for _, u := range td.Uses {
			ts.Uses = append(ts.Uses, resources[u])
		}
		mg.AddTask(ts)
	}

	return mg, resources, nil
}

package graph

import (
	"fmt"
	"strings"
)

// MissingParameters is raised by template instantiation when the supplied
// Binding does not cover every placeholder referenced by the template.
type MissingParameters struct {
	// Place names the template's location, e.g. a TaskSpec or FileSpec name.
	Place string
	// Params is the set of placeholder names present in the template but
	// absent from the binding.
	Params []string
}

func (e *MissingParameters) Error() string {
	return fmt.Sprintf("in %s, missing parameters: %s", e.Place, strings.Join(e.Params, " "))
}

// UnknownTarget is raised during expansion when a logical file name has no
// registered producer TaskSpec.
type UnknownTarget struct {
	LogicalName string
}

func (e *UnknownTarget) Error() string {
	return fmt.Sprintf("unknown target %q: no task produces it", e.LogicalName)
}

// DuplicateProducer is raised during expansion when two distinct TaskSpecs
// concretize to outputs sharing the same absolute path.
type DuplicateProducer struct {
	AbsolutePath string
	First        string
	Second       string
}

func (e *DuplicateProducer) Error() string {
	return fmt.Sprintf("path %q is produced by both %q and %q", e.AbsolutePath, e.First, e.Second)
}

// DependencyCycle is raised during expansion when the logical file-name
// graph induced by TaskSpec inputs/outputs contains a cycle.
type DependencyCycle struct {
	LogicalNames []string
}

func (e *DependencyCycle) Error() string {
	return fmt.Sprintf("dependency cycle among: %s", strings.Join(e.LogicalNames, " -> "))
}

package graph

import (
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// placeholderRegexp matches a left brace, one or more non-brace characters,
// and a right brace. Braces are not escapable.
var placeholderRegexp = regexp.MustCompile(`\{([^{}]+)\}`)

// parameters returns the set of placeholder names referenced by template.
func parameters(template string) map[string]bool {
	names := map[string]bool{}
	for _, m := range placeholderRegexp.FindAllStringSubmatch(template, -1) {
		names[m[1]] = true
	}
	return names
}

// instantiate substitutes every {name} placeholder in template with
// binding[name]. Extra parameters in binding that do not appear in template
// are ignored. place is used only to identify the template in a
// MissingParameters error.
func instantiate(place, template string, binding Binding) (string, error) {
	need := parameters(template)
	var missing []string
	for name := range need {
		if _, ok := binding[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingParameters{Place: place, Params: missing}
	}
	return placeholderRegexp.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		return binding[name]
	}), nil
}

// FileSpec is a template for a filesystem path with embedded parameter
// placeholders.
type FileSpec struct {
	LogicalName  string
	PathTemplate string
}

// Parameters returns the set of placeholder names in the path template.
func (fs FileSpec) Parameters() map[string]bool {
	return parameters(fs.PathTemplate)
}

// Concretize instantiates the path template under binding and joins it with
// root, producing a File snapshot of the current filesystem state.
func (fs FileSpec) Concretize(root string, binding Binding) (File, error) {
	rel, err := instantiate(fs.LogicalName, fs.PathTemplate, binding)
	if err != nil {
		return File{}, err
	}
	return NewFile(filepath.Join(root, rel)), nil
}

// File is a filesystem path together with a snapshot of its existence and
// modification time. The zero value's AbsolutePath is meaningless; use
// NewFile.
type File struct {
	AbsolutePath string
	Exists       bool
	ModTime      time.Time
}

// NewFile stats path and returns a File reflecting its current state.
func NewFile(path string) File {
	f := File{AbsolutePath: path}
	f.Refresh()
	return f
}

// Refresh re-reads the filesystem state for f's path. Invariant:
// f.Exists == !f.ModTime.IsZero() after Refresh returns.
func (f *File) Refresh() {
	fi, err := os.Stat(f.AbsolutePath)
	if err != nil {
		f.Exists = false
		f.ModTime = time.Time{}
		return
	}
	f.Exists = true
	f.ModTime = fi.ModTime()
}

package graph

// CommandGraph is the concrete DAG of instantiated Tasks ready to execute.
// ByOutputPath is the canonical dedup key across bindings: two concretized
// Tasks that produce the same absolute path are the same Task.
type CommandGraph struct {
	Tasks        []*Task
	ByOutputPath map[string]*Task
}

// NewCommandGraph returns an empty CommandGraph.
func NewCommandGraph() *CommandGraph {
	return &CommandGraph{
		ByOutputPath: make(map[string]*Task),
	}
}

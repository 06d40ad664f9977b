package graph

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// MakeGraph is the parameterized (template-level) dependency graph: every
// TaskSpec indexed by the logical name of each file it produces.
type MakeGraph struct {
	RootPath string
	Tasks    []*TaskSpec
	Producer map[string]*TaskSpec
}

// NewMakeGraph creates an empty MakeGraph rooted at root.
func NewMakeGraph(root string) *MakeGraph {
	return &MakeGraph{
		RootPath: root,
		Producer: make(map[string]*TaskSpec),
	}
}

// AddTask registers ts and indexes each of its outputs as producible by it.
func (mg *MakeGraph) AddTask(ts *TaskSpec) {
	mg.Tasks = append(mg.Tasks, ts)
	for _, out := range ts.Outputs {
		mg.Producer[out.LogicalName] = ts
	}
}

// Expand adds to cg every Task needed to produce target under binding, plus
// the transitive closure of predecessor Tasks.
func (mg *MakeGraph) Expand(target string, binding Binding, cg *CommandGraph, redoIfModified bool) error {
	if _, ok := mg.Producer[target]; !ok {
		return &UnknownTarget{LogicalName: target}
	}
	if err := mg.detectCycle(target); err != nil {
		return err
	}

	worklist := []string{target}
	processed := map[string]bool{}
	var added []*Task

	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]
		if processed[name] {
			continue
		}
		processed[name] = true

		ts, ok := mg.Producer[name]
		if !ok {
			return &UnknownTarget{LogicalName: name}
		}

		task, err := ts.concretize(mg.RootPath, binding)
		if err != nil {
			return err
		}
		task.RedoIfModified = redoIfModified

		// Register each output independently, never overwriting an entry
		// that already exists. A path already claimed by the same
		// TaskSpec (re-derived under a different binding) is legitimate
		// reuse: the earlier Task remains its canonical producer. A path
		// claimed by a different TaskSpec is a malformed specification.
		// Two outputs of one concretization can land on either side of
		// this at once (one coincides with an earlier binding's output,
		// the other is new), so the check and the registration both run
		// per output rather than once for the whole task.
		anyNewOutput := len(task.Outputs) == 0
		for _, o := range task.Outputs {
			other, ok := cg.ByOutputPath[o.AbsolutePath]
			if !ok {
				cg.ByOutputPath[o.AbsolutePath] = task
				anyNewOutput = true
				continue
			}
			if other.sourceSpec != ts {
				return &DuplicateProducer{
					AbsolutePath: o.AbsolutePath,
					First:        other.Name,
					Second:       task.Name,
				}
			}
		}
		if anyNewOutput {
			cg.Tasks = append(cg.Tasks, task)
			added = append(added, task)
		}

		for _, in := range ts.Inputs {
			if processed[in.LogicalName] {
				continue
			}
			if _, hasProducer := mg.Producer[in.LogicalName]; !hasProducer {
				// External source file: no Task produces it, so it is
				// never added to the worklist. It must exist at run time;
				// wiring simply finds no predecessor for it in
				// ByOutputPath.
				continue
			}
			worklist = append(worklist, in.LogicalName)
		}
	}

	// Wire predecessor/successor edges for every Task touched in this pass.
	for _, task := range added {
		for _, in := range task.Inputs {
			producer, ok := cg.ByOutputPath[in.AbsolutePath]
			if !ok {
				continue // external source file; must exist at run time
			}
			if producer == task {
				continue
			}
			if !hasTask(task.Predecessors, producer) {
				task.Predecessors = append(task.Predecessors, producer)
			}
			if !hasTask(producer.Successors, task) {
				producer.Successors = append(producer.Successors, task)
			}
		}
	}

	return nil
}

func hasTask(list []*Task, t *Task) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

// detectCycle builds the logical-name dependency graph reachable from target
// and topologically sorts it with gonum's graph/topo package, failing with
// DependencyCycle naming every logical name in a cyclic component rather
// than attempting to break and route around it.
func (mg *MakeGraph) detectCycle(target string) error {
	reachable := map[string]bool{}
	var collect func(name string)
	collect = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		if ts, ok := mg.Producer[name]; ok {
			for _, in := range ts.Inputs {
				collect(in.LogicalName)
			}
		}
	}
	collect(target)

	g := simple.NewDirectedGraph()
	id := make(map[string]int64, len(reachable))
	nameOf := make(map[int64]string, len(reachable))
	for n := range reachable {
		node := g.NewNode()
		id[n] = node.ID()
		nameOf[node.ID()] = n
		g.AddNode(node)
	}
	for n := range reachable {
		ts, ok := mg.Producer[n]
		if !ok {
			continue
		}
		for _, in := range ts.Inputs {
			if !reachable[in.LogicalName] {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(id[in.LogicalName]), T: simple.Node(id[n])})
		}
	}

	if _, err := topo.Sort(g); err != nil {
		uo, ok := err.(topo.Unorderable)
		if !ok {
			return err
		}
		var names []string
		for _, component := range uo {
			for _, node := range component {
				names = append(names, nameOf[node.ID()])
			}
		}
		return &DependencyCycle{LogicalNames: names}
	}
	return nil
}

// ExpandAll calls Expand once per Binding in the Cartesian product of
// space, accumulating every concrete Task into a single CommandGraph.
// Tasks whose outputs collide on the same absolute path are deduplicated
// via CommandGraph.ByOutputPath.
func ExpandAll(mg *MakeGraph, target string, space ParameterSpace, redoIfModified bool) (*CommandGraph, error) {
	cg := NewCommandGraph()
	for _, binding := range space.Bindings() {
		if err := mg.Expand(target, binding, cg, redoIfModified); err != nil {
			return nil, fmt.Errorf("expanding %s with %v: %w", target, binding, err)
		}
	}
	return cg, nil
}

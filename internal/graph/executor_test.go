package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lucadealfaro/oregan/internal/oregantest"
)

// Single task, output absent: the command runs and creates it.
func TestExecutorSingleTaskCreatesOutput(t *testing.T) {
	root := oregantest.TempRoot(t)
	mg := NewMakeGraph(root)
	out := FileSpec{LogicalName: "f", PathTemplate: "f_{a}"}
	mg.AddTask(&TaskSpec{Name: "make-f", CommandTemplate: "touch " + filepath.Join(root, "f_x"), Outputs: []FileSpec{out}})

	cg, err := ExpandAll(mg, "f", ParameterSpace{"a": {"x"}}, false)
	if err != nil {
		t.Fatal(err)
	}

	ex := &Executor{Parallelism: 1}
	ok, err := ex.Run(context.Background(), cg)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected Run to succeed")
	}
	if _, err := os.Stat(filepath.Join(root, "f_x")); err != nil {
		t.Fatalf("expected output to exist: %v", err)
	}
}

// Output already fresh: the command must not run.
func TestExecutorSkipsFreshOutput(t *testing.T) {
	root := oregantest.TempRoot(t)
	oregantest.Touch(t, filepath.Join(root, "f_x"), time.Now())

	mg := NewMakeGraph(root)
	out := FileSpec{LogicalName: "f", PathTemplate: "f_x"}
	// If the command ran, it would fail, proving the executor never
	// attempted it when the output is already fresh.
	mg.AddTask(&TaskSpec{Name: "make-f", CommandTemplate: "exit 1", Outputs: []FileSpec{out}})

	cg, err := ExpandAll(mg, "f", ParameterSpace{}, false)
	if err != nil {
		t.Fatal(err)
	}

	ex := &Executor{Parallelism: 1}
	ok, err := ex.Run(context.Background(), cg)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected Run to succeed (output already fresh)")
	}
	if cg.Tasks[0].Ran {
		t.Fatal("expected the command not to have run")
	}
	if cg.Tasks[0].State() != Succeeded {
		t.Fatalf("state = %v, want succeeded", cg.Tasks[0].State())
	}
}

// B depends on A; A's output is fresher than B's, so B reruns but A
// (whose output already exists) does not.
func TestExecutorMtimeRebuild(t *testing.T) {
	root := oregantest.TempRoot(t)
	aPath := filepath.Join(root, "a.out")
	bPath := filepath.Join(root, "b.out")

	now := time.Now()
	oregantest.Touch(t, aPath, now)
	oregantest.Touch(t, bPath, now.Add(-1*time.Hour))

	mg := NewMakeGraph(root)
	aSpec := FileSpec{LogicalName: "a", PathTemplate: "a.out"}
	bSpec := FileSpec{LogicalName: "b", PathTemplate: "b.out"}
	mg.AddTask(&TaskSpec{Name: "make-a", CommandTemplate: "exit 1", Outputs: []FileSpec{aSpec}})
	mg.AddTask(&TaskSpec{Name: "make-b", CommandTemplate: "touch " + bPath, Inputs: []FileSpec{aSpec}, Outputs: []FileSpec{bSpec}})

	cg, err := ExpandAll(mg, "b", ParameterSpace{}, true)
	if err != nil {
		t.Fatal(err)
	}

	ex := &Executor{Parallelism: 2}
	ok, err := ex.Run(context.Background(), cg)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected Run to succeed")
	}

	var taskA, taskB *Task
	for _, task := range cg.Tasks {
		if task.Outputs[0].AbsolutePath == aPath {
			taskA = task
		} else {
			taskB = task
		}
	}
	if taskA.Ran {
		t.Fatal("A's output already existed: A must not rerun")
	}
	if !taskB.Ran {
		t.Fatal("B's output was older than A's: B must rerun")
	}
}

// A capacity-1 resource serializes two otherwise independent tasks even
// with ample thread parallelism.
func TestExecutorResourceCapsConcurrency(t *testing.T) {
	root := oregantest.TempRoot(t)
	gpu := NewResource("gpu", 1)

	mg := NewMakeGraph(root)
	aStart := FileSpec{LogicalName: "a_start", PathTemplate: "a_start"}
	aEnd := FileSpec{LogicalName: "a_end", PathTemplate: "a_end"}
	bStart := FileSpec{LogicalName: "b_start", PathTemplate: "b_start"}
	bEnd := FileSpec{LogicalName: "b_end", PathTemplate: "b_end"}
	all := FileSpec{LogicalName: "all", PathTemplate: "all.done"}

	const sleep = "sleep 0.3"
	mg.AddTask(&TaskSpec{
		Name:            "a",
		CommandTemplate: fmt.Sprintf("date +%%s%%N > %s; %s; date +%%s%%N > %s", filepath.Join(root, "a_start"), sleep, filepath.Join(root, "a_end")),
		Outputs:         []FileSpec{aStart, aEnd},
		Uses:            []*Resource{gpu},
	})
	mg.AddTask(&TaskSpec{
		Name:            "b",
		CommandTemplate: fmt.Sprintf("date +%%s%%N > %s; %s; date +%%s%%N > %s", filepath.Join(root, "b_start"), sleep, filepath.Join(root, "b_end")),
		Outputs:         []FileSpec{bStart, bEnd},
		Uses:            []*Resource{gpu},
	})
	mg.AddTask(&TaskSpec{
		Name:            "all",
		CommandTemplate: "true",
		Inputs:          []FileSpec{aEnd, bEnd},
		Outputs:         []FileSpec{all},
	})

	cg, err := ExpandAll(mg, "all", ParameterSpace{}, false)
	if err != nil {
		t.Fatal(err)
	}

	ex := &Executor{Parallelism: 4}
	ok, err := ex.Run(context.Background(), cg)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected Run to succeed")
	}

	readTS := func(path string) int64 {
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			t.Fatalf("parsing timestamp in %s: %v", path, err)
		}
		return v
	}
	aS, aE := readTS(filepath.Join(root, "a_start")), readTS(filepath.Join(root, "a_end"))
	bS, bE := readTS(filepath.Join(root, "b_start")), readTS(filepath.Join(root, "b_end"))

	overlap := aS < bE && bS < aE
	if overlap {
		t.Fatalf("resource of capacity 1 should have serialized the two tasks: a=[%d,%d] b=[%d,%d]", aS, aE, bS, bE)
	}
}

// A fails; B and C (its transitive successors) are skipped without
// running; independent D still succeeds.
func TestExecutorDependencyFailureCascade(t *testing.T) {
	root := oregantest.TempRoot(t)
	mg := NewMakeGraph(root)

	aOut := FileSpec{LogicalName: "a", PathTemplate: "a.out"}
	bOut := FileSpec{LogicalName: "b", PathTemplate: "b.out"}
	cOut := FileSpec{LogicalName: "c", PathTemplate: "c.out"}
	dOut := FileSpec{LogicalName: "d", PathTemplate: "d.out"}
	allOut := FileSpec{LogicalName: "all", PathTemplate: "all.out"}

	mg.AddTask(&TaskSpec{Name: "a", CommandTemplate: "exit 1", Outputs: []FileSpec{aOut}})
	mg.AddTask(&TaskSpec{Name: "b", CommandTemplate: "touch " + filepath.Join(root, "b.out"), Inputs: []FileSpec{aOut}, Outputs: []FileSpec{bOut}})
	mg.AddTask(&TaskSpec{Name: "c", CommandTemplate: "touch " + filepath.Join(root, "c.out"), Inputs: []FileSpec{bOut}, Outputs: []FileSpec{cOut}})
	mg.AddTask(&TaskSpec{Name: "d", CommandTemplate: "touch " + filepath.Join(root, "d.out"), Outputs: []FileSpec{dOut}})
	mg.AddTask(&TaskSpec{Name: "all", CommandTemplate: "true", Inputs: []FileSpec{cOut, dOut}, Outputs: []FileSpec{allOut}})

	cg, err := ExpandAll(mg, "all", ParameterSpace{}, false)
	if err != nil {
		t.Fatal(err)
	}

	ex := &Executor{Parallelism: 2}
	ok, err := ex.Run(context.Background(), cg)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected Run to report failure")
	}

	aAbs := filepath.Join(root, "a.out")
	bAbs := filepath.Join(root, "b.out")
	cAbs := filepath.Join(root, "c.out")
	dAbs := filepath.Join(root, "d.out")

	states := map[string]State{}
	for _, task := range cg.Tasks {
		switch task.Outputs[0].AbsolutePath {
		case aAbs:
			states["a"] = task.State()
		case bAbs:
			states["b"] = task.State()
		case cAbs:
			states["c"] = task.State()
		case dAbs:
			states["d"] = task.State()
		}
	}
	if states["a"] != Failed {
		t.Errorf("a state = %v, want failed", states["a"])
	}
	if states["b"] != SkippedUpstreamFailed {
		t.Errorf("b state = %v, want skipped_upstream_failed", states["b"])
	}
	if states["c"] != SkippedUpstreamFailed {
		t.Errorf("c state = %v, want skipped_upstream_failed", states["c"])
	}
	if states["d"] != Succeeded {
		t.Errorf("d state = %v, want succeeded", states["d"])
	}
	if _, err := os.Stat(dAbs); err != nil {
		t.Errorf("d's output should exist: %v", err)
	}
}

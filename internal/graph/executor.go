package graph

import (
	"context"
	"log"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lucadealfaro/oregan/internal/trace"
)

// Executor runs a CommandGraph in parallel, admitting at most Parallelism
// concurrent command executions in addition to the per-Resource limits
// declared on each Task.
type Executor struct {
	// Parallelism is the thread semaphore's capacity (P). Must be >= 1.
	Parallelism int

	// FailFast, if true, stops admitting any further pending Task once the
	// first Task transitions to Failed. Already-running commands are not
	// killed. Off by default: the default behavior runs the maximal
	// independent subgraph that survives a partial failure.
	FailFast bool

	// Log receives one line per task admission/outcome. Defaults to
	// log.Default() when nil.
	Log *log.Logger
}

func (e *Executor) logger() *log.Logger {
	if e.Log != nil {
		return e.Log
	}
	return log.Default()
}

// Run executes every Task in cg, respecting dependency order and the two
// admission-control axes, and returns true iff every Task ended in
// Succeeded (whether or not its command actually ran).
func (e *Executor) Run(ctx context.Context, cg *CommandGraph) (bool, error) {
	parallelism := e.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	threadSem := semaphore.NewWeighted(int64(parallelism))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var failOnce sync.Once
	onFail := func() {
		if e.FailFast {
			failOnce.Do(cancel)
		}
	}

	var wg sync.WaitGroup
	wg.Add(len(cg.Tasks))
	for _, t := range cg.Tasks {
		t := t
		go func() {
			defer wg.Done()
			e.runTask(runCtx, ctx, threadSem, t, onFail)
		}()
	}
	wg.Wait()

	success := true
	for _, t := range cg.Tasks {
		if t.State() != Succeeded {
			success = false
			break
		}
	}
	return success, ctx.Err()
}

// runTask implements the per-task execution contract: wait for
// predecessors, short-circuit on upstream failure, skip if already fresh,
// otherwise acquire resources and the thread slot, run the command, and
// release in reverse order. Admission waits on ctx (canceled by FailFast);
// the command itself runs under cmdCtx, so FailFast never kills it.
func (e *Executor) runTask(ctx, cmdCtx context.Context, threadSem *semaphore.Weighted, t *Task, onFail func()) {
	for _, p := range t.Predecessors {
		select {
		case <-p.Done():
		case <-ctx.Done():
			t.transition(Failed)
			return
		}
	}
	if ctx.Err() != nil {
		t.transition(Failed)
		return
	}

	for _, p := range t.Predecessors {
		if s := p.State(); s == Failed || s == SkippedUpstreamFailed {
			t.transition(SkippedUpstreamFailed)
			return
		}
	}

	if !t.needsRunning() {
		t.transition(Succeeded)
		return
	}

	acquired := 0
	for _, r := range t.Uses {
		if err := r.acquire(ctx); err != nil {
			for i := acquired - 1; i >= 0; i-- {
				t.Uses[i].release()
			}
			t.transition(Failed)
			return
		}
		acquired++
	}
	if err := threadSem.Acquire(ctx, 1); err != nil {
		for i := acquired - 1; i >= 0; i-- {
			t.Uses[i].release()
		}
		t.transition(Failed)
		return
	}

	t.mu.Lock()
	t.state = Running
	t.mu.Unlock()
	t.Ran = true
	ev := trace.Event("task "+t.Name, 0)
	e.logger().Printf("running %s", t.Command)
	cmd := exec.CommandContext(cmdCtx, "/bin/sh", "-c", t.Command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()
	ev.Done()

	threadSem.Release(1)
	for i := len(t.Uses) - 1; i >= 0; i-- {
		t.Uses[i].release()
	}

	if runErr != nil {
		e.logger().Printf("failed: %s: %v", t.Command, runErr)
		onFail()
		t.transition(Failed)
		return
	}
	e.logger().Printf("done: %s", t.Command)
	t.transition(Succeeded)
}

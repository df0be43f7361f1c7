package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/toposort"

	"github.com/kestrelworks/agentops/internal/task"
)

// TaskGraph holds all tasks of one run indexed by id, plus the reverse
// dependency index. Structure is frozen after Build; only task status
// and result fields change afterwards, always under the graph mutex.
type TaskGraph struct {
	mu         sync.RWMutex
	tasks      map[string]*task.AgentTask
	order      []string            // insertion order; the stable ordering rule
	dependents map[string][]string // taskID -> tasks that depend on it
}

// Build constructs a graph from decomposer drafts and validates it:
// unique ids, every dependency resolvable, no cycles. maxRetries is the
// per-task retry budget applied to every task.
func Build(drafts []task.TaskDraft, maxRetries int) (*TaskGraph, error) {
	if len(drafts) == 0 {
		return nil, &ValidationError{Reason: "no tasks"}
	}
	if maxRetries < 0 {
		maxRetries = task.DefaultMaxRetries
	}

	g := &TaskGraph{
		tasks:      make(map[string]*task.AgentTask, len(drafts)),
		dependents: make(map[string][]string),
	}

	now := time.Now()
	for _, d := range drafts {
		if d.ID == "" {
			return nil, &ValidationError{Reason: "task with empty id"}
		}
		if _, exists := g.tasks[d.ID]; exists {
			return nil, &ValidationError{TaskID: d.ID, Reason: "duplicate task id"}
		}
		g.tasks[d.ID] = &task.AgentTask{
			ID:          d.ID,
			Description: d.Description,
			AgentType:   d.AgentType,
			DependsOn:   append([]string(nil), d.DependsOn...),
			Status:      task.StatusPending,
			MaxRetries:  maxRetries,
			CreatedAt:   now,
		}
		g.order = append(g.order, d.ID)
	}

	for _, id := range g.order {
		t := g.tasks[id]
		for _, depID := range t.DependsOn {
			if _, ok := g.tasks[depID]; !ok {
				return nil, &ValidationError{TaskID: id, MissingDep: depID}
			}
			g.dependents[depID] = append(g.dependents[depID], id)
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkAcyclic runs a topological sort over the dependency edges.
func (g *TaskGraph) checkAcyclic() error {
	var edges []toposort.Edge
	for _, id := range g.order {
		t := g.tasks[id]
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range t.DependsOn {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("dependency cycle: %v", err)}
	}

	found := 0
	for _, id := range sorted {
		if id != nil {
			found++
		}
	}
	if found != len(g.tasks) {
		return &ValidationError{Reason: "dependency cycle"}
	}
	return nil
}

// Ready returns clones of all Pending tasks whose every dependency is
// Succeeded, in draft insertion order. The returned tasks are marked
// Ready in the graph.
func (g *TaskGraph) Ready() []*task.AgentTask {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []*task.AgentTask
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status != task.StatusPending {
			continue
		}
		satisfied := true
		for _, depID := range t.DependsOn {
			if g.tasks[depID].Status != task.StatusSucceeded {
				satisfied = false
				break
			}
		}
		if satisfied {
			t.Status = task.StatusReady
			ready = append(ready, t.Clone())
		}
	}
	return ready
}

// DependentsOf returns the ids of tasks that directly depend on id.
func (g *TaskGraph) DependentsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[id]...)
}

// TransitiveDependents returns every task reachable through the
// dependents index from id, in insertion order. This is the cascade set
// for a permanent failure.
func (g *TaskGraph) TransitiveDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	stack := append([]string(nil), g.dependents[id]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[next] {
			continue
		}
		seen[next] = true
		stack = append(stack, g.dependents[next]...)
	}

	var out []string
	for _, tid := range g.order {
		if seen[tid] {
			out = append(out, tid)
		}
	}
	return out
}

// MarkRunning transitions a Ready task to Running and stamps its start.
func (g *TaskGraph) MarkRunning(id string) error {
	return g.transition(id, func(t *task.AgentTask) error {
		if t.Status != task.StatusReady {
			return fmt.Errorf("task %q is not ready (status %s)", id, t.Status)
		}
		t.Status = task.StatusRunning
		now := time.Now()
		t.StartedAt = &now
		return nil
	})
}

// MarkSucceeded records a successful result and finalizes the task.
func (g *TaskGraph) MarkSucceeded(id string, res *task.Result) error {
	return g.transition(id, func(t *task.AgentTask) error {
		t.Status = task.StatusSucceeded
		t.Result = res
		t.Err = ""
		now := time.Now()
		t.CompletedAt = &now
		return nil
	})
}

// RecordFailure applies the retry policy to an executor-reported
// failure. While the retry budget lasts, the task returns to Pending
// and its attempt counter advances; otherwise it is permanently Failed.
// Returns true when the task will be retried.
func (g *TaskGraph) RecordFailure(id, errMsg string) (bool, error) {
	retried := false
	err := g.transition(id, func(t *task.AgentTask) error {
		t.Err = errMsg
		if t.Attempts < t.MaxRetries {
			t.Attempts++
			t.Status = task.StatusPending
			retried = true
			return nil
		}
		t.Status = task.StatusFailed
		now := time.Now()
		t.CompletedAt = &now
		return nil
	})
	return retried, err
}

// MarkFailed finalizes a task as Failed without consulting the retry
// budget. Used for permanent failures such as unknown agent types.
func (g *TaskGraph) MarkFailed(id, errMsg string) error {
	return g.transition(id, func(t *task.AgentTask) error {
		t.Status = task.StatusFailed
		t.Err = errMsg
		now := time.Now()
		t.CompletedAt = &now
		return nil
	})
}

// MarkBlocked finalizes a task as Blocked. Blocking never consumes the
// retry budget.
func (g *TaskGraph) MarkBlocked(id, reason string) error {
	return g.transition(id, func(t *task.AgentTask) error {
		t.Status = task.StatusBlocked
		t.Err = reason
		now := time.Now()
		t.CompletedAt = &now
		return nil
	})
}

// ResetPending returns a dispatched task to Pending without touching
// its attempt counter. Used when a run is cancelled mid-round.
func (g *TaskGraph) ResetPending(id string) error {
	return g.transition(id, func(t *task.AgentTask) error {
		t.Status = task.StatusPending
		return nil
	})
}

func (g *TaskGraph) transition(id string, fn func(*task.AgentTask) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("task %q is already terminal (status %s)", id, t.Status)
	}
	return fn(t)
}

// Get returns a clone of the task with the given id.
func (g *TaskGraph) Get(id string) (*task.AgentTask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Snapshot returns value copies of every task in draft insertion order.
func (g *TaskGraph) Snapshot() []task.AgentTask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]task.AgentTask, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.tasks[id].Clone())
	}
	return out
}

// Len returns the number of tasks in the graph.
func (g *TaskGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// AllTerminal reports whether every task has reached a terminal status.
func (g *TaskGraph) AllTerminal() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// Unresolved returns the ids of tasks that are not yet terminal, in
// insertion order.
func (g *TaskGraph) Unresolved() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, id := range g.order {
		if !g.tasks[id].Status.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// Counts returns how many tasks ended in each terminal bucket.
func (g *TaskGraph) Counts() (succeeded, failed, blocked int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tasks {
		switch t.Status {
		case task.StatusSucceeded:
			succeeded++
		case task.StatusFailed:
			failed++
		case task.StatusBlocked:
			blocked++
		}
	}
	return
}

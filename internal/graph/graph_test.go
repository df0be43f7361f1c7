package graph

import (
	"errors"
	"testing"

	"github.com/kestrelworks/agentops/internal/task"
)

func draft(id, agentType string, deps ...string) task.TaskDraft {
	return task.TaskDraft{ID: id, Description: "do " + id, AgentType: agentType, DependsOn: deps}
}

func diamond() []task.TaskDraft {
	return []task.TaskDraft{
		draft("a", "research"),
		draft("b", "analysis", "a"),
		draft("c", "analysis", "a"),
		draft("d", "writing", "b", "c"),
	}
}

func TestBuildValidGraph(t *testing.T) {
	g, err := Build(diamond(), task.DefaultMaxRetries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 4 {
		t.Fatalf("got %d tasks, want 4", g.Len())
	}

	deps := g.DependentsOf("a")
	if len(deps) != 2 {
		t.Fatalf("got %d dependents of a, want 2", len(deps))
	}
}

func TestBuildCycle(t *testing.T) {
	drafts := []task.TaskDraft{
		draft("a", "x", "b"),
		draft("b", "x", "a"),
	}
	_, err := Build(drafts, 0)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestBuildMissingDependency(t *testing.T) {
	drafts := []task.TaskDraft{
		draft("a", "x"),
		draft("b", "x", "ghost"),
	}
	_, err := Build(drafts, 0)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if verr.MissingDep != "ghost" {
		t.Errorf("got missing dep %q, want %q", verr.MissingDep, "ghost")
	}
	if verr.TaskID != "b" {
		t.Errorf("got task %q, want %q", verr.TaskID, "b")
	}
}

func TestBuildDuplicateID(t *testing.T) {
	drafts := []task.TaskDraft{draft("a", "x"), draft("a", "x")}
	var verr *ValidationError
	if _, err := Build(drafts, 0); !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestBuildEmpty(t *testing.T) {
	var verr *ValidationError
	if _, err := Build(nil, 0); !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestReadyInsertionOrder(t *testing.T) {
	drafts := []task.TaskDraft{
		draft("zeta", "x"),
		draft("alpha", "x"),
		draft("mid", "x"),
	}
	g, err := Build(drafts, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.Ready()
	want := []string{"zeta", "alpha", "mid"}
	if len(ready) != len(want) {
		t.Fatalf("got %d ready tasks, want %d", len(ready), len(want))
	}
	for i, w := range want {
		if ready[i].ID != w {
			t.Errorf("ready[%d] = %q, want %q", i, ready[i].ID, w)
		}
	}

	// Tasks handed out are Ready; a second call must not return them again.
	if again := g.Ready(); len(again) != 0 {
		t.Errorf("second Ready() returned %d tasks, want 0", len(again))
	}
}

func TestReadyWaitsForDependencies(t *testing.T) {
	g, err := Build(diamond(), task.DefaultMaxRetries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("got ready %v, want [a]", ready)
	}

	mustRun(t, g, "a")
	if err := g.MarkSucceeded("a", &task.Result{TaskID: "a", Output: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	ready = g.Ready()
	if len(ready) != 2 || ready[0].ID != "b" || ready[1].ID != "c" {
		t.Fatalf("got ready %v, want [b c]", ids(ready))
	}
}

func TestTransitiveDependents(t *testing.T) {
	drafts := []task.TaskDraft{
		draft("a", "x"),
		draft("b", "x", "a"),
		draft("c", "x", "b"),
		draft("d", "x", "b"),
		draft("e", "x"),
	}
	g, err := Build(drafts, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := g.TransitiveDependents("a")
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRecordFailureRetryBudget(t *testing.T) {
	g, err := Build([]task.TaskDraft{draft("a", "x")}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		g.Ready()
		mustRun(t, g, "a")
		retried, ferr := g.RecordFailure("a", "boom")
		if ferr != nil {
			t.Fatalf("attempt %d: %v", attempt, ferr)
		}
		if !retried {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
		got, _ := g.Get("a")
		if got.Status != task.StatusPending {
			t.Fatalf("attempt %d: status %s, want pending", attempt, got.Status)
		}
		if got.Attempts != attempt {
			t.Fatalf("attempt %d: attempts %d", attempt, got.Attempts)
		}
	}

	// Third failure exhausts the budget.
	g.Ready()
	mustRun(t, g, "a")
	retried, ferr := g.RecordFailure("a", "boom")
	if ferr != nil {
		t.Fatalf("unexpected error: %v", ferr)
	}
	if retried {
		t.Fatal("expected permanent failure after budget exhausted")
	}
	got, _ := g.Get("a")
	if got.Status != task.StatusFailed {
		t.Fatalf("status %s, want failed", got.Status)
	}
	if got.Attempts > got.MaxRetries {
		t.Fatalf("attempts %d exceeds retry budget %d", got.Attempts, got.MaxRetries)
	}
}

func TestTerminalTasksAreImmutable(t *testing.T) {
	g, err := Build([]task.TaskDraft{draft("a", "x")}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g.Ready()
	mustRun(t, g, "a")
	if err := g.MarkSucceeded("a", &task.Result{TaskID: "a"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	if err := g.MarkBlocked("a", "nope"); err == nil {
		t.Error("expected error blocking a succeeded task")
	}
	if _, err := g.RecordFailure("a", "nope"); err == nil {
		t.Error("expected error failing a succeeded task")
	}
}

func TestSnapshotOrderMatchesDrafts(t *testing.T) {
	g, err := Build(diamond(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := g.Snapshot()
	want := []string{"a", "b", "c", "d"}
	for i, w := range want {
		if snap[i].ID != w {
			t.Fatalf("snapshot[%d] = %q, want %q", i, snap[i].ID, w)
		}
	}
}

func mustRun(t *testing.T, g *TaskGraph, id string) {
	t.Helper()
	if err := g.MarkRunning(id); err != nil {
		t.Fatalf("mark running %s: %v", id, err)
	}
}

func ids(tasks []*task.AgentTask) []string {
	out := make([]string, len(tasks))
	for i, tk := range tasks {
		out[i] = tk.ID
	}
	return out
}

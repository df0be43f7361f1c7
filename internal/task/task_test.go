package task

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSucceeded, StatusFailed, StatusBlocked}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []Status{StatusPending, StatusReady, StatusRunning}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	started := time.Now()
	orig := &AgentTask{
		ID:        "t1",
		DependsOn: []string{"a", "b"},
		Status:    StatusRunning,
		Result: &Result{
			TaskID: "t1",
			Output: "x",
			Meta:   map[string]string{"k": "v"},
		},
		StartedAt: &started,
	}

	cp := orig.Clone()
	cp.DependsOn[0] = "mutated"
	cp.Result.Meta["k"] = "mutated"
	cp.Result.Output = "mutated"
	*cp.StartedAt = started.Add(time.Hour)

	if orig.DependsOn[0] != "a" {
		t.Error("clone shares the DependsOn slice")
	}
	if orig.Result.Meta["k"] != "v" {
		t.Error("clone shares the Meta map")
	}
	if orig.Result.Output != "x" {
		t.Error("clone shares the Result")
	}
	if !orig.StartedAt.Equal(started) {
		t.Error("clone shares the StartedAt pointer")
	}
}

func TestCloneNil(t *testing.T) {
	var tk *AgentTask
	if tk.Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

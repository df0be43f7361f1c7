package task

import "time"

// Status tracks a task's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// Terminal reports whether a task in this status can change state again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// DefaultMaxRetries is the per-task retry budget when none is configured.
// A task is attempted at most DefaultMaxRetries+1 times.
const DefaultMaxRetries = 2

// TaskDraft is a decomposer's description of one subtask, before the
// graph is built and validated.
type TaskDraft struct {
	ID                string   `json:"task_id"`
	Description       string   `json:"description"`
	AgentType         string   `json:"agent_type"`
	DependsOn         []string `json:"dependencies,omitempty"`
	EstimatedDuration int      `json:"estimated_duration,omitempty"`
}

// Result holds the output of a completed task. The payload is opaque to
// the scheduler; only dependents and the aggregator interpret it.
type Result struct {
	TaskID    string            `json:"task_id"`
	AgentType string            `json:"agent_type"`
	Output    string            `json:"output"`
	Meta      map[string]string `json:"meta,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// AgentTask is a concrete unit of work tracked by the orchestrator.
// It is mutated only by the orchestrator during a run and becomes
// immutable once its status is terminal.
type AgentTask struct {
	ID          string     `json:"task_id"`
	Description string     `json:"description"`
	AgentType   string     `json:"agent_type"`
	DependsOn   []string   `json:"dependencies,omitempty"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxRetries  int        `json:"max_retries"`
	Result      *Result    `json:"result,omitempty"`
	Err         string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out across goroutines.
func (t *AgentTask) Clone() *AgentTask {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.Meta != nil {
			r.Meta = make(map[string]string, len(t.Result.Meta))
			for k, v := range t.Result.Meta {
				r.Meta[k] = v
			}
		}
		cp.Result = &r
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

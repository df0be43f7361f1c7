package executor

import "fmt"

// UnknownAgentTypeError means no handler is registered for a task's
// agent type. The failure is permanent for that task; retrying cannot
// help, so the orchestrator skips the retry budget entirely.
type UnknownAgentTypeError struct {
	TaskID    string
	AgentType string
}

func (e *UnknownAgentTypeError) Error() string {
	return fmt.Sprintf("no agent registered for type %q (task %s)", e.AgentType, e.TaskID)
}

// ExecutionError wraps a transient agent failure. It counts toward the
// task's retry budget; a per-task timeout is reported the same way.
type ExecutionError struct {
	TaskID  string
	Timeout bool
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("task %s timed out: %v", e.TaskID, e.Err)
	}
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

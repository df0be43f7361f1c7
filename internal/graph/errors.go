package graph

import "fmt"

// ValidationError reports a malformed task graph. Builds that return it
// never reach execution.
type ValidationError struct {
	TaskID     string // task where the problem was found, if any
	MissingDep string // unresolved dependency id, if any
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.MissingDep != "" {
		return fmt.Sprintf("invalid task graph: task %q depends on unknown task %q", e.TaskID, e.MissingDep)
	}
	if e.TaskID != "" {
		return fmt.Sprintf("invalid task graph: task %q: %s", e.TaskID, e.Reason)
	}
	return "invalid task graph: " + e.Reason
}

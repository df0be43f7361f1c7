package agent

import (
	"context"

	"github.com/kestrelworks/agentops/internal/task"
)

// Input is everything an agent receives for one execution: the task
// itself and the results of its direct dependencies.
type Input struct {
	Task              task.AgentTask
	DependencyResults map[string]*task.Result
}

// Agent is the capability contract for executing one task. Concrete
// implementations (LLM-backed, tool-backed, in-process) live outside
// the scheduler; it only dispatches by agent type.
type Agent interface {
	Execute(ctx context.Context, in Input) (*task.Result, error)
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, in Input) (*task.Result, error)

func (f Func) Execute(ctx context.Context, in Input) (*task.Result, error) {
	return f(ctx, in)
}

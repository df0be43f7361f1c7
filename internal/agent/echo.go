package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelworks/agentops/internal/task"
)

// Echo is a trivial in-process agent that answers with its own task
// description plus a digest of its dependency results. Useful for
// wiring checks and as the CLI's default handler when no real agents
// are configured.
type Echo struct {
	AgentType string
}

func (e *Echo) Execute(ctx context.Context, in Input) (*task.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.AgentType, in.Task.Description)
	for _, depID := range in.Task.DependsOn {
		if r, ok := in.DependencyResults[depID]; ok {
			fmt.Fprintf(&b, "\n<- %s: %s", depID, r.Output)
		}
	}

	return &task.Result{
		TaskID:    in.Task.ID,
		AgentType: e.AgentType,
		Output:    b.String(),
	}, nil
}

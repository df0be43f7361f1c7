package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/agent"
	"github.com/kestrelworks/agentops/internal/contextstore"
	"github.com/kestrelworks/agentops/internal/task"
)

// Executor runs one task against its resolved agent. It assembles the
// agent input from the task description plus the recorded results of
// the task's direct dependencies, and enforces the per-task timeout.
// It never writes to the context store; the orchestrator is the single
// writer.
type Executor struct {
	registry *agent.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates an executor. timeout <= 0 disables the per-task deadline.
func New(registry *agent.Registry, timeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{registry: registry, timeout: timeout, logger: logger}
}

// Execute dispatches a single task. Failures are typed:
// *UnknownAgentTypeError for unregistered agent types, *ExecutionError
// for anything the agent itself got wrong, including timeouts.
func (e *Executor) Execute(ctx context.Context, t *task.AgentTask, contexts contextstore.Store) (*task.Result, error) {
	handler, ok := e.registry.Resolve(t.AgentType)
	if !ok {
		return nil, &UnknownAgentTypeError{TaskID: t.ID, AgentType: t.AgentType}
	}

	in := agent.Input{
		Task:              *t.Clone(),
		DependencyResults: make(map[string]*task.Result, len(t.DependsOn)),
	}
	for _, depID := range t.DependsOn {
		res, found, err := contexts.Get(ctx, depID)
		if err != nil {
			return nil, &ExecutionError{TaskID: t.ID, Err: fmt.Errorf("read dependency %s: %w", depID, err)}
		}
		if !found {
			// The scheduler only dispatches tasks whose dependencies
			// succeeded, so a missing result is a store fault.
			return nil, &ExecutionError{TaskID: t.ID, Err: fmt.Errorf("dependency result %s missing from context", depID)}
		}
		in.DependencyResults[depID] = res
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Info("executing task",
		zap.String("task", t.ID),
		zap.String("agent_type", t.AgentType),
		zap.Int("attempt", t.Attempts+1))

	start := time.Now()
	res, err := handler.Execute(runCtx, in)
	elapsed := time.Since(start)

	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) ||
			(runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil)
		e.logger.Warn("task execution failed",
			zap.String("task", t.ID),
			zap.Bool("timeout", timedOut),
			zap.Error(err))
		return nil, &ExecutionError{TaskID: t.ID, Timeout: timedOut, Err: err}
	}
	if res == nil {
		return nil, &ExecutionError{TaskID: t.ID, Err: errors.New("agent returned no result")}
	}

	if res.TaskID == "" {
		res.TaskID = t.ID
	}
	if res.AgentType == "" {
		res.AgentType = t.AgentType
	}
	res.Duration = elapsed
	return res, nil
}

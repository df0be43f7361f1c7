// Package decomposer turns a high-level goal into task drafts. The
// scheduler treats decomposition as an external collaborator: it only
// requires that the drafts resolve into a valid acyclic task graph.
package decomposer

import (
	"context"

	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/task"
)

// Decomposer breaks a goal into an ordered list of task drafts.
// agentTypes lists the agent types currently registered so the
// decomposer can only assign work that someone can perform.
type Decomposer interface {
	Decompose(ctx context.Context, goal string, agentTypes []string) ([]task.TaskDraft, error)
}

// Chain tries a primary decomposer and falls back when it errors or
// returns nothing. The orchestrator treats both paths identically.
type Chain struct {
	primary  Decomposer
	fallback Decomposer
	logger   *zap.Logger
}

// NewChain builds a decomposer chain.
func NewChain(primary, fallback Decomposer, logger *zap.Logger) *Chain {
	return &Chain{primary: primary, fallback: fallback, logger: logger}
}

func (c *Chain) Decompose(ctx context.Context, goal string, agentTypes []string) ([]task.TaskDraft, error) {
	if c.primary != nil {
		drafts, err := c.primary.Decompose(ctx, goal, agentTypes)
		if err == nil && len(drafts) > 0 {
			return drafts, nil
		}
		if err != nil {
			c.logger.Warn("primary decomposition failed, using fallback", zap.Error(err))
		} else {
			c.logger.Warn("primary decomposition returned no tasks, using fallback")
		}
	}
	return c.fallback.Decompose(ctx, goal, agentTypes)
}

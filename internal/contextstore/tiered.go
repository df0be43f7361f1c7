package contextstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/task"
)

// Tiered layers context stores from fastest to most durable, e.g.
// working memory → Redis session tier → Postgres archive. Writes go
// through every tier; reads stop at the first hit and promote it into
// the faster tiers.
type Tiered struct {
	tiers  []Store
	logger *zap.Logger
}

// NewTiered builds a tiered store. Tiers are ordered fastest first.
func NewTiered(logger *zap.Logger, tiers ...Store) *Tiered {
	return &Tiered{tiers: tiers, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, taskID string) (*task.Result, bool, error) {
	for i, tier := range t.tiers {
		res, ok, err := tier.Get(ctx, taskID)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		// Promote into faster tiers so the next read is cheap.
		for j := 0; j < i; j++ {
			if perr := t.tiers[j].Set(ctx, taskID, res); perr != nil {
				t.logger.Warn("context promote failed",
					zap.String("task", taskID), zap.Int("tier", j), zap.Error(perr))
			}
		}
		return res, true, nil
	}
	return nil, false, nil
}

func (t *Tiered) Set(ctx context.Context, taskID string, res *task.Result) error {
	for _, tier := range t.tiers {
		if err := tier.Set(ctx, taskID, res); err != nil {
			return err
		}
	}
	return nil
}

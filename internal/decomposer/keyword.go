package decomposer

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelworks/agentops/internal/task"
)

// Keyword is the deterministic fallback decomposer. It matches simple
// verbs in the goal against well-known agent types and chains each
// subtask to the previous one. Same goal and agent set always produce
// the same drafts.
type Keyword struct{}

// NewKeyword creates the keyword decomposer.
func NewKeyword() *Keyword { return &Keyword{} }

func (k *Keyword) Decompose(ctx context.Context, goal string, agentTypes []string) ([]task.TaskDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(goal)
	var drafts []task.TaskDraft

	add := func(description, preferredType string) {
		d := task.TaskDraft{
			ID:          fmt.Sprintf("task-%d", len(drafts)+1),
			Description: description,
			AgentType:   pickType(preferredType, agentTypes),
		}
		if len(drafts) > 0 {
			d.DependsOn = []string{drafts[len(drafts)-1].ID}
		}
		drafts = append(drafts, d)
	}

	if strings.Contains(lower, "research") || strings.Contains(lower, "find") {
		add("Research: "+goal, "research")
	}
	if strings.Contains(lower, "analyze") || strings.Contains(lower, "analysis") {
		add("Analyze findings", "analysis")
	}
	if strings.Contains(lower, "write") || strings.Contains(lower, "report") {
		add("Write report", "writing")
	}

	if len(drafts) == 0 {
		drafts = append(drafts, task.TaskDraft{
			ID:          "task-1",
			Description: goal,
			AgentType:   pickType("general", agentTypes),
		})
	}
	return drafts, nil
}

// pickType uses the preferred agent type when it is registered, else
// the first registered type, else the preference as-is (the run will
// then surface an unknown-agent failure rather than a silent no-op).
func pickType(preferred string, agentTypes []string) string {
	for _, t := range agentTypes {
		if t == preferred {
			return preferred
		}
	}
	if len(agentTypes) > 0 {
		return agentTypes[0]
	}
	return preferred
}

package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/provider"
	"github.com/kestrelworks/agentops/internal/task"
)

const decomposePrompt = `You are a task decomposition expert. Break down this complex task into subtasks.

Complex Task: %s

Available Agent Types: %s

Requirements:
1. Break into 2-5 clear, actionable subtasks
2. Assign each subtask to appropriate agent type
3. Identify dependencies (which tasks must complete before others)
4. Keep subtasks atomic and focused

Return ONLY a JSON array with this structure:
[
  {
    "task_id": "task-1",
    "description": "Clear description",
    "agent_type": "one of available types",
    "dependencies": [],
    "estimated_duration": 3
  }
]

JSON array:`

// LLM decomposes goals with a chat model. Responses must be a JSON
// array of drafts; markdown code fences around it are tolerated.
type LLM struct {
	provider  provider.Provider
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewLLM creates the LLM decomposer.
func NewLLM(p provider.Provider, model string, logger *zap.Logger) *LLM {
	return &LLM{provider: p, model: model, maxTokens: 1500, logger: logger}
}

func (l *LLM) Decompose(ctx context.Context, goal string, agentTypes []string) ([]task.TaskDraft, error) {
	req := &provider.ChatRequest{
		Model:     l.model,
		MaxTokens: l.maxTokens,
		Messages: []provider.Message{
			{Role: "user", Content: fmt.Sprintf(decomposePrompt, goal, strings.Join(agentTypes, ", "))},
		},
	}

	resp, err := l.provider.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decompose chat: %w", err)
	}

	drafts, err := parseDrafts(resp.Content)
	if err != nil {
		return nil, err
	}

	l.logger.Info("decomposed goal",
		zap.Int("subtasks", len(drafts)),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return drafts, nil
}

// parseDrafts strips an optional markdown fence and decodes the array.
func parseDrafts(content string) ([]task.TaskDraft, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.Index(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var drafts []task.TaskDraft
	if err := json.Unmarshal([]byte(content), &drafts); err != nil {
		return nil, fmt.Errorf("parse decomposition: %w", err)
	}

	for i := range drafts {
		if drafts[i].ID == "" {
			drafts[i].ID = fmt.Sprintf("task-%d", i+1)
		}
	}
	return drafts, nil
}

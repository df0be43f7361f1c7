// Package contextstore holds the shared-context contracts and backends.
// The orchestrator writes each task's result here once, after the round
// barrier, so dependents always read durably recorded predecessor
// output. Backends must serialize concurrent writes per key; writers
// within a round touch disjoint keys (one per task id).
package contextstore

import (
	"context"
	"sync"

	"github.com/kestrelworks/agentops/internal/task"
)

// Store is the capability the orchestrator uses to read and write
// per-task results.
type Store interface {
	Get(ctx context.Context, taskID string) (*task.Result, bool, error)
	Set(ctx context.Context, taskID string, res *task.Result) error
}

// Memory is the default in-process store, one instance per run.
type Memory struct {
	mu      sync.RWMutex
	results map[string]*task.Result
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{results: make(map[string]*task.Result)}
}

func (m *Memory) Get(ctx context.Context, taskID string) (*task.Result, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[taskID]
	return r, ok, nil
}

func (m *Memory) Set(ctx context.Context, taskID string, res *task.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[taskID] = res
	return nil
}

// Len returns the number of stored results.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}

// scoped prefixes every key with a run id so shared backends (Redis,
// Postgres) can serve many runs without key collisions.
type scoped struct {
	inner Store
	runID string
}

// Scope wraps a store so all keys are namespaced to one run.
func Scope(s Store, runID string) Store {
	return &scoped{inner: s, runID: runID}
}

func (s *scoped) key(taskID string) string { return s.runID + "/" + taskID }

func (s *scoped) Get(ctx context.Context, taskID string) (*task.Result, bool, error) {
	return s.inner.Get(ctx, s.key(taskID))
}

func (s *scoped) Set(ctx context.Context, taskID string, res *task.Result) error {
	return s.inner.Set(ctx, s.key(taskID), res)
}

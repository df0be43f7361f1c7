package agent

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry maps agent-type tags to handlers. Registration is explicit
// and happens before a run starts; there is no implicit discovery, and
// an unregistered tag fails closed at dispatch time.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	logger *zap.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger,
	}
}

// Register binds an agent type to a handler, replacing any previous
// binding for the same type.
func (r *Registry) Register(agentType string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentType] = a
	r.logger.Info("registered agent", zap.String("type", agentType))
}

// Resolve returns the handler for an agent type.
func (r *Registry) Resolve(agentType string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentType]
	return a, ok
}

// Types returns all registered agent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Len returns the number of registered agent types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Package runtime implements the agent runtime registry (C8): a thread-safe
// agent_id -> Runtime map bundling every per-agent store so no two agents
// ever share a workspace, database, or signing key.
//
// Grounded on the teacher's internal/tools.ToolRegistry (internal/tools/registry.go)
// for the mutex-guarded map-by-name shape, generalized from tool handlers to
// whole per-agent runtime bundles.
package runtime

import (
	"database/sql"
	"sync"

	"github.com/autopoiesis-dev/agentcore/internal/approval"
	"github.com/autopoiesis-dev/agentcore/internal/checkpoint"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

// defaultSentinel is the reserved agent_id that GetDefault() falls
// back to when more than one runtime is registered.
const defaultSentinel = "__default__"

// Runtime bundles one agent's distinct stores and execution dependencies.
type Runtime struct {
	AgentID         string
	Workspace       workspace.Paths
	Approvals       *approval.Store
	Keys            *approval.KeyManager
	Checkpoints     *checkpoint.Store
	KnowledgeDB     *sql.DB
	SubscriptionsDB *sql.DB
	LLMClient       turn.LLMClient
	Tools           turn.ToolExecutor
	Guards          turn.LoopGuards
}

// Registry is the process-wide agent_id -> Runtime map.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]*Runtime
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{runtimes: map[string]*Runtime{}}
}

// Register stores rt under its AgentID, replacing any existing entry.
func (r *Registry) Register(rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[rt.AgentID] = rt
}

// Get returns the runtime for agentID.
func (r *Registry) Get(agentID string) (*Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[agentID]
	if !ok {
		return nil, models.NewAgentError(models.ErrorKindUnknownAgent, "no runtime registered for agent %q", agentID)
	}
	return rt, nil
}

// GetDefault implements the backward-compatible no-argument lookup: if
// exactly one runtime is registered, return it; else if a runtime is
// registered under the default sentinel, return that; else fail.
func (r *Registry) GetDefault() (*Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.runtimes) == 1 {
		for _, rt := range r.runtimes {
			return rt, nil
		}
	}
	if rt, ok := r.runtimes[defaultSentinel]; ok {
		return rt, nil
	}
	return nil, models.NewAgentError(models.ErrorKindUnknownAgent, "multiple runtimes — specify agent_id")
}

// Reset clears the registry for test isolation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes = map[string]*Runtime{}
}

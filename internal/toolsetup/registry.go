// Package toolsetup wires the concrete tool handlers and the sandboxed
// shell runner together into the turn.ToolExecutor an agent worker runs
// against. Kept separate from internal/tools so that package can stay free
// of the import cycle a bootstrap would otherwise create (tools/handlers
// imports tools).
package toolsetup

import (
	"github.com/autopoiesis-dev/agentcore/internal/execenv"
	"github.com/autopoiesis-dev/agentcore/internal/mcp"
	"github.com/autopoiesis-dev/agentcore/internal/sandbox"
	"github.com/autopoiesis-dev/agentcore/internal/tools"
	"github.com/autopoiesis-dev/agentcore/internal/tools/handlers"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

// NewRegistry builds a ToolRegistry with every built-in, non-shell handler
// registered. The shell tool is handled directly by tools.Executor, which
// classifies and sandboxes it instead of dispatching through the registry.
func NewRegistry(mcpStore *mcp.McpStore) *tools.ToolRegistry {
	registry := tools.NewToolRegistry()
	registry.Register(handlers.NewReadFileTool())
	registry.Register(handlers.NewWriteFileTool())
	registry.Register(handlers.NewListDirTool())
	registry.Register(handlers.NewGrepFilesTool())
	registry.Register(handlers.NewApplyPatchTool())
	if mcpStore != nil {
		registry.Register(handlers.NewMCPHandler(mcpStore))
	}
	return registry
}

// NewExecutor builds the turn.ToolExecutor for one agent: the registry
// above for everything except shell, and a sandbox.Runner rooted at paths
// for shell commands, gated by cl. agentID is stamped onto the returned
// Executor so MCP tool calls route to this agent's own connection manager.
func NewExecutor(paths workspace.Paths, cl tools.Classifier, mcpStore *mcp.McpStore, selfPath, agentID string) *tools.Executor {
	registry := NewRegistry(mcpStore)
	runner := sandbox.NewRunner(paths, sandbox.DefaultLimits(), execenv.Default(), sandbox.NewSandboxManager(), nil, selfPath)
	executor := tools.NewExecutor(registry, cl, runner)
	executor.AgentID = agentID
	return executor
}

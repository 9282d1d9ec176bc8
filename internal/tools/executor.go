package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/autopoiesis-dev/agentcore/internal/classifier"
	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/sandbox"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
)

// approvalScopeKey is the context.Context value key carrying the set of
// tool call ids a decision-bearing approval envelope has already cleared
// for this turn. turn.resolvePendingCalls re-invokes Executor.Execute for
// every approved pending call with no "already approved" flag on the call
// itself, so the approval boundary has to live out of band on the
// context, the same way internal/checkpoint's Scope does.
type approvalScopeKey struct{}

// WithApprovedCalls returns a derived context carrying the set of tool
// call ids that are cleared to run even though their classifier tier
// would otherwise require a fresh approval. Callers build this set from
// an approval.Store.VerifyAndConsume result immediately before resuming a
// deferred turn.
func WithApprovedCalls(ctx context.Context, callIDs []string) context.Context {
	set := make(map[string]bool, len(callIDs))
	for _, id := range callIDs {
		set[id] = true
	}
	return context.WithValue(ctx, approvalScopeKey{}, set)
}

func isApproved(ctx context.Context, callID string) bool {
	set, ok := ctx.Value(approvalScopeKey{}).(map[string]bool)
	return ok && set[callID]
}

// Classifier gates shell command tool calls by risk tier. Satisfied by
// both classifier.Classify and (*classifier.AmendedClassifier).Classify.
type Classifier interface {
	Classify(cmd string) classifier.Tier
}

type funcClassifier func(string) classifier.Tier

func (f funcClassifier) Classify(cmd string) classifier.Tier { return f(cmd) }

// DefaultClassifier wraps the package-level classifier.Classify function.
func DefaultClassifier() Classifier {
	return funcClassifier(classifier.Classify)
}

// ShellRunner runs one sandboxed shell command to completion. Satisfied by
// *sandbox.Runner; exists as an interface so Executor can be unit tested
// without spawning real subprocesses.
type ShellRunner interface {
	Run(ctx context.Context, toolCallID string, command []string, cwd string, timeout time.Duration, tier string) (*sandbox.Result, error)

	// RunInteractive runs command under a pseudo-terminal instead of plain
	// pipes, for commands whose behavior depends on having a tty (pagers,
	// editors opened by a review flow, `git rebase -i`).
	RunInteractive(ctx context.Context, toolCallID string, command []string, cwd string, timeout time.Duration, tier string) (*sandbox.Result, error)
}

// Executor implements turn.ToolExecutor: it classifies shell calls by
// risk tier, defers anything above TierFree until it sees the call id in
// the context's approved set, and dispatches everything else straight to
// the ToolRegistry.
type Executor struct {
	registry   *ToolRegistry
	classifier Classifier
	runner     ShellRunner
	shellTier  map[string]string // tool_call_id -> tier, recorded for the caller to build an envelope from
	logger     hclogLogger

	// AgentID identifies this executor's owning agent to the MCP store
	// (ToolInvocation.SessionID), so each agent gets its own connection
	// manager rather than sharing one keyed on an empty string.
	AgentID string
}

type hclogLogger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

// NewExecutor wires a ToolRegistry (read_file, list_dir, grep_files,
// apply_patch, mcp, ...) together with the command classifier and the
// sandboxed shell runner.
func NewExecutor(registry *ToolRegistry, cl Classifier, runner ShellRunner) *Executor {
	return &Executor{
		registry:   registry,
		classifier: cl,
		runner:     runner,
		shellTier:  map[string]string{},
		logger:     log.For("tools.executor"),
	}
}

// TierOf returns the risk tier recorded for a deferred shell call, or ""
// if the call was never classified (non-shell tools, or calls run below
// TierReview never need one).
func (e *Executor) TierOf(callID string) string {
	return e.shellTier[callID]
}

// Execute implements turn.ToolExecutor.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	if call.Name == "shell" || call.Name == "shell_command" {
		return e.executeShell(ctx, call)
	}

	handler, err := e.registry.GetHandler(call.Name)
	if err != nil {
		return models.ToolResult{ToolCallID: call.ID, Error: err.Error()}, nil
	}

	invocation := &ToolInvocation{CallID: call.ID, ToolName: call.Name, Arguments: call.Arguments, SessionID: e.AgentID}
	out, err := handler.Handle(ctx, invocation)
	if err != nil {
		return models.ToolResult{ToolCallID: call.ID, Error: err.Error()}, nil
	}
	if out.Success != nil && !*out.Success {
		return models.ToolResult{ToolCallID: call.ID, Output: out.Content, Error: out.Content}, nil
	}
	return models.ToolResult{ToolCallID: call.ID, Output: out.Content}, nil
}

func (e *Executor) executeShell(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	command, _ := call.Arguments["command"].(string)
	if command == "" {
		return models.ToolResult{}, models.NewAgentError(models.ErrorKindInvalidSubmission, "shell call %q missing command argument", call.ID)
	}

	tier := e.classifier.Classify(command)
	if tier == classifier.TierBlock {
		e.logger.Warn("shell command blocked", "call_id", call.ID, "command", command)
		return models.ToolResult{ToolCallID: call.ID, Blocked: true, Error: "command blocked by policy"}, nil
	}

	if tier != classifier.TierFree && !isApproved(ctx, call.ID) {
		e.shellTier[call.ID] = tier.String()
		return models.ToolResult{}, turn.ErrRequiresApproval
	}

	cwd, _ := call.Arguments["workdir"].(string)
	if cwd == "" {
		cwd, _ = call.Arguments["working_directory"].(string)
	}
	timeout := DefaultShellTimeoutMs
	if ms, ok := call.Arguments["timeout_ms"].(float64); ok && ms > 0 {
		timeout = int64(ms)
	}

	argv := []string{"bash", "-c", command}
	tty, _ := call.Arguments["tty"].(bool)

	var result *sandbox.Result
	var err error
	if tty {
		result, err = e.runner.RunInteractive(ctx, call.ID, argv, cwd, time.Duration(timeout)*time.Millisecond, tier.String())
	} else {
		result, err = e.runner.Run(ctx, call.ID, argv, cwd, time.Duration(timeout)*time.Millisecond, tier.String())
	}
	if err != nil {
		return models.ToolResult{ToolCallID: call.ID, Error: err.Error()}, nil
	}

	out := models.ToolResult{ToolCallID: call.ID, Output: result.Output}
	if result.ExitCode != 0 {
		out.Error = fmt.Sprintf("exit status %d", result.ExitCode)
	}
	if result.TimedOut {
		out.Error = "command timed out"
	}
	return out, nil
}

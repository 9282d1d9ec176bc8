package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/stream"
)

// ErrRequiresApproval is returned by a ToolExecutor when a tool call must be
// deferred for approval rather than executed inline.
var ErrRequiresApproval = errors.New("turn: tool call requires approval")

// ToolExecutor runs one tool call to completion, or returns
// ErrRequiresApproval without side effects when the call needs sign-off.
type ToolExecutor interface {
	Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error)
}

// CompletionChunk is one piece of incremental model output, forwarded to the
// attached stream handle as it arrives.
type CompletionChunk struct {
	TextDelta     string
	ThinkingDelta string
}

// CompletionResult is one LLM round trip.
type CompletionResult struct {
	Items        []models.ConversationItem
	FinishReason models.FinishReason
	Usage        models.TokenUsage
}

// LLMClient is the provider-agnostic model boundary the turn executor calls
// against. Implementations live in internal/llmclient.
type LLMClient interface {
	Complete(ctx context.Context, history []models.ConversationItem, onChunk func(CompletionChunk)) (CompletionResult, error)
}

// PendingCall is a tool call that was deferred in a prior turn and is now
// being resolved.
type PendingCall struct {
	ToolCallID string
	ToolName   string
	Args       map[string]interface{}
}

// DeferredResolution is one approver decision for a PendingCall.
type DeferredResolution struct {
	ToolCallID    string
	Approved      bool
	DenialMessage string
}

// DeferredRequest is one outstanding tool call awaiting approval.
type DeferredRequest struct {
	ToolCallID string
	ToolName   string
	Args       map[string]interface{}
}

// OutputKind discriminates TurnOutput. Dispatch on this field, never on
// whether Text or DeferredRequests happens to be nil.
type OutputKind string

const (
	OutputText     OutputKind = "text"
	OutputDeferred OutputKind = "deferred"
)

// TurnOutput is the turn executor's polymorphic result: either final text
// (including partial-result guard-breach messages) or one or more tool
// calls that need approval before the turn can resume.
type TurnOutput struct {
	Kind             OutputKind
	Text             string
	DeferredRequests []DeferredRequest
	History          []models.ConversationItem
}

// Params bundles one turn invocation's inputs.
type Params struct {
	WorkItemID   string
	Prompt       *string
	History      []models.ConversationItem
	PendingCalls []PendingCall
	Resolutions  []DeferredResolution
	Stream       stream.Handle
	Guards       LoopGuards
}

// Execute runs one bounded turn: guard checks, the LLM/tool iteration loop,
// and streaming forwarding, returning a TurnOutput or a wrapped provider
// error for genuine transport failures.
func Execute(ctx context.Context, client LLMClient, executor ToolExecutor, params Params) (TurnOutput, error) {
	logger := log.For("turn")
	guards := params.Guards
	if guards == (LoopGuards{}) {
		guards = DefaultLoopGuards()
	}
	sh := params.Stream
	if sh == nil {
		sh = stream.Null{}
	}
	defer sh.Close()

	history := append([]models.ConversationItem(nil), params.History...)
	if params.Prompt != nil {
		history = append(history, models.ConversationItem{Type: models.ItemTypeUserMessage, Content: *params.Prompt})
	}

	startedAt := time.Now()
	warnedTimeout := false
	warnedTools := false
	warnedTokens := false
	toolCallCount := 0
	totalTokens := 0

	checkTimeout := func() error {
		elapsed := time.Since(startedAt).Seconds()
		if !warnedTimeout && elapsed >= warningTimeout(guards.WorkItemTimeoutSeconds) {
			logger.Warn("work item reached 80% of wall-clock timeout", "work_item_id", params.WorkItemID, "elapsed_seconds", elapsed, "limit_seconds", guards.WorkItemTimeoutSeconds)
			warnedTimeout = true
		}
		if elapsed >= guards.WorkItemTimeoutSeconds {
			return models.NewAgentError(models.ErrorKindTimeoutExceeded, "work item exceeded wall-clock timeout (%.1fs/%.1fs)", elapsed, guards.WorkItemTimeoutSeconds)
		}
		return nil
	}

	resolved, err := resolvePendingCalls(ctx, executor, params.PendingCalls, params.Resolutions)
	if err != nil {
		return TurnOutput{}, err
	}
	history = append(history, resolved...)

	for iteration := 0; iteration < guards.ToolLoopMaxIterations; iteration++ {
		if tErr := checkTimeout(); tErr != nil {
			return partialResult(history, tErr), nil
		}

		onChunk := func(c CompletionChunk) {
			if c.TextDelta != "" {
				sh.Write(c.TextDelta)
			}
			if c.ThinkingDelta != "" {
				sh.UpdateThinking(c.ThinkingDelta)
			}
		}

		result, callErr := client.Complete(ctx, history, onChunk)
		if callErr != nil {
			return TurnOutput{}, models.NewProviderError(fmt.Sprintf("%T", callErr), callErr)
		}
		if tErr := checkTimeout(); tErr != nil {
			return partialResult(history, tErr), nil
		}

		totalTokens += result.Usage.TotalTokens
		if !warnedTokens && totalTokens >= warningThreshold(guards.WorkItemTokenBudget) {
			logger.Warn("work item reached 80% of token budget", "work_item_id", params.WorkItemID, "tokens", totalTokens, "limit", guards.WorkItemTokenBudget)
			warnedTokens = true
		}
		if totalTokens >= guards.WorkItemTokenBudget {
			return partialResult(history, models.NewAgentError(models.ErrorKindTokenBudgetExceeded,
				"work item token budget reached (%d/%d)", totalTokens, guards.WorkItemTokenBudget)), nil
		}

		history = append(history, result.Items...)
		calls := extractToolCalls(result.Items)

		if len(calls) == 0 {
			if result.FinishReason == models.FinishReasonStop || result.FinishReason == "" {
				logger.Info("turn completed", "work_item_id", params.WorkItemID, "iterations", iteration+1)
				return TurnOutput{Kind: OutputText, Text: lastAssistantText(result.Items), History: history}, nil
			}
			continue
		}

		var deferred []DeferredRequest
		for _, call := range calls {
			sh.StartToolCall(call.ID, call.Name, call.Arguments)
			toolResult, execErr := executor.Execute(ctx, call)
			if errors.Is(execErr, ErrRequiresApproval) {
				sh.FinishToolCall(call.ID, "deferred", "")
				deferred = append(deferred, DeferredRequest{ToolCallID: call.ID, ToolName: call.Name, Args: call.Arguments})
				continue
			}
			if execErr != nil {
				toolResult = models.ToolResult{ToolCallID: call.ID, Error: execErr.Error()}
			}
			sh.FinishToolCall(call.ID, toolStatus(toolResult), toolResult.Output)
			history = append(history, toolResultItem(toolResult))
			toolCallCount++
		}

		if len(deferred) > 0 {
			logger.Info("turn deferred for approval", "work_item_id", params.WorkItemID, "pending", len(deferred))
			return TurnOutput{Kind: OutputDeferred, DeferredRequests: deferred, History: history}, nil
		}

		if !warnedTools && toolCallCount >= warningThreshold(guards.ToolLoopMaxIterations) {
			logger.Warn("work item reached 80% of tool loop iteration cap", "work_item_id", params.WorkItemID, "calls", toolCallCount, "limit", guards.ToolLoopMaxIterations)
			warnedTools = true
		}
		if toolCallCount >= guards.ToolLoopMaxIterations {
			return partialResult(history, models.NewAgentError(models.ErrorKindToolLoopExceeded,
				"tool loop iteration cap reached (%d/%d)", toolCallCount, guards.ToolLoopMaxIterations)), nil
		}
	}

	return partialResult(history, models.NewAgentError(models.ErrorKindToolLoopExceeded,
		"reached maximum tool loop iterations (%d) without completing", guards.ToolLoopMaxIterations)), nil
}

// resolvePendingCalls applies approver decisions for calls deferred in a
// prior turn, executing the approved ones for real and recording denials as
// blocked tool results, then returns the resulting history items in call
// order.
func resolvePendingCalls(ctx context.Context, executor ToolExecutor, pending []PendingCall, resolutions []DeferredResolution) ([]models.ConversationItem, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	byID := make(map[string]DeferredResolution, len(resolutions))
	for _, r := range resolutions {
		byID[r.ToolCallID] = r
	}

	var out []models.ConversationItem
	for _, call := range pending {
		res, ok := byID[call.ToolCallID]
		if !ok {
			return nil, models.NewAgentError(models.ErrorKindInvalidSubmission, "no decision supplied for pending tool call %q", call.ToolCallID)
		}
		if !res.Approved {
			msg := res.DenialMessage
			if msg == "" {
				msg = "denied by approver"
			}
			out = append(out, toolResultItem(models.ToolResult{ToolCallID: call.ToolCallID, Blocked: true, Error: msg}))
			continue
		}
		toolResult, err := executor.Execute(ctx, models.ToolCall{ID: call.ToolCallID, Name: call.ToolName, Arguments: call.Args})
		if err != nil && !errors.Is(err, ErrRequiresApproval) {
			toolResult = models.ToolResult{ToolCallID: call.ToolCallID, Error: err.Error()}
		}
		out = append(out, toolResultItem(toolResult))
	}
	return out, nil
}

func partialResult(history []models.ConversationItem, guardErr error) TurnOutput {
	msg := partialResultMessage(guardErr)
	history = append(history, models.ConversationItem{Type: models.ItemTypeAssistantMessage, Content: msg})
	return TurnOutput{Kind: OutputText, Text: msg, History: history}
}

func partialResultMessage(err error) string {
	kind, _ := models.KindOf(err)
	switch kind {
	case models.ErrorKindToolLoopExceeded:
		return "Partial result: tool loop iteration cap reached and execution was stopped."
	case models.ErrorKindTokenBudgetExceeded:
		return "Partial result: work item token budget reached and execution was stopped."
	case models.ErrorKindTimeoutExceeded:
		return "Partial result: work item exceeded wall-clock timeout and was stopped."
	default:
		return fmt.Sprintf("Partial result: %v", err)
	}
}

func extractToolCalls(items []models.ConversationItem) []models.ToolCall {
	var calls []models.ToolCall
	for _, it := range items {
		if it.Type == models.ItemTypeToolCall {
			calls = append(calls, it.ToolCalls...)
		}
	}
	return calls
}

func lastAssistantText(items []models.ConversationItem) string {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Type == models.ItemTypeAssistantMessage {
			return items[i].Content
		}
	}
	return ""
}

func toolStatus(r models.ToolResult) string {
	if r.Blocked {
		return "blocked"
	}
	if r.Error != "" {
		return "error"
	}
	return "ok"
}

func toolResultItem(r models.ToolResult) models.ConversationItem {
	toolErr := r.Error
	if r.Blocked && toolErr != "" {
		toolErr = "blocked: " + toolErr
	}
	return models.ConversationItem{
		Type:       models.ItemTypeToolResult,
		ToolCallID: r.ToolCallID,
		ToolOutput: r.Output,
		ToolError:  toolErr,
	}
}

package turn

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/models"
)

type scriptedClient struct {
	responses []CompletionResult
	calls     int
	delay     time.Duration
}

func (c *scriptedClient) Complete(ctx context.Context, history []models.ConversationItem, onChunk func(CompletionChunk)) (CompletionResult, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.calls >= len(c.responses) {
		return CompletionResult{}, fmt.Errorf("scriptedClient: no more responses")
	}
	r := c.responses[c.calls]
	c.calls++
	onChunk(CompletionChunk{TextDelta: "x"})
	return r, nil
}

type stubExecutor struct {
	requireApproval map[string]bool
	results         map[string]models.ToolResult
}

func (e *stubExecutor) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	if e.requireApproval[call.ID] {
		return models.ToolResult{}, ErrRequiresApproval
	}
	if r, ok := e.results[call.ID]; ok {
		return r, nil
	}
	return models.ToolResult{ToolCallID: call.ID, Output: "ok"}, nil
}

func assistantText(text string, finish models.FinishReason) CompletionResult {
	return CompletionResult{
		Items:        []models.ConversationItem{{Type: models.ItemTypeAssistantMessage, Content: text}},
		FinishReason: finish,
		Usage:        models.TokenUsage{TotalTokens: 10},
	}
}

func assistantToolCall(calls ...models.ToolCall) CompletionResult {
	return CompletionResult{
		Items:        []models.ConversationItem{{Type: models.ItemTypeToolCall, ToolCalls: calls}},
		FinishReason: models.FinishReasonToolCalls,
		Usage:        models.TokenUsage{TotalTokens: 10},
	}
}

func TestExecuteReturnsFinalText(t *testing.T) {
	client := &scriptedClient{responses: []CompletionResult{assistantText("hi there", models.FinishReasonStop)}}
	executor := &stubExecutor{}
	prompt := "hello"

	out, err := Execute(context.Background(), client, executor, Params{Prompt: &prompt})
	require.NoError(t, err)
	assert.Equal(t, OutputText, out.Kind)
	assert.Equal(t, "hi there", out.Text)
}

func TestExecuteExecutesFreeToolsAndContinues(t *testing.T) {
	client := &scriptedClient{responses: []CompletionResult{
		assistantToolCall(models.ToolCall{ID: "c1", Name: "read_file"}),
		assistantText("done", models.FinishReasonStop),
	}}
	executor := &stubExecutor{}

	out, err := Execute(context.Background(), client, executor, Params{})
	require.NoError(t, err)
	assert.Equal(t, OutputText, out.Kind)
	assert.Equal(t, "done", out.Text)

	var sawToolResult bool
	for _, it := range out.History {
		if it.Type == models.ItemTypeToolResult && it.ToolCallID == "c1" {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult)
}

func TestExecuteDefersWhenApprovalRequired(t *testing.T) {
	client := &scriptedClient{responses: []CompletionResult{
		assistantToolCall(models.ToolCall{ID: "c1", Name: "run_shell", Arguments: map[string]interface{}{"cmd": "rm -rf /"}}),
	}}
	executor := &stubExecutor{requireApproval: map[string]bool{"c1": true}}

	out, err := Execute(context.Background(), client, executor, Params{})
	require.NoError(t, err)
	require.Equal(t, OutputDeferred, out.Kind)
	require.Len(t, out.DeferredRequests, 1)
	assert.Equal(t, "c1", out.DeferredRequests[0].ToolCallID)
	assert.Equal(t, "run_shell", out.DeferredRequests[0].ToolName)
}

func TestExecuteResumesWithApprovedDecision(t *testing.T) {
	client := &scriptedClient{responses: []CompletionResult{assistantText("all done", models.FinishReasonStop)}}
	executor := &stubExecutor{results: map[string]models.ToolResult{"c1": {ToolCallID: "c1", Output: "executed"}}}

	out, err := Execute(context.Background(), client, executor, Params{
		PendingCalls: []PendingCall{{ToolCallID: "c1", ToolName: "run_shell", Args: map[string]interface{}{"cmd": "ls"}}},
		Resolutions:  []DeferredResolution{{ToolCallID: "c1", Approved: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, OutputText, out.Kind)

	var found bool
	for _, it := range out.History {
		if it.Type == models.ItemTypeToolResult && it.ToolCallID == "c1" {
			found = true
			assert.Equal(t, "executed", it.ToolOutput)
		}
	}
	assert.True(t, found)
}

func TestExecuteResumesWithDeniedDecision(t *testing.T) {
	client := &scriptedClient{responses: []CompletionResult{assistantText("ok", models.FinishReasonStop)}}
	executor := &stubExecutor{}

	out, err := Execute(context.Background(), client, executor, Params{
		PendingCalls: []PendingCall{{ToolCallID: "c1", ToolName: "run_shell"}},
		Resolutions:  []DeferredResolution{{ToolCallID: "c1", Approved: false, DenialMessage: "not today"}},
	})
	require.NoError(t, err)

	var found bool
	for _, it := range out.History {
		if it.Type == models.ItemTypeToolResult && it.ToolCallID == "c1" {
			found = true
			assert.Contains(t, it.ToolError, "not today")
		}
	}
	assert.True(t, found)
}

func TestExecuteToolLoopCapProducesPartialResult(t *testing.T) {
	var responses []CompletionResult
	for i := 0; i < 50; i++ {
		responses = append(responses, assistantToolCall(models.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "noop"}))
	}
	client := &scriptedClient{responses: responses}
	executor := &stubExecutor{}

	out, err := Execute(context.Background(), client, executor, Params{Guards: LoopGuards{ToolLoopMaxIterations: 3, WorkItemTokenBudget: 1000000, WorkItemTimeoutSeconds: 300}})
	require.NoError(t, err)
	assert.Equal(t, OutputText, out.Kind)
	assert.Contains(t, out.Text, "tool loop iteration cap reached")
}

func TestExecuteTokenBudgetProducesPartialResult(t *testing.T) {
	var responses []CompletionResult
	for i := 0; i < 10; i++ {
		responses = append(responses, assistantToolCall(models.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "noop"}))
	}
	client := &scriptedClient{responses: responses}
	executor := &stubExecutor{}

	out, err := Execute(context.Background(), client, executor, Params{Guards: LoopGuards{ToolLoopMaxIterations: 1000, WorkItemTokenBudget: 15, WorkItemTimeoutSeconds: 300}})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "token budget reached")
}

func TestExecuteTimeoutProducesPartialResult(t *testing.T) {
	client := &scriptedClient{
		responses: []CompletionResult{assistantText("too slow", models.FinishReasonStop)},
		delay:     50 * time.Millisecond,
	}
	executor := &stubExecutor{}

	out, err := Execute(context.Background(), client, executor, Params{Guards: LoopGuards{ToolLoopMaxIterations: 40, WorkItemTokenBudget: 120000, WorkItemTimeoutSeconds: 0.01}})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "wall-clock timeout")
}

func TestExecuteWrapsProviderErrors(t *testing.T) {
	client := &scriptedClient{responses: nil}
	executor := &stubExecutor{}

	_, err := Execute(context.Background(), client, executor, Params{})
	require.Error(t, err)
	var pe *models.ProviderError
	require.True(t, errors.As(err, &pe))
}

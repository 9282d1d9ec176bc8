package agentworker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/approval"
	"github.com/autopoiesis-dev/agentcore/internal/checkpoint"
	"github.com/autopoiesis-dev/agentcore/internal/history"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/runtime"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

// stubClient returns a queued sequence of CompletionResults, one per round
// trip turn.Execute makes against it.
type stubClient struct {
	results []turn.CompletionResult
	i       int
}

func (c *stubClient) Complete(_ context.Context, _ []models.ConversationItem, _ func(turn.CompletionChunk)) (turn.CompletionResult, error) {
	r := c.results[c.i]
	c.i++
	return r, nil
}

// plainExecutor runs every call immediately; used for the text-only turn.
type plainExecutor struct{}

func (plainExecutor) Execute(_ context.Context, call models.ToolCall) (models.ToolResult, error) {
	return models.ToolResult{ToolCallID: call.ID, Output: "ok"}, nil
}

// conditionalExecutor defers a shell call exactly once per call id, then
// runs it on the next Execute call for that id (the shape
// turn.resolvePendingCalls drives a continuation through).
type conditionalExecutor struct {
	deferred    map[string]bool
	ranApproved bool
}

func (e *conditionalExecutor) Execute(_ context.Context, call models.ToolCall) (models.ToolResult, error) {
	if call.Name != "shell" {
		return models.ToolResult{ToolCallID: call.ID, Output: "ok"}, nil
	}
	if e.deferred == nil {
		e.deferred = map[string]bool{}
	}
	if !e.deferred[call.ID] {
		e.deferred[call.ID] = true
		return models.ToolResult{}, turn.ErrRequiresApproval
	}
	e.ranApproved = true
	return models.ToolResult{ToolCallID: call.ID, Output: "ran"}, nil
}

// newTestRuntime builds a fully wired runtime.Runtime backed by real,
// temp-directory-rooted checkpoint and approval stores, for one agent.
func newTestRuntime(t *testing.T, agentID string, client turn.LLMClient, executor turn.ToolExecutor) *runtime.Runtime {
	t.Helper()
	paths, err := workspace.Resolve(t.TempDir(), agentID)
	require.NoError(t, err)
	require.NoError(t, paths.MkdirAll())

	cpDB, err := checkpoint.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cpDB.Close() })

	apDB, err := approval.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { apDB.Close() })

	km := approval.NewKeyManager()
	_, err = km.CreateInitialKey("passphrase")
	require.NoError(t, err)
	require.NoError(t, km.Unlock("passphrase"))

	return &runtime.Runtime{
		AgentID:     agentID,
		Workspace:   paths,
		Approvals:   approval.NewStore(apDB),
		Keys:        km,
		Checkpoints: checkpoint.NewStore(cpDB),
		LLMClient:   client,
		Tools:       executor,
		Guards:      turn.DefaultLoopGuards(),
	}
}

func newTestWorker(t *testing.T, rt *runtime.Runtime) *Worker {
	t.Helper()
	registry := runtime.New()
	registry.Register(rt)
	return NewWorker(registry, history.DefaultMaxToolReturnBytes, history.CompactConfig{
		ContextWindowTokens: 100000, WarningThreshold: 0.8, CompactionThreshold: 0.9, KeepRecent: 20,
	})
}

func TestHandleCompletesTextOnlyTurn(t *testing.T) {
	client := &stubClient{results: []turn.CompletionResult{
		{Items: []models.ConversationItem{{Type: models.ItemTypeAssistantMessage, Content: "done"}}, FinishReason: models.FinishReasonStop},
	}}
	rt := newTestRuntime(t, "alpha", client, plainExecutor{})
	w := newTestWorker(t, rt)

	prompt := "say hi"
	item := models.WorkItem{ID: "w1", Type: models.WorkItemChat, Priority: models.PriorityNormal, AgentID: "alpha", Input: models.WorkItemInput{Prompt: &prompt}}

	out, err := w.Handle(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, out.Text)
	assert.Equal(t, "done", *out.Text)
	assert.NotEmpty(t, out.MessageHistoryJSON)

	_, ok, err := rt.Checkpoints.Load("w1")
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint should be cleared once a work item completes")
}

func TestHandleUnknownAgentFails(t *testing.T) {
	rt := newTestRuntime(t, "alpha", &stubClient{}, plainExecutor{})
	w := newTestWorker(t, rt)

	prompt := "hi"
	item := models.WorkItem{ID: "w1", Type: models.WorkItemChat, Priority: models.PriorityNormal, AgentID: "nobody", Input: models.WorkItemInput{Prompt: &prompt}}
	_, err := w.Handle(context.Background(), item)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindUnknownAgent, kind)
}

func TestHandleDeferredThenResumedApprovedCall(t *testing.T) {
	executor := &conditionalExecutor{}

	call := models.ToolCall{ID: "tc1", Name: "shell", Arguments: map[string]interface{}{"command": "echo hi"}}
	firstClient := &stubClient{results: []turn.CompletionResult{
		{Items: []models.ConversationItem{{Type: models.ItemTypeToolCall, ToolCalls: []models.ToolCall{call}}}},
	}}
	rt := newTestRuntime(t, "alpha", firstClient, executor)
	w := newTestWorker(t, rt)

	prompt := "run a command"
	item := models.WorkItem{ID: "w1", Type: models.WorkItemChat, Priority: models.PriorityNormal, AgentID: "alpha", Input: models.WorkItemInput{Prompt: &prompt}}
	out, err := w.Handle(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, out.DeferredToolRequestsJSON)

	var req ApprovalRequest
	require.NoError(t, json.Unmarshal([]byte(*out.DeferredToolRequestsJSON), &req))
	require.Len(t, req.ToolCalls, 1)
	assert.Equal(t, "tc1", req.ToolCalls[0].ToolCallID)

	// A checkpoint was saved for this still-deferred work item.
	checkpointed, ok, err := rt.Checkpoints.Load("w1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out.MessageHistoryJSON, checkpointed)

	decisions := []approval.Decision{{ToolCallID: "tc1", Approved: true}}
	require.NoError(t, rt.Approvals.StoreSignedApproval(req.Nonce, decisions, rt.Keys))

	subBytes, err := json.Marshal(struct {
		Nonce     string              `json:"nonce"`
		Decisions []approval.Decision `json:"decisions"`
	}{Nonce: req.Nonce, Decisions: decisions})
	require.NoError(t, err)
	submissionJSON := string(subBytes)

	rt.LLMClient = &stubClient{results: []turn.CompletionResult{
		{Items: []models.ConversationItem{{Type: models.ItemTypeAssistantMessage, Content: "ran it"}}, FinishReason: models.FinishReasonStop},
	}}

	continuation := models.WorkItem{
		ID: "w1", Type: models.WorkItemChat, Priority: models.PriorityNormal, AgentID: "alpha",
		Input: models.WorkItemInput{
			MessageHistoryJSON:      &out.MessageHistoryJSON,
			DeferredToolResultsJSON: &submissionJSON,
			ApprovalContextID:       &req.EnvelopeID,
		},
	}
	out2, err := w.Handle(context.Background(), continuation)
	require.NoError(t, err)
	require.NotNil(t, out2.Text)
	assert.Equal(t, "ran it", *out2.Text)
	assert.True(t, executor.ranApproved)

	_, ok, err = rt.Checkpoints.Load("w1")
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint should be cleared once the resumed work item completes")
}

func TestHandleResumesFromCheckpointOverItemHistory(t *testing.T) {
	client := &stubClient{results: []turn.CompletionResult{
		{Items: []models.ConversationItem{{Type: models.ItemTypeAssistantMessage, Content: "done"}}, FinishReason: models.FinishReasonStop},
	}}
	rt := newTestRuntime(t, "alpha", client, plainExecutor{})
	w := newTestWorker(t, rt)

	checkpointed := []models.ConversationItem{{Type: models.ItemTypeUserMessage, Content: "from checkpoint"}}
	raw, err := json.Marshal(checkpointed)
	require.NoError(t, err)
	require.NoError(t, rt.Checkpoints.Save("w1", string(raw), 1))

	staleHistory := `[{"type":"user_message","content":"stale, should be ignored"}]`
	prompt := "irrelevant — checkpoint wins"
	item := models.WorkItem{
		ID: "w1", Type: models.WorkItemChat, Priority: models.PriorityNormal, AgentID: "alpha",
		Input: models.WorkItemInput{Prompt: &prompt, MessageHistoryJSON: &staleHistory},
	}

	out, err := w.Handle(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, out.Text)

	var finalHistory []models.ConversationItem
	require.NoError(t, json.Unmarshal([]byte(out.MessageHistoryJSON), &finalHistory))
	require.NotEmpty(t, finalHistory)
	assert.Equal(t, "from checkpoint", finalHistory[0].Content)
}

func TestHandleRejectsMalformedWorkItem(t *testing.T) {
	rt := newTestRuntime(t, "alpha", &stubClient{}, plainExecutor{})
	w := newTestWorker(t, rt)

	_, err := w.Handle(context.Background(), models.WorkItem{ID: "w1", AgentID: "alpha"})
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindInvalidSubmission, kind)
}

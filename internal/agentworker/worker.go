// Package agentworker implements the queue.Handler that turns one dequeued
// models.WorkItem into a turn.Execute call: resolve the agent's Runtime
// (C8), check for a checkpoint a crashed prior attempt left behind (C4),
// run the history pipeline (C5), then invoke the turn executor (C7) and
// re-encode its result (or open a fresh approval envelope) as a
// models.WorkItemOutput — the enqueue -> runtime -> checkpoint -> history ->
// turn sequence spec.md §2 lays out end to end.
//
// Grounded on the teacher's activity-level orchestration in
// internal/activities (now deleted, see DESIGN.md) for the shape of
// "decode input, run the core, re-encode output" — reapplied here as a
// plain function satisfying internal/queue.Handler since there is no
// activity runtime to host it.
package agentworker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autopoiesis-dev/agentcore/internal/approval"
	"github.com/autopoiesis-dev/agentcore/internal/checkpoint"
	"github.com/autopoiesis-dev/agentcore/internal/history"
	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/queue"
	"github.com/autopoiesis-dev/agentcore/internal/runtime"
	"github.com/autopoiesis-dev/agentcore/internal/tools"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
)

type hclogLogger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

// Worker runs turns for every agent registered in Runtimes. Per-agent
// stores, LLM clients and tool executors live on each runtime.Runtime;
// Worker itself only holds the history pipeline knobs shared across agents.
type Worker struct {
	Runtimes *runtime.Registry

	MaxToolReturnBytes int
	CompactConfig      history.CompactConfig

	logger hclogLogger
}

// NewWorker wires a Worker against a runtime registry. maxToolReturnBytes
// and compactCfg apply to every agent's history pipeline run.
func NewWorker(runtimes *runtime.Registry, maxToolReturnBytes int, compactCfg history.CompactConfig) *Worker {
	if maxToolReturnBytes <= 0 {
		maxToolReturnBytes = history.DefaultMaxToolReturnBytes
	}
	return &Worker{
		Runtimes:           runtimes,
		MaxToolReturnBytes: maxToolReturnBytes,
		CompactConfig:      compactCfg,
		logger:             log.For("agentworker"),
	}
}

var _ queue.Handler = (*Worker)(nil).Handle

// Handle implements queue.Handler.
func (w *Worker) Handle(ctx context.Context, item models.WorkItem) (models.WorkItemOutput, error) {
	if err := item.Validate(); err != nil {
		return models.WorkItemOutput{}, err
	}

	rt, err := w.Runtimes.Get(item.AgentID)
	if err != nil {
		return models.WorkItemOutput{}, err
	}

	ctx = checkpoint.WithScope(ctx, rt.Checkpoints, item.ID)

	baseHistory, resuming, err := w.loadHistory(rt, item)
	if err != nil {
		return models.WorkItemOutput{}, err
	}
	if resuming {
		w.logger.Info("resuming work item from a checkpoint left by a crashed attempt", "work_item_id", item.ID, "agent_id", item.AgentID)
	}

	processed, _, err := history.Run(ctx, baseHistory, history.Options{
		MaxToolReturnBytes: w.MaxToolReturnBytes,
		TmpDir:             rt.Workspace.Tmp,
		CompactConfig:      w.CompactConfig,
		Workspace:          rt.Workspace,
		RoundCount:         1,
	})
	if err != nil {
		return models.WorkItemOutput{}, err
	}

	params := turn.Params{WorkItemID: item.ID, History: processed, Guards: rt.Guards}

	if item.Input.Prompt != nil {
		params.Prompt = item.Input.Prompt
	} else {
		decisions, err := rt.Approvals.VerifyAndConsume(*item.Input.DeferredToolResultsJSON, w.scopeFor(rt, item), rt.Keys)
		if err != nil {
			return models.WorkItemOutput{}, err
		}
		params.PendingCalls = pendingCallsFromHistory(baseHistory, decisions)
		params.Resolutions = resolutionsFromDecisions(decisions)
		ctx = tools.WithApprovedCalls(ctx, approvedCallIDs(decisions))
	}

	out, err := turn.Execute(ctx, rt.LLMClient, rt.Tools, params)
	if err != nil {
		return models.WorkItemOutput{}, err
	}

	historyJSON, err := json.Marshal(out.History)
	if err != nil {
		return models.WorkItemOutput{}, fmt.Errorf("agentworker: encoding history: %w", err)
	}

	switch out.Kind {
	case turn.OutputDeferred:
		if err := rt.Checkpoints.Save(item.ID, string(historyJSON), 2); err != nil {
			return models.WorkItemOutput{}, err
		}
		deferredJSON, err := w.openApprovalEnvelope(rt, item, out.DeferredRequests)
		if err != nil {
			return models.WorkItemOutput{}, err
		}
		w.logger.Info("work item deferred for approval", "work_item_id", item.ID, "agent_id", item.AgentID, "pending", len(out.DeferredRequests))
		return models.NewDeferredOutput(deferredJSON, string(historyJSON)), nil
	default:
		if err := rt.Checkpoints.Clear(item.ID); err != nil {
			return models.WorkItemOutput{}, err
		}
		w.logger.Info("work item completed", "work_item_id", item.ID, "agent_id", item.AgentID)
		return models.NewTextOutput(out.Text, string(historyJSON)), nil
	}
}

// loadHistory prefers a checkpoint left by a prior, interrupted attempt at
// this work item id over the history carried on the item itself: a crash
// mid-turn must resume from the last saved pipeline state, not from
// scratch. Its return reports whether it resumed from such a checkpoint.
func (w *Worker) loadHistory(rt *runtime.Runtime, item models.WorkItem) ([]models.ConversationItem, bool, error) {
	checkpointedJSON, ok, err := rt.Checkpoints.Load(item.ID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		items, err := decodeHistory(&checkpointedJSON)
		return items, true, err
	}
	items, err := decodeHistory(item.Input.MessageHistoryJSON)
	return items, false, err
}

func (w *Worker) scopeFor(rt *runtime.Runtime, item models.WorkItem) approval.Scope {
	return approval.Scope{WorkspaceRoot: rt.Workspace.WorkspaceRoot(), WorkItemID: item.ID, AgentName: item.AgentID}
}

// ApprovalRequest is the approver-facing payload carried in a deferred
// WorkItemOutput: everything an approval client needs to render the pending
// calls and sign a decision back against the right nonce.
type ApprovalRequest struct {
	EnvelopeID string                  `json:"envelope_id"`
	Nonce      string                  `json:"nonce"`
	ToolCalls  []approval.ToolCallSpec `json:"tool_calls"`
	ExpiresAt  string                  `json:"expires_at"`
}

// openApprovalEnvelope creates a fresh, still unsigned envelope for the tool
// calls a turn just deferred, returning the JSON-encoded ApprovalRequest a
// client signs its decisions against.
func (w *Worker) openApprovalEnvelope(rt *runtime.Runtime, item models.WorkItem, deferred []turn.DeferredRequest) (string, error) {
	specs := make([]approval.ToolCallSpec, len(deferred))
	for i, d := range deferred {
		specs[i] = approval.ToolCallSpec{ToolCallID: d.ToolCallID, ToolName: d.ToolName, Args: d.Args}
	}
	envelope, err := rt.Approvals.CreateEnvelope(w.scopeFor(rt, item), specs, rt.Keys.CurrentKeyID())
	if err != nil {
		return "", err
	}
	req := ApprovalRequest{
		EnvelopeID: envelope.EnvelopeID,
		Nonce:      envelope.Nonce,
		ToolCalls:  specs,
		ExpiresAt:  envelope.ExpiresAt.Format(timeRFC3339),
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("agentworker: encoding approval request: %w", err)
	}
	return string(b), nil
}

const timeRFC3339 = "2006-01-02T15:04:05Z07:00"

func decodeHistory(raw *string) ([]models.ConversationItem, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var items []models.ConversationItem
	if err := json.Unmarshal([]byte(*raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// pendingCallsFromHistory reconstructs the PendingCall list a continuation
// needs from the tool_call history items a prior, now-deferred turn already
// appended — the work item only carries decisions, not the original calls.
func pendingCallsFromHistory(items []models.ConversationItem, decisions []approval.Decision) []turn.PendingCall {
	wanted := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		wanted[d.ToolCallID] = true
	}

	byID := make(map[string]models.ToolCall)
	for _, item := range items {
		if item.Type != models.ItemTypeToolCall {
			continue
		}
		for _, call := range item.ToolCalls {
			if wanted[call.ID] {
				byID[call.ID] = call
			}
		}
	}

	pending := make([]turn.PendingCall, 0, len(decisions))
	for _, d := range decisions {
		call, ok := byID[d.ToolCallID]
		if !ok {
			continue
		}
		pending = append(pending, turn.PendingCall{ToolCallID: call.ID, ToolName: call.Name, Args: call.Arguments})
	}
	return pending
}

func resolutionsFromDecisions(decisions []approval.Decision) []turn.DeferredResolution {
	resolutions := make([]turn.DeferredResolution, len(decisions))
	for i, d := range decisions {
		r := turn.DeferredResolution{ToolCallID: d.ToolCallID, Approved: d.Approved}
		if d.DenialMessage != nil {
			r.DenialMessage = *d.DenialMessage
		}
		resolutions[i] = r
	}
	return resolutions
}

func approvedCallIDs(decisions []approval.Decision) []string {
	var ids []string
	for _, d := range decisions {
		if d.Approved {
			ids = append(ids, d.ToolCallID)
		}
	}
	return ids
}

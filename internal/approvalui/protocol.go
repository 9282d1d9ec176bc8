// Package approvalui implements the approval interaction protocol (C11):
// rendering a deferred-tool-request set for a human approver, collecting
// per-call decisions, and submitting the signed result back through C1/C2.
//
// Grounded on the teacher's internal/cli/approval.go (HandleApprovalInput /
// ApprovalSelectionToResponse — y/n/a and index-based selection over a
// PendingApproval list) for the decision-collection shape, and on
// spec.md §4.10's exact wire payloads for the producer/approver/worker
// round trip.
package approvalui

import (
	"encoding/json"
	"fmt"

	"github.com/autopoiesis-dev/agentcore/internal/approval"
	"github.com/autopoiesis-dev/agentcore/internal/models"
)

// DeferredRequestView is one pending tool call as rendered to the approver.
type DeferredRequestView struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Args       any    `json:"args"`
}

// DeferredRequestsPayload is the producer -> approver JSON, spec.md §6.
type DeferredRequestsPayload struct {
	Nonce          string                 `json:"nonce"`
	PlanHashPrefix string                 `json:"plan_hash_prefix"`
	Requests       []DeferredRequestView  `json:"requests"`
}

// BuildDeferredRequestsPayload serialises an envelope into the wire shape an
// approver renders and decides over.
func BuildDeferredRequestsPayload(env *approval.Envelope) DeferredRequestsPayload {
	prefix := env.PlanHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	reqs := make([]DeferredRequestView, len(env.ToolCalls))
	for i, tc := range env.ToolCalls {
		reqs[i] = DeferredRequestView{ToolCallID: tc.ToolCallID, ToolName: tc.ToolName, Args: tc.Args}
	}
	return DeferredRequestsPayload{Nonce: env.Nonce, PlanHashPrefix: prefix, Requests: reqs}
}

// DecisionsSubmissionPayload is the approver -> worker JSON, spec.md §6.
type DecisionsSubmissionPayload struct {
	Nonce     string              `json:"nonce"`
	Decisions []approval.Decision `json:"decisions"`
}

// MarshalSubmission renders the decisions submission as the JSON string
// carried in a continuation WorkItem's deferred_tool_results_json field.
func MarshalSubmission(nonce string, decisions []approval.Decision) (string, error) {
	raw, err := json.Marshal(DecisionsSubmissionPayload{Nonce: nonce, Decisions: decisions})
	if err != nil {
		return "", fmt.Errorf("approvalui: marshal submission: %w", err)
	}
	return string(raw), nil
}

// ParseDeferredRequestsPayload decodes the producer -> approver JSON an
// approver client receives over the queue boundary.
func ParseDeferredRequestsPayload(raw string) (DeferredRequestsPayload, error) {
	var p DeferredRequestsPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return DeferredRequestsPayload{}, models.NewAgentError(models.ErrorKindInvalidSubmission, "malformed deferred-requests payload: %v", err)
	}
	return p, nil
}

package approvalui

import (
	"github.com/autopoiesis-dev/agentcore/internal/approval"
)

// ToDecisions converts the internal collection result into the []approval.Decision
// shape C1 persists and signs.
func ToDecisions(collected []decisionWithMessage) []approval.Decision {
	out := make([]approval.Decision, len(collected))
	for i, d := range collected {
		dec := approval.Decision{ToolCallID: d.toolCallID, Approved: d.approved}
		if !d.approved && d.denialMessage != "" {
			msg := d.denialMessage
			dec.DenialMessage = &msg
		}
		out[i] = dec
	}
	return out
}

// Submit runs steps 4-5 of spec.md §4.10: sign and persist the decisions
// against the envelope identified by nonce, then return the JSON string a
// continuation WorkItem carries as deferred_tool_results_json.
func Submit(store *approval.Store, km *approval.KeyManager, nonce string, decisions []approval.Decision) (string, error) {
	if err := store.StoreSignedApproval(nonce, decisions, km); err != nil {
		return "", err
	}
	return MarshalSubmission(nonce, decisions)
}

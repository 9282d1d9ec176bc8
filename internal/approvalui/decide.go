package approvalui

import "strings"

// BatchChoice is the approver's top-level decision over an entire batch of
// pending requests, mirroring the teacher's y/n/a prompt plus an explicit
// pick-one-by-one escape hatch for multi-tool batches.
type BatchChoice int

const (
	ApproveAll BatchChoice = iota
	DenyAll
	PickOneByOne
)

// ParseBatchChoice accepts the same shorthand as the teacher's
// HandleApprovalInput ("y"/"yes", "n"/"no") plus an explicit "p"/"pick" for
// one-by-one selection.
func ParseBatchChoice(input string) (BatchChoice, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return ApproveAll, true
	case "n", "no":
		return DenyAll, true
	case "p", "pick":
		return PickOneByOne, true
	default:
		return 0, false
	}
}

// IndividualDecider returns one approved/denied verdict for a single
// request during PickOneByOne collection.
type IndividualDecider func(req DeferredRequestView) (approved bool, denialMessage string)

// CollectDecisions applies choice to every request in payload.Requests, in
// order, producing the Decision slice C1 expects (ordered to match the
// envelope's tool_call_id sequence for the bijection check).
func CollectDecisions(payload DeferredRequestsPayload, choice BatchChoice, pick IndividualDecider) []decisionWithMessage {
	out := make([]decisionWithMessage, len(payload.Requests))
	for i, req := range payload.Requests {
		switch choice {
		case ApproveAll:
			out[i] = decisionWithMessage{toolCallID: req.ToolCallID, approved: true}
		case DenyAll:
			out[i] = decisionWithMessage{toolCallID: req.ToolCallID, approved: false, denialMessage: "denied by approver"}
		case PickOneByOne:
			approved, msg := pick(req)
			out[i] = decisionWithMessage{toolCallID: req.ToolCallID, approved: approved, denialMessage: msg}
		}
	}
	return out
}

type decisionWithMessage struct {
	toolCallID    string
	approved      bool
	denialMessage string
}

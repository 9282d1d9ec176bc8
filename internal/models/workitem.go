// Package models contains the wire types shared across the execution core:
// work items, turn outputs, conversation history and the error taxonomy.
package models

// WorkItemType is the kind of job a WorkItem describes.
type WorkItemType string

const (
	WorkItemChat     WorkItemType = "chat"
	WorkItemCode     WorkItemType = "code"
	WorkItemReview   WorkItemType = "review"
	WorkItemPlanning WorkItemType = "planning"
)

// WorkItemPriority orders dispatch within an agent's queue.
type WorkItemPriority string

const (
	PriorityCritical WorkItemPriority = "critical"
	PriorityNormal   WorkItemPriority = "normal"
	PriorityLow      WorkItemPriority = "low"
)

// rank returns the dispatch rank of a priority, higher runs first.
func (p WorkItemPriority) rank() int {
	switch p {
	case PriorityCritical:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Rank exposes the dispatch rank so internal/queue does not need to know
// the priority encoding.
func (p WorkItemPriority) Rank() int { return p.rank() }

// WorkItemInput carries exactly one of Prompt or DeferredToolResultsJSON.
type WorkItemInput struct {
	Prompt                   *string `json:"prompt,omitempty"`
	MessageHistoryJSON       *string `json:"message_history_json,omitempty"`
	DeferredToolResultsJSON  *string `json:"deferred_tool_results_json,omitempty"`
	ApprovalContextID        *string `json:"approval_context_id,omitempty"`
}

// WorkItem is an immutable job descriptor routed to a per-agent queue.
type WorkItem struct {
	ID       string           `json:"id"`
	Type     WorkItemType     `json:"type"`
	Priority WorkItemPriority `json:"priority"`
	AgentID  string           `json:"agent_id"`
	TopicRef *string          `json:"topic_ref,omitempty"`
	Input    WorkItemInput    `json:"input"`
}

// Validate enforces the "exactly one of prompt or deferred results" invariant.
func (w WorkItem) Validate() error {
	hasPrompt := w.Input.Prompt != nil && *w.Input.Prompt != ""
	hasDeferred := w.Input.DeferredToolResultsJSON != nil && *w.Input.DeferredToolResultsJSON != ""
	if hasPrompt == hasDeferred {
		return NewAgentError(ErrorKindInvalidSubmission, "work item must set exactly one of prompt or deferred_tool_results_json")
	}
	if hasDeferred && (w.Input.ApprovalContextID == nil || *w.Input.ApprovalContextID == "") {
		return NewAgentError(ErrorKindInvalidSubmission, "continuation work item missing approval_context_id")
	}
	return nil
}

// WorkItemOutput is the result of one turn. Exactly one of Text or
// DeferredToolRequestsJSON is set.
type WorkItemOutput struct {
	Text                     *string `json:"text,omitempty"`
	DeferredToolRequestsJSON *string `json:"deferred_tool_requests_json,omitempty"`
	MessageHistoryJSON       string  `json:"message_history_json"`
}

// IsDeferred reports whether this output represents a pending approval.
func (o WorkItemOutput) IsDeferred() bool {
	return o.DeferredToolRequestsJSON != nil && *o.DeferredToolRequestsJSON != ""
}

func strPtr(s string) *string { return &s }

// NewTextOutput builds a terminal WorkItemOutput.
func NewTextOutput(text, historyJSON string) WorkItemOutput {
	return WorkItemOutput{Text: strPtr(text), MessageHistoryJSON: historyJSON}
}

// NewDeferredOutput builds a pending-approval WorkItemOutput.
func NewDeferredOutput(deferredJSON, historyJSON string) WorkItemOutput {
	return WorkItemOutput{DeferredToolRequestsJSON: strPtr(deferredJSON), MessageHistoryJSON: historyJSON}
}

package models

import "fmt"

// ErrorKind is the stable error taxonomy surfaced across the approval,
// policy, guard and infrastructure boundaries.
type ErrorKind string

const (
	// Approval verification (C1).
	ErrorKindInvalidSubmission ErrorKind = "invalid_submission"
	ErrorKindExpiredOrUnknown  ErrorKind = "expired_or_unknown"
	ErrorKindScopeMismatch     ErrorKind = "scope_mismatch"
	ErrorKindInvalidSignature  ErrorKind = "invalid_signature"
	ErrorKindUnknownKeyID      ErrorKind = "unknown_key_id"
	ErrorKindBijectionMismatch ErrorKind = "bijection_mismatch"

	// Policy (C3).
	ErrorKindCommandBlocked   ErrorKind = "command_blocked"
	ErrorKindApprovalRequired ErrorKind = "approval_required"

	// Guard breach (C7).
	ErrorKindToolLoopExceeded    ErrorKind = "tool_loop_exceeded"
	ErrorKindTokenBudgetExceeded ErrorKind = "token_budget_exceeded"
	ErrorKindTimeoutExceeded     ErrorKind = "timeout_exceeded"

	// Infrastructure.
	ErrorKindLockedKey     ErrorKind = "locked_key"
	ErrorKindMissingEnv    ErrorKind = "missing_env"
	ErrorKindUnknownAgent  ErrorKind = "unknown_agent"
	ErrorKindBadPassphrase ErrorKind = "bad_passphrase"
)

// AgentError is a structured, non-leaky error carrying one of the stable
// ErrorKind codes plus a human-readable message.
type AgentError struct {
	Kind    ErrorKind
	Message string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// NewAgentError builds an AgentError of the given kind.
func NewAgentError(kind ErrorKind, format string, args ...any) *AgentError {
	return &AgentError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, if it is (or wraps) an *AgentError.
func KindOf(err error) (ErrorKind, bool) {
	var ae *AgentError
	if errorsAs(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// errorsAs is a tiny local indirection so this file only needs "errors" when
// actually asserting, keeping the import list minimal and explicit.
func errorsAs(err error, target **AgentError) bool {
	for err != nil {
		if ae, ok := err.(*AgentError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ProviderError wraps an LLM transport/schema error so it survives the
// queue's cross-process boundary intact, matching the taxonomy's "Provider"
// category: wrap as RuntimeError("<ClassName>: <message>").
type ProviderError struct {
	ClassName string
	Message   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.ClassName, e.Message)
}

// NewProviderError builds a ProviderError from an underlying error, naming
// the Go type of the cause as the "class name".
func NewProviderError(className string, cause error) *ProviderError {
	return &ProviderError{ClassName: className, Message: cause.Error()}
}

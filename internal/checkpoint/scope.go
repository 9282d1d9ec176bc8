package checkpoint

import "context"

// scopeKey is the context.Context value key binding a checkpoint Store and
// work item id to the currently executing turn. This is the idiomatic Go
// substitute for the original Python runtime's contextvars.ContextVar-based
// checkpoint_scope contextmanager (agent/worker_checkpoint.py): a Go
// goroutine has no implicit per-task-local storage, so the binding is
// carried explicitly on the context passed down the call stack instead.
type scopeKey struct{}

// Scope binds one work item's checkpoint writes to a Store.
type Scope struct {
	Store      *Store
	WorkItemID string
}

// WithScope returns a derived context carrying the checkpoint scope.
// Release it by letting the context fall out of use at the end of the turn;
// there is nothing to explicitly close, matching the read-only nature of
// context.Context values, but callers that used the Python contextmanager
// idiom for explicit release should call this once per turn, immediately
// before invoking the history pipeline, and simply drop the context after.
func WithScope(ctx context.Context, store *Store, workItemID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{Store: store, WorkItemID: workItemID})
}

// ScopeFromContext returns the bound Scope, if any. Its absence means
// "no-op pass-through": the history pipeline's checkpoint stage becomes a
// no-op, which is what makes the pipeline safe to run offline for
// non-live history reshaping (e.g. tests, migrations).
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

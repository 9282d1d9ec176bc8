package approval

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/models"
)

func newTestStore(t *testing.T) (*Store, *KeyManager) {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	km := NewKeyManager()
	_, err = km.CreateInitialKey("passphrase")
	require.NoError(t, err)
	require.NoError(t, km.Unlock("passphrase"))
	return NewStore(db), km
}

func approveAllSubmission(nonce string, calls []ToolCallSpec) string {
	decisions := make([]Decision, len(calls))
	for i, c := range calls {
		decisions[i] = Decision{ToolCallID: c.ToolCallID, Approved: true}
	}
	b, _ := json.Marshal(submission{Nonce: nonce, Decisions: decisions})
	return string(b)
}

func TestFullApprovalRoundTrip(t *testing.T) {
	store, km := newTestStore(t)
	scope := Scope{WorkspaceRoot: "/ws/alpha", WorkItemID: "w1", AgentName: "alpha"}
	calls := []ToolCallSpec{{ToolCallID: "tc1", ToolName: "exec", Args: map[string]any{"command": "rm /tmp/foo"}}}

	env, err := store.CreateEnvelope(scope, calls, km.CurrentKeyID())
	require.NoError(t, err)
	assert.Equal(t, StatePending, env.State)

	decisions := []Decision{{ToolCallID: "tc1", Approved: true}}
	require.NoError(t, store.StoreSignedApproval(env.Nonce, decisions, km))

	sub := approveAllSubmission(env.Nonce, calls)
	out, err := store.VerifyAndConsume(sub, scope, km)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Approved)
}

func TestReplayAttackFailsAfterConsume(t *testing.T) {
	store, km := newTestStore(t)
	scope := Scope{WorkspaceRoot: "/ws/alpha", WorkItemID: "w1", AgentName: "alpha"}
	calls := []ToolCallSpec{{ToolCallID: "tc1", ToolName: "exec", Args: "rm /tmp/foo"}}

	env, err := store.CreateEnvelope(scope, calls, km.CurrentKeyID())
	require.NoError(t, err)
	decisions := []Decision{{ToolCallID: "tc1", Approved: true}}
	require.NoError(t, store.StoreSignedApproval(env.Nonce, decisions, km))
	sub := approveAllSubmission(env.Nonce, calls)

	_, err = store.VerifyAndConsume(sub, scope, km)
	require.NoError(t, err)

	_, err = store.VerifyAndConsume(sub, scope, km)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindExpiredOrUnknown, kind)
}

func TestCrossWorkspaceReplayFailsScopeMismatch(t *testing.T) {
	store, km := newTestStore(t)
	scope := Scope{WorkspaceRoot: "/ws/alpha", WorkItemID: "w1", AgentName: "alpha"}
	otherScope := Scope{WorkspaceRoot: "/ws/beta", WorkItemID: "w1", AgentName: "beta"}
	calls := []ToolCallSpec{{ToolCallID: "tc1", ToolName: "exec", Args: "rm /tmp/foo"}}

	env, err := store.CreateEnvelope(scope, calls, km.CurrentKeyID())
	require.NoError(t, err)
	decisions := []Decision{{ToolCallID: "tc1", Approved: true}}
	require.NoError(t, store.StoreSignedApproval(env.Nonce, decisions, km))
	sub := approveAllSubmission(env.Nonce, calls)

	_, err = store.VerifyAndConsume(sub, otherScope, km)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindScopeMismatch, kind)
}

func TestBijectionMismatchOnReorderedDecisions(t *testing.T) {
	store, km := newTestStore(t)
	scope := Scope{WorkspaceRoot: "/ws/alpha", WorkItemID: "w1", AgentName: "alpha"}
	calls := []ToolCallSpec{
		{ToolCallID: "tc1", ToolName: "exec", Args: "a"},
		{ToolCallID: "tc2", ToolName: "exec", Args: "b"},
	}
	env, err := store.CreateEnvelope(scope, calls, km.CurrentKeyID())
	require.NoError(t, err)

	// Sign decisions in the correct order...
	signed := []Decision{{ToolCallID: "tc1", Approved: true}, {ToolCallID: "tc2", Approved: false, DenialMessage: strp("no")}}
	require.NoError(t, store.StoreSignedApproval(env.Nonce, signed, km))

	// ...but submit them reordered.
	reordered := []Decision{{ToolCallID: "tc2", Approved: false, DenialMessage: strp("no")}, {ToolCallID: "tc1", Approved: true}}
	b, _ := json.Marshal(submission{Nonce: env.Nonce, Decisions: reordered})

	_, err = store.VerifyAndConsume(string(b), scope, km)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindBijectionMismatch, kind)
}

func TestExpiredEnvelopeFailsVerification(t *testing.T) {
	store, km := newTestStore(t)
	store.now = func() time.Time { return time.Unix(1000, 0) }
	scope := Scope{WorkspaceRoot: "/ws/alpha", WorkItemID: "w1", AgentName: "alpha"}
	calls := []ToolCallSpec{{ToolCallID: "tc1", ToolName: "exec", Args: "a"}}
	env, err := store.CreateEnvelope(scope, calls, km.CurrentKeyID())
	require.NoError(t, err)
	require.NoError(t, store.StoreSignedApproval(env.Nonce, []Decision{{ToolCallID: "tc1", Approved: true}}, km))

	store.now = func() time.Time { return time.Unix(1000, 0).Add(DefaultTTL + DefaultClockSkew + time.Second) }
	sub := approveAllSubmission(env.Nonce, calls)
	_, err = store.VerifyAndConsume(sub, scope, km)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindExpiredOrUnknown, kind)
}

func TestSweepExpiredTransitionsPendingPastTTL(t *testing.T) {
	store, km := newTestStore(t)
	store.now = func() time.Time { return time.Unix(1000, 0) }
	scope := Scope{WorkspaceRoot: "/ws/alpha", WorkItemID: "w1", AgentName: "alpha"}
	_, err := store.CreateEnvelope(scope, []ToolCallSpec{{ToolCallID: "tc1", ToolName: "exec", Args: "a"}}, km.CurrentKeyID())
	require.NoError(t, err)

	store.now = func() time.Time { return time.Unix(1000, 0).Add(DefaultTTL + DefaultClockSkew + time.Second) }
	expired, _, err := store.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
}

func TestEmptyDecisionsIsInvalidSubmission(t *testing.T) {
	store, km := newTestStore(t)
	_, err := store.VerifyAndConsume("", Scope{}, km)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindInvalidSubmission, kind)

	_, err = store.VerifyAndConsume(`{"nonce":"abc123","decisions":[]}`, Scope{}, km)
	require.Error(t, err)
	kind, ok = models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindInvalidSubmission, kind)
}

func strp(s string) *string { return &s }

package approval

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autopoiesis-dev/agentcore/internal/canonjson"
	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/models"
)

// Scope binds an envelope to one (workspace_root, work_item_id, agent_name)
// context, per the GLOSSARY.
type Scope struct {
	WorkspaceRoot string `json:"workspace_root"`
	WorkItemID    string `json:"work_item_id"`
	AgentName     string `json:"agent_name"`
}

// ToolCallSpec is one ordered pending tool call inside an envelope.
type ToolCallSpec struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Args       any    `json:"args"`
}

// Decision is one approver verdict on a ToolCallSpec.
type Decision struct {
	ToolCallID     string  `json:"tool_call_id"`
	Approved       bool    `json:"approved"`
	DenialMessage  *string `json:"denial_message,omitempty"`
}

// State is an envelope's lifecycle state.
type State string

const (
	StatePending  State = "pending"
	StateConsumed State = "consumed"
	StateExpired  State = "expired"
)

// Envelope is the durable record of a pending tool-approval set.
type Envelope struct {
	EnvelopeID       string
	Nonce            string
	Scope            Scope
	ToolCalls        []ToolCallSpec
	PlanHash         string
	KeyID            string
	SignedObjectJSON string
	SignatureHex     string
	State            State
	IssuedAt         time.Time
	ExpiresAt        time.Time
	ConsumedAt       *time.Time
}

// signedObject is the verbatim-bytes-signed payload, matching spec.md §6.
type signedObject struct {
	Ctx       string     `json:"ctx"`
	Nonce     string     `json:"nonce"`
	PlanHash  string     `json:"plan_hash"`
	KeyID     string     `json:"key_id"`
	Decisions []Decision `json:"decisions"`
}

const signedObjectCtx = "approval.v1"

// DefaultTTL and DefaultClockSkew match spec.md §4.3's defaults.
const (
	DefaultTTL       = 15 * time.Minute
	DefaultClockSkew = 30 * time.Second
	NonceRetention   = 7 * 24 * time.Hour
)

// Store is the sqlite-backed approval envelope store for one agent.
type Store struct {
	db          *sql.DB
	ttl         time.Duration
	clockSkew   time.Duration
	logger      hclogLogger
	now         func() time.Time
}

// NewStore wraps an already-open, already-migrated *sql.DB (see Open).
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		ttl:       DefaultTTL,
		clockSkew: DefaultClockSkew,
		logger:    log.For("approval.store"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateEnvelope canonicalises scope+tool_calls, computes the plan hash,
// draws a unique random nonce and inserts a pending row.
func (s *Store) CreateEnvelope(scope Scope, toolCalls []ToolCallSpec, keyID string) (*Envelope, error) {
	if len(toolCalls) == 0 {
		return nil, models.NewAgentError(models.ErrorKindInvalidSubmission, "cannot create an envelope with zero tool calls")
	}
	scopeCanon, err := canonjson.Canonicalize(scope)
	if err != nil {
		return nil, err
	}
	callsCanon, err := canonjson.Canonicalize(toolCalls)
	if err != nil {
		return nil, err
	}
	planHash := sha256.Sum256(append(append([]byte{}, scopeCanon...), callsCanon...))

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	now := s.now()
	env := &Envelope{
		EnvelopeID: nonce, // envelope_id and nonce are both unique keys; nonce doubles as id
		Nonce:      nonce,
		Scope:      scope,
		ToolCalls:  toolCalls,
		PlanHash:   hex.EncodeToString(planHash[:]),
		KeyID:      keyID,
		State:      StatePending,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}

	_, err = s.db.Exec(
		`INSERT INTO approval_envelopes
			(envelope_id, nonce, scope_json, tool_calls_json, plan_hash, key_id, state, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env.EnvelopeID, env.Nonce, string(scopeCanon), string(callsCanon), env.PlanHash, env.KeyID,
		string(env.State), env.IssuedAt.Unix(), env.ExpiresAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("approval: insert envelope: %w", err)
	}
	s.logger.Info("envelope created", "nonce", env.Nonce, "plan_hash", env.PlanHash)
	return env, nil
}

// StoreSignedApproval builds {ctx, nonce, plan_hash, key_id, decisions},
// canonicalises it, signs with the current key and persists the signature.
// Does not change state.
func (s *Store) StoreSignedApproval(nonce string, decisions []Decision, km *KeyManager) error {
	row, err := s.loadByNonce(nonce)
	if err != nil {
		return err
	}
	obj := signedObject{
		Ctx:       signedObjectCtx,
		Nonce:     nonce,
		PlanHash:  row.PlanHash,
		KeyID:     km.CurrentKeyID(),
		Decisions: decisions,
	}
	canon, err := canonjson.Canonicalize(obj)
	if err != nil {
		return err
	}
	keyID, sigHex, err := km.Sign(canon)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE approval_envelopes SET key_id=?, signed_object_json=?, signature_hex=? WHERE nonce=?`,
		keyID, string(canon), sigHex, nonce,
	)
	if err != nil {
		return fmt.Errorf("approval: store signature: %w", err)
	}
	return nil
}

type envelopeRow struct {
	EnvelopeID       string
	Nonce            string
	ScopeJSON        string
	ToolCallsJSON    string
	PlanHash         string
	KeyID            sql.NullString
	SignedObjectJSON sql.NullString
	SignatureHex     sql.NullString
	State            string
	IssuedAt         int64
	ExpiresAt        int64
	ConsumedAt       sql.NullInt64
}

func (s *Store) loadByNonce(nonce string) (*envelopeRow, error) {
	row := s.db.QueryRow(
		`SELECT envelope_id, nonce, scope_json, tool_calls_json, plan_hash, key_id,
		        signed_object_json, signature_hex, state, issued_at, expires_at, consumed_at
		 FROM approval_envelopes WHERE nonce = ?`, nonce)
	var r envelopeRow
	err := row.Scan(&r.EnvelopeID, &r.Nonce, &r.ScopeJSON, &r.ToolCallsJSON, &r.PlanHash, &r.KeyID,
		&r.SignedObjectJSON, &r.SignatureHex, &r.State, &r.IssuedAt, &r.ExpiresAt, &r.ConsumedAt)
	if err == sql.ErrNoRows {
		return nil, models.NewAgentError(models.ErrorKindExpiredOrUnknown, "no envelope for nonce")
	}
	if err != nil {
		return nil, fmt.Errorf("approval: load envelope: %w", err)
	}
	return &r, nil
}

// submission is the approver-to-worker decisions payload, spec.md §6.
type submission struct {
	Nonce     string     `json:"nonce"`
	Decisions []Decision `json:"decisions"`
}

// VerifyAndConsume runs the seven verification stages in increasing cost
// order (schema/nonce/TTL, scope, crypto, bijection) and, on success,
// atomically transitions the row pending -> consumed.
func (s *Store) VerifyAndConsume(submissionJSON string, liveScope Scope, km *KeyManager) ([]Decision, error) {
	// Stage 1: parse.
	var sub submission
	if submissionJSON == "" {
		return nil, models.NewAgentError(models.ErrorKindInvalidSubmission, "empty submission")
	}
	if err := json.Unmarshal([]byte(submissionJSON), &sub); err != nil {
		return nil, models.NewAgentError(models.ErrorKindInvalidSubmission, "malformed submission json: %v", err)
	}
	if sub.Nonce == "" {
		return nil, models.NewAgentError(models.ErrorKindInvalidSubmission, "submission missing nonce")
	}
	if len(sub.Decisions) == 0 {
		return nil, models.NewAgentError(models.ErrorKindInvalidSubmission, "submission has no decisions")
	}
	for _, d := range sub.Decisions {
		if d.ToolCallID == "" {
			return nil, models.NewAgentError(models.ErrorKindInvalidSubmission, "decision missing tool_call_id")
		}
	}

	// Stage 2: lookup, pending, not expired (with clock-skew tolerance).
	row, err := s.loadByNonce(sub.Nonce)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if State(row.State) != StatePending {
		return nil, models.NewAgentError(models.ErrorKindExpiredOrUnknown, "envelope is not pending")
	}
	if now.After(time.Unix(row.ExpiresAt, 0).Add(s.clockSkew)) {
		return nil, models.NewAgentError(models.ErrorKindExpiredOrUnknown, "envelope expired")
	}

	// Stage 3: scope binding.
	liveScopeCanon, err := canonjson.Canonicalize(liveScope)
	if err != nil {
		return nil, err
	}
	rowScopeCanon, err := canonjson.CanonicalizeBytes([]byte(row.ScopeJSON))
	if err != nil {
		return nil, err
	}
	if string(liveScopeCanon) != string(rowScopeCanon) {
		return nil, models.NewAgentError(models.ErrorKindScopeMismatch, "submission scope does not match envelope scope")
	}

	// Stage 4: signature present and verifies.
	if !row.KeyID.Valid || row.KeyID.String == "" ||
		!row.SignedObjectJSON.Valid || row.SignedObjectJSON.String == "" ||
		!row.SignatureHex.Valid || row.SignatureHex.String == "" {
		return nil, models.NewAgentError(models.ErrorKindInvalidSignature, "envelope has not been signed")
	}
	if _, err := km.ResolvePublicKey(row.KeyID.String); err != nil {
		return nil, models.NewAgentError(models.ErrorKindUnknownKeyID, "%v", err)
	}
	ok, err := km.VerifySignature(row.KeyID.String, []byte(row.SignedObjectJSON.String), row.SignatureHex.String)
	if err != nil {
		return nil, models.NewAgentError(models.ErrorKindInvalidSignature, "%v", err)
	}
	if !ok {
		return nil, models.NewAgentError(models.ErrorKindInvalidSignature, "signature does not verify")
	}

	// Stage 5: signed-object binding.
	var obj signedObject
	if err := json.Unmarshal([]byte(row.SignedObjectJSON.String), &obj); err != nil {
		return nil, models.NewAgentError(models.ErrorKindInvalidSignature, "stored signed object is malformed")
	}
	if obj.Ctx != signedObjectCtx || obj.Nonce != sub.Nonce || obj.PlanHash != row.PlanHash || obj.KeyID != row.KeyID.String {
		return nil, models.NewAgentError(models.ErrorKindInvalidSignature, "signed object does not bind to this envelope")
	}

	// Stage 6: bijection — tool_call_id sequence matches exactly, in order.
	var rowCalls []ToolCallSpec
	if err := json.Unmarshal([]byte(row.ToolCallsJSON), &rowCalls); err != nil {
		return nil, fmt.Errorf("approval: corrupt tool_calls_json: %w", err)
	}
	if len(rowCalls) != len(sub.Decisions) {
		return nil, models.NewAgentError(models.ErrorKindBijectionMismatch, "decision count does not match tool call count")
	}
	for i := range rowCalls {
		if rowCalls[i].ToolCallID != sub.Decisions[i].ToolCallID {
			return nil, models.NewAgentError(models.ErrorKindBijectionMismatch, "decision order/identity does not match tool calls")
		}
	}

	// Stage 7: signed-payload consistency — obj.Decisions canonically equals
	// sub.Decisions byte-for-byte.
	objDecisionsCanon, err := canonjson.Canonicalize(obj.Decisions)
	if err != nil {
		return nil, err
	}
	subDecisionsCanon, err := canonjson.Canonicalize(sub.Decisions)
	if err != nil {
		return nil, err
	}
	if string(objDecisionsCanon) != string(subDecisionsCanon) {
		return nil, models.NewAgentError(models.ErrorKindBijectionMismatch, "signed decisions diverge from submitted decisions")
	}

	res, err := s.db.Exec(
		`UPDATE approval_envelopes SET state=?, consumed_at=? WHERE nonce=? AND state=?`,
		string(StateConsumed), now.Unix(), sub.Nonce, string(StatePending),
	)
	if err != nil {
		return nil, fmt.Errorf("approval: consume envelope: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Raced with a concurrent consumer or sweep between lookup and update.
		return nil, models.NewAgentError(models.ErrorKindExpiredOrUnknown, "envelope was consumed or expired concurrently")
	}

	s.logger.Info("envelope consumed", "nonce", sub.Nonce)
	return sub.Decisions, nil
}

// SweepExpired transitions pending rows past expires_at (+ clock skew) to
// expired, and deletes consumed/expired rows whose retention window has
// elapsed.
func (s *Store) SweepExpired() (expired int64, deleted int64, err error) {
	now := s.now()
	res, err := s.db.Exec(
		`UPDATE approval_envelopes SET state=? WHERE state=? AND expires_at < ?`,
		string(StateExpired), string(StatePending), now.Add(-s.clockSkew).Unix(),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("approval: sweep expire: %w", err)
	}
	expired, _ = res.RowsAffected()

	retentionCutoff := now.Add(-NonceRetention).Unix()
	res, err = s.db.Exec(
		`DELETE FROM approval_envelopes WHERE state IN (?, ?) AND
			COALESCE(consumed_at, expires_at) < ?`,
		string(StateConsumed), string(StateExpired), retentionCutoff,
	)
	if err != nil {
		return expired, 0, fmt.Errorf("approval: sweep delete: %w", err)
	}
	deleted, _ = res.RowsAffected()
	return expired, deleted, nil
}

func randomNonce() (string, error) {
	buf := make([]byte, 16) // >= 128 bits
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("approval: nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Package approval implements the approval envelope store (C1) and the
// Ed25519 approval key manager (C2): a signed, nonce-bound, TTL-bounded
// ticket system gating privileged tool calls.
//
// The key manager is one of the few pieces built directly on the standard
// library (crypto/ed25519, crypto/aes, crypto/cipher, golang.org/x/crypto/
// scrypt) rather than a pack dependency — see SPEC_FULL.md §5 for why no
// pack repo's crypto dependency (hdevalence/ed25519consensus is a batch
// consensus-verification library, not a signing API) fits this job.
package approval

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"

	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/models"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
	nonceLen     = 12
)

// KeyRecord is one keyring entry: a public key plus its ciphertext-wrapped
// private key. Matches spec.md §3's Signing Key fields.
type KeyRecord struct {
	KeyID                string
	PublicKey            ed25519.PublicKey
	PrivateKeyCiphertext []byte // salt || nonce || aes-gcm ciphertext
	CreatedAt            time.Time
	RevokedAt            *time.Time
}

// KeyManager manages Ed25519 keypairs: creation, passphrase-gated unlock,
// rotation, signing and public verification. Verification and public-key
// resolution never require unlock.
type KeyManager struct {
	mu            sync.Mutex
	keyring       map[string]*KeyRecord
	currentKeyID  string
	unlockedPriv  map[string]ed25519.PrivateKey // cached plaintext scalars, only while unlocked
	logger        hclogLogger
}

type hclogLogger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

// NewKeyManager builds an empty manager; load an existing keyring via
// LoadKeyring before use, or call CreateInitialKey for a fresh install.
func NewKeyManager() *KeyManager {
	return &KeyManager{
		keyring:      map[string]*KeyRecord{},
		unlockedPriv: map[string]ed25519.PrivateKey{},
		logger:       log.For("approval.keys"),
	}
}

// CreateInitialKey generates the first Ed25519 keypair, wraps the private
// key under a passphrase-derived key and makes it current.
func (m *KeyManager) CreateInitialKey(passphrase string) (*KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateAndStoreLocked(passphrase)
}

// Rotate generates a new key and makes it current; prior public keys remain
// in the keyring for verification.
func (m *KeyManager) Rotate(passphrase string) (*KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateAndStoreLocked(passphrase)
}

func (m *KeyManager) generateAndStoreLocked(passphrase string) (*KeyRecord, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("approval: generate key: %w", err)
	}
	ciphertext, err := wrapPrivateKey(priv, passphrase)
	if err != nil {
		return nil, err
	}
	rec := &KeyRecord{
		KeyID:                uuid.NewString(),
		PublicKey:            pub,
		PrivateKeyCiphertext: ciphertext,
		CreatedAt:            time.Now().UTC(),
	}
	m.keyring[rec.KeyID] = rec
	m.currentKeyID = rec.KeyID
	m.logger.Info("key created", "key_id", rec.KeyID)
	return rec, nil
}

// Unlock decrypts the current key's private scalar and caches it in process
// memory until the process exits or the key is rotated away.
func (m *KeyManager) Unlock(passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentKeyID == "" {
		return models.NewAgentError(models.ErrorKindUnknownKeyID, "no current key registered")
	}
	rec, ok := m.keyring[m.currentKeyID]
	if !ok {
		return models.NewAgentError(models.ErrorKindUnknownKeyID, "current key %q missing from keyring", m.currentKeyID)
	}
	priv, err := unwrapPrivateKey(rec.PrivateKeyCiphertext, passphrase)
	if err != nil {
		return models.NewAgentError(models.ErrorKindBadPassphrase, "incorrect passphrase")
	}
	m.unlockedPriv[rec.KeyID] = priv
	m.logger.Info("key unlocked", "key_id", rec.KeyID)
	return nil
}

// Locked reports whether the current key has no cached private scalar.
func (m *KeyManager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentKeyID == "" {
		return true
	}
	_, ok := m.unlockedPriv[m.currentKeyID]
	return !ok
}

// CurrentKeyID returns the active signing key's id.
func (m *KeyManager) CurrentKeyID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentKeyID
}

// Sign signs payload with the current key. Fails if locked.
func (m *KeyManager) Sign(payload []byte) (keyID string, sigHex string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentKeyID == "" {
		return "", "", models.NewAgentError(models.ErrorKindUnknownKeyID, "no current key registered")
	}
	priv, ok := m.unlockedPriv[m.currentKeyID]
	if !ok {
		return "", "", models.NewAgentError(models.ErrorKindLockedKey, "key %q is locked; unlock before signing", m.currentKeyID)
	}
	sig := ed25519.Sign(priv, payload)
	return m.currentKeyID, hex.EncodeToString(sig), nil
}

// ResolvePublicKey looks up a public key by id. Never requires unlock.
func (m *KeyManager) ResolvePublicKey(keyID string) (ed25519.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.keyring[keyID]
	if !ok {
		return nil, models.NewAgentError(models.ErrorKindUnknownKeyID, "unknown key id %q", keyID)
	}
	return rec.PublicKey, nil
}

// VerifySignature checks sigHex against payload under keyID's public key.
// Never requires unlock.
func (m *KeyManager) VerifySignature(keyID string, payload []byte, sigHex string) (bool, error) {
	pub, err := m.ResolvePublicKey(keyID)
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, models.NewAgentError(models.ErrorKindInvalidSignature, "signature is not valid hex")
	}
	return ed25519.Verify(pub, payload, sig), nil
}

// wrapPrivateKey derives a key-encryption key from passphrase via scrypt
// with a fresh per-key salt, then AEAD-wraps the private key with AES-GCM.
func wrapPrivateKey(priv ed25519.PrivateKey, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("approval: salt: %w", err)
	}
	kek, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("approval: derive key: %w", err)
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("approval: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("approval: gcm: %w", err)
	}
	n := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("approval: nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, n, priv, nil)
	out := make([]byte, 0, len(salt)+len(n)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, n...)
	out = append(out, ciphertext...)
	return out, nil
}

// keyringFile is the on-disk JSON encoding of a KeyManager's keyring. The
// private key stays wrapped (PrivateKeyCiphertext, never the plaintext
// scalar); loading a keyring from disk does not unlock it.
type keyringFile struct {
	CurrentKeyID string            `json:"current_key_id"`
	Keys         []keyringFileItem `json:"keys"`
}

type keyringFileItem struct {
	KeyID                string     `json:"key_id"`
	PublicKey            string     `json:"public_key"`             // hex
	PrivateKeyCiphertext string     `json:"private_key_ciphertext"` // hex
	CreatedAt            time.Time  `json:"created_at"`
	RevokedAt            *time.Time `json:"revoked_at,omitempty"`
}

// SaveKeyring writes the keyring to path as JSON, with 0o600 permissions
// since the file carries every key's wrapped private-key ciphertext
// (still passphrase-sealed, but worth keeping off a shared umask).
func (m *KeyManager) SaveKeyring(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file := keyringFile{CurrentKeyID: m.currentKeyID, Keys: make([]keyringFileItem, 0, len(m.keyring))}
	for _, rec := range m.keyring {
		file.Keys = append(file.Keys, keyringFileItem{
			KeyID:                rec.KeyID,
			PublicKey:            hex.EncodeToString(rec.PublicKey),
			PrivateKeyCiphertext: hex.EncodeToString(rec.PrivateKeyCiphertext),
			CreatedAt:            rec.CreatedAt,
			RevokedAt:            rec.RevokedAt,
		})
	}

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("approval: encoding keyring: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("approval: writing keyring: %w", err)
	}
	return nil
}

// LoadKeyring replaces the manager's keyring with the contents of path.
// Every key loads locked; call Unlock with the passphrase it was wrapped
// under before signing.
func (m *KeyManager) LoadKeyring(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("approval: reading keyring: %w", err)
	}
	var file keyringFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("approval: decoding keyring: %w", err)
	}

	keyring := make(map[string]*KeyRecord, len(file.Keys))
	for _, item := range file.Keys {
		pub, err := hex.DecodeString(item.PublicKey)
		if err != nil {
			return fmt.Errorf("approval: decoding public key %q: %w", item.KeyID, err)
		}
		ciphertext, err := hex.DecodeString(item.PrivateKeyCiphertext)
		if err != nil {
			return fmt.Errorf("approval: decoding private key ciphertext %q: %w", item.KeyID, err)
		}
		keyring[item.KeyID] = &KeyRecord{
			KeyID:                item.KeyID,
			PublicKey:            ed25519.PublicKey(pub),
			PrivateKeyCiphertext: ciphertext,
			CreatedAt:            item.CreatedAt,
			RevokedAt:            item.RevokedAt,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyring = keyring
	m.currentKeyID = file.CurrentKeyID
	m.unlockedPriv = map[string]ed25519.PrivateKey{}
	m.logger.Info("keyring loaded", "path", path, "keys", len(keyring))
	return nil
}

func unwrapPrivateKey(blob []byte, passphrase string) (ed25519.PrivateKey, error) {
	if len(blob) < saltLen+nonceLen {
		return nil, fmt.Errorf("approval: ciphertext too short")
	}
	salt := blob[:saltLen]
	n := blob[saltLen : saltLen+nonceLen]
	ciphertext := blob[saltLen+nonceLen:]
	kek, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, n, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(plain), nil
}

package skap

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
)

type (
	// Identity is the public half of an account.
	Identity = codec.Identity

	// KeyMaterial holds the long-term key pairs and the session secret.
	KeyMaterial = codec.KeyMaterial

	// Credential is one stored login.
	Credential = codec.Credential
)

// Opt returns a pointer to s, for optional Credential fields.
func Opt(s string) *string {
	return codec.Opt(s)
}

// Account is a loaded identity with its key material. Authentication
// replaces the session secret in place; everything else is immutable.
type Account struct {
	// authMu keeps at most one authentication attempt in flight.
	authMu sync.Mutex

	mu       sync.RWMutex
	identity Identity
	keys     KeyMaterial
	wiped    bool
}

// NewAccount wraps an identity and key material without validating key
// sizes. Sizes are checked where each key is used.
func NewAccount(identity Identity, keys KeyMaterial) *Account {
	return &Account{identity: identity, keys: keys}
}

// GenerateAccount creates an account with fresh ML-KEM-1024 and ML-DSA-87
// key pairs.
func GenerateAccount(email string, userID *uuid.UUID) (*Account, error) {
	keys, err := crypto.GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}
	return NewAccount(Identity{
		Email:              email,
		UserID:             userID,
		KEMPublicKey:       append([]byte(nil), keys.KEMPublicKey...),
		SignaturePublicKey: append([]byte(nil), keys.SignaturePublicKey...),
	}, *keys), nil
}

func decodeAccount(data []byte, mode codec.Mode) (*Account, error) {
	decoded, err := codec.DecodeAccountMode(data, mode)
	if err != nil {
		return nil, err
	}
	return NewAccount(decoded.Identity, decoded.Keys), nil
}

// LoadAccount decodes an account file.
func (c *Client) LoadAccount(data []byte) (*Account, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	acct, err := decodeAccount(data, c.decodeMode)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acct, nil
}

// LoadAccountFile reads and decodes the account file at path. Files larger
// than 1 MiB are rejected without reading them whole.
func (c *Client) LoadAccountFile(path string) (*Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, codec.MaxAccountFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return c.LoadAccount(data)
}

// MarshalBinary encodes the account file. The session secret is never
// written.
func (a *Account) MarshalBinary() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	keys := a.keys
	keys.SessionSecret = nil
	return codec.EncodeAccount(&codec.Account{Keys: keys, Identity: a.identity})
}

// WriteFile writes the account file to path with 0600 permissions.
func (a *Account) WriteFile(path string) error {
	data, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Email returns the account email.
func (a *Account) Email() string {
	return a.identity.Email
}

// ID returns the identifier sent to the service: the user id when present,
// the email otherwise.
func (a *Account) ID() string {
	if a.identity.UserID != nil {
		return a.identity.UserID.String()
	}
	return a.identity.Email
}

// Identity returns a copy of the public identity.
func (a *Account) Identity() Identity {
	id := a.identity
	id.KEMPublicKey = append([]byte(nil), id.KEMPublicKey...)
	id.SignaturePublicKey = append([]byte(nil), id.SignaturePublicKey...)
	return id
}

// Fingerprint returns a short base58 digest of the signature public key.
func (a *Account) Fingerprint() string {
	sum := crypto.DeriveKey(a.identity.SignaturePublicKey)
	return base58.Encode(sum[:16])
}

// HasSession reports whether a session secret is established.
func (a *Account) HasSession() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.keys.SessionSecret != nil
}

func (a *Account) sessionSecret() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.keys.SessionSecret == nil {
		return nil
	}
	return append([]byte(nil), a.keys.SessionSecret...)
}

func (a *Account) setSessionSecret(ss []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	crypto.Zero(a.keys.SessionSecret)
	a.keys.SessionSecret = ss
}

func (a *Account) clearSession() {
	a.setSessionSecret(nil)
}

// Wipe zeroes every secret key held by the account. Authentication and
// envelope operations on it fail with ErrAccountWiped afterwards.
func (a *Account) Wipe() {
	a.mu.Lock()
	defer a.mu.Unlock()
	crypto.Zero(a.keys.KEMSecretKey)
	crypto.Zero(a.keys.SignatureSecretKey)
	crypto.Zero(a.keys.SessionSecret)
	a.keys.SessionSecret = nil
	a.wiped = true
}

// Wiped reports whether Wipe has been called.
func (a *Account) Wiped() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wiped
}

// kemSecretKey returns the long-term KEM secret key.
func (a *Account) kemSecretKey() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.wiped {
		return nil, ErrAccountWiped
	}
	if len(a.keys.KEMSecretKey) != codec.KEMSecretKeySize {
		return nil, &crypto.KeySizeError{Name: "kem secret key", Got: len(a.keys.KEMSecretKey), Want: codec.KEMSecretKeySize}
	}
	return a.keys.KEMSecretKey, nil
}

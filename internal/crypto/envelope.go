package crypto

import (
	"errors"
	"fmt"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
)

// Envelope is an encrypted credential record. Nonce2 is set only on owned
// records, where it belongs to the outer session layer.
type Envelope struct {
	Ciphertext codec.Bytes `json:"ciphertext"`
	Nonce      codec.Bytes `json:"nonce"`
	Nonce2     codec.Bytes `json:"nonce2,omitempty"`
}

// IsDouble reports whether e carries the outer session layer.
func (e *Envelope) IsDouble() bool {
	return len(e.Nonce2) > 0
}

// ShareStatus is the recipient's decision on a shared credential.
type ShareStatus string

// Share statuses.
const (
	SharePending  ShareStatus = "Pending"
	ShareAccepted ShareStatus = "Accepted"
	ShareRejected ShareStatus = "Rejected"
)

// Valid reports whether s is a known status.
func (s ShareStatus) Valid() bool {
	switch s {
	case SharePending, ShareAccepted, ShareRejected:
		return true
	}
	return false
}

// SharedEnvelope is a credential encrypted to a recipient's KEM public key.
type SharedEnvelope struct {
	KEMCiphertext codec.Bytes `json:"kem_ct"`
	Envelope      Envelope    `json:"ep"`
	Status        ShareStatus `json:"status"`
}

// SealOwned encrypts cred under two layers: the inner key derived from the
// account's KEM secret key and the outer key derived from the session secret.
func SealOwned(cred *codec.Credential, kemSecretKey, sessionSecret []byte) (*Envelope, error) {
	if err := checkKeySize("kem secret key", kemSecretKey, MLKEMSecretKeySize); err != nil {
		return nil, err
	}
	if sessionSecret == nil {
		return nil, ErrNoSessionSecret
	}

	plaintext := codec.EncodeCredential(cred)
	defer Zero(plaintext)

	innerKey := DeriveKey(kemSecretKey)
	defer Zero(innerKey)

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	inner, err := Seal(innerKey, nonce, plaintext)
	if err != nil {
		return nil, err
	}
	return WrapSession(&Envelope{Ciphertext: inner, Nonce: nonce}, sessionSecret)
}

// WrapSession adds the outer session layer to a single-layer envelope.
func WrapSession(inner *Envelope, sessionSecret []byte) (*Envelope, error) {
	if err := checkKeySize("session secret", sessionSecret, MLKEMSharedKeySize); err != nil {
		return nil, err
	}

	outerKey := DeriveKey(sessionSecret)
	defer Zero(outerKey)

	nonce2, err := NewNonce()
	if err != nil {
		return nil, err
	}
	outer, err := Seal(outerKey, nonce2, inner.Ciphertext)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Ciphertext: outer,
		Nonce:      append(codec.Bytes(nil), inner.Nonce...),
		Nonce2:     nonce2,
	}, nil
}

// UnwrapSession removes the outer session layer, returning the inner
// single-layer envelope.
func UnwrapSession(env *Envelope, sessionSecret []byte) (*Envelope, error) {
	if !env.IsDouble() {
		return nil, fmt.Errorf("%w: envelope has no session layer", ErrCryptoFailure)
	}
	if sessionSecret == nil {
		return nil, ErrNoSessionSecret
	}
	if err := checkKeySize("session secret", sessionSecret, MLKEMSharedKeySize); err != nil {
		return nil, err
	}

	outerKey := DeriveKey(sessionSecret)
	defer Zero(outerKey)

	inner, err := Open(outerKey, env.Nonce2, env.Ciphertext)
	if err != nil {
		return nil, err
	}
	return &Envelope{Ciphertext: inner, Nonce: append(codec.Bytes(nil), env.Nonce...)}, nil
}

// OpenOwned reverses SealOwned. Tag failures on either layer yield
// ErrCryptoFailure; a plaintext that does not decode yields a codec error.
func OpenOwned(env *Envelope, kemSecretKey, sessionSecret []byte) (*codec.Credential, error) {
	if err := checkKeySize("kem secret key", kemSecretKey, MLKEMSecretKeySize); err != nil {
		return nil, err
	}

	inner, err := UnwrapSession(env, sessionSecret)
	if err != nil {
		return nil, err
	}

	innerKey := DeriveKey(kemSecretKey)
	defer Zero(innerKey)

	plaintext, err := Open(innerKey, inner.Nonce, inner.Ciphertext)
	if err != nil {
		return nil, err
	}
	defer Zero(plaintext)

	return codec.DecodeCredential(plaintext)
}

// SealShared encrypts cred to a recipient's KEM public key. The result is
// Pending until the recipient accepts it.
func SealShared(cred *codec.Credential, recipientPublicKey []byte) (*SharedEnvelope, error) {
	kemCt, ss, err := Encapsulate(recipientPublicKey)
	if err != nil {
		return nil, err
	}
	key := DeriveKey(ss)
	Zero(ss)
	defer Zero(key)

	plaintext := codec.EncodeCredential(cred)
	defer Zero(plaintext)

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	ct, err := Seal(key, nonce, plaintext)
	if err != nil {
		return nil, err
	}
	return &SharedEnvelope{
		KEMCiphertext: kemCt,
		Envelope:      Envelope{Ciphertext: ct, Nonce: nonce},
		Status:        SharePending,
	}, nil
}

// OpenShared decrypts an Accepted shared envelope with the recipient's KEM
// secret key. Other statuses return ErrShareNotAccepted.
func OpenShared(shared *SharedEnvelope, kemSecretKey []byte) (*codec.Credential, error) {
	if shared.Status != ShareAccepted {
		return nil, fmt.Errorf("%w: status %q", ErrShareNotAccepted, shared.Status)
	}
	if shared.Envelope.IsDouble() {
		return nil, fmt.Errorf("%w: shared envelope carries a session layer", ErrCryptoFailure)
	}

	ss, err := Decapsulate(kemSecretKey, shared.KEMCiphertext)
	if err != nil {
		if errors.Is(err, ErrInvalidCiphertextSize) {
			return nil, fmt.Errorf("%w: %w", ErrCryptoFailure, err)
		}
		return nil, err
	}
	key := DeriveKey(ss)
	Zero(ss)
	defer Zero(key)

	plaintext, err := Open(key, shared.Envelope.Nonce, shared.Envelope.Ciphertext)
	if err != nil {
		return nil, err
	}
	defer Zero(plaintext)

	return codec.DecodeCredential(plaintext)
}

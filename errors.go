package skap

import (
	"errors"
	"fmt"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/apierrors"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrTransportFailure matches every failed request: non-2xx responses and
	// network errors alike.
	ErrTransportFailure = apierrors.ErrTransportFailure

	// ErrUnauthorized is returned when the server rejects a signature or a
	// session token.
	ErrUnauthorized = apierrors.ErrUnauthorized

	// ErrUserNotFound is returned when the server does not know a user id.
	ErrUserNotFound = apierrors.ErrUserNotFound

	// ErrCredentialNotFound is returned when a record id does not exist.
	ErrCredentialNotFound = apierrors.ErrCredentialNotFound

	// ErrRateLimited is returned when the server rate limit is exceeded.
	ErrRateLimited = apierrors.ErrRateLimited

	// ErrMalformedData is returned when encoded data is structurally invalid.
	ErrMalformedData = codec.ErrMalformedData

	// ErrEndOfStream is returned when encoded data ends before a field does.
	ErrEndOfStream = codec.ErrEndOfStream

	// ErrSizeViolation is returned when an account file is too small or too
	// large to be decoded.
	ErrSizeViolation = codec.ErrSizeViolation

	// ErrKeySizeMismatch is returned when a key does not have the size its
	// algorithm requires.
	ErrKeySizeMismatch = crypto.ErrKeySizeMismatch

	// ErrCryptoFailure is returned when authenticated decryption fails.
	ErrCryptoFailure = crypto.ErrCryptoFailure

	// ErrShareNotAccepted is returned when decrypting a shared credential
	// that has not been accepted.
	ErrShareNotAccepted = crypto.ErrShareNotAccepted

	// ErrNotAuthenticated is returned when an operation needs a session and
	// authentication did not produce one.
	ErrNotAuthenticated = errors.New("account is not authenticated")

	// ErrNoAccount is returned by Dispatch when no account has been loaded.
	ErrNoAccount = errors.New("no account loaded")

	// ErrAccountWiped is returned when a wiped account is used.
	ErrAccountWiped = errors.New("account has been wiped")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")
)

// Error is implemented by all typed errors of this package.
type Error interface {
	error
	SkapError() // marker method
}

type (
	// APIError represents a non-2xx response from the credential service.
	APIError = apierrors.APIError

	// NetworkError represents a network-level failure.
	NetworkError = apierrors.NetworkError

	// KeySizeError reports a key whose length does not match its algorithm.
	KeySizeError = crypto.KeySizeError
)

// DecryptionError represents a failure to decrypt or decode one credential
// record.
type DecryptionError struct {
	RecordID string
	Shared   bool
	Err      error
}

func (e *DecryptionError) Error() string {
	kind := "owned"
	if e.Shared {
		kind = "shared"
	}
	return fmt.Sprintf("decrypt %s record %s: %v", kind, e.RecordID, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// SkapError implements the Error interface.
func (e *DecryptionError) SkapError() {}

// AuthError reports a failed authentication attempt and the state it
// reached before failing.
type AuthError struct {
	Step AuthState
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed after %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// SkapError implements the Error interface.
func (e *AuthError) SkapError() {}

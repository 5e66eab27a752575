package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSecretKeySize is returned when the secret key size is invalid.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInvalidPublicKeySize is returned when the public key size is invalid.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")

	// ErrInvalidCiphertextSize is returned when the ciphertext size is invalid.
	ErrInvalidCiphertextSize = errors.New("invalid ciphertext size")

	// ErrKeySizeMismatch is returned when key material does not have the
	// length its algorithm requires.
	ErrKeySizeMismatch = errors.New("key size mismatch")

	// ErrCryptoFailure is returned when an authentication tag does not verify
	// or a key cannot be used.
	ErrCryptoFailure = errors.New("crypto failure")

	// ErrInvalidKeySize is returned when the symmetric key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrShareNotAccepted is returned when opening a shared envelope whose
	// recipient has not accepted it.
	ErrShareNotAccepted = errors.New("shared credential not accepted")

	// ErrNoSessionSecret is returned when an owned envelope operation runs
	// before a session secret has been established.
	ErrNoSessionSecret = errors.New("no session secret")
)

// KeySizeError reports a key whose length does not match its algorithm.
type KeySizeError struct {
	Name string
	Got  int
	Want int
}

func (e *KeySizeError) Error() string {
	return fmt.Sprintf("%s: %s is %d bytes, want %d", ErrKeySizeMismatch, e.Name, e.Got, e.Want)
}

// Is reports whether target is ErrKeySizeMismatch.
func (e *KeySizeError) Is(target error) bool {
	return target == ErrKeySizeMismatch
}

func checkKeySize(name string, key []byte, want int) error {
	if len(key) != want {
		return &KeySizeError{Name: name, Got: len(key), Want: want}
	}
	return nil
}

// SkapError implements the skap.Error interface.
func (e *KeySizeError) SkapError() {}

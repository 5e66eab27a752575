package codec

import (
	"fmt"

	"github.com/google/uuid"
)

// Fixed blob sizes for ML-KEM-1024 and ML-DSA-87 keys.
const (
	KEMPublicKeySize       = 1568
	KEMSecretKeySize       = 3168
	SignaturePublicKeySize = 2592
	SignatureSecretKeySize = 4896
	SessionSecretSize      = 32
	UserIDSize             = 16

	// MinAccountFileSize is the smallest input accepted before structural decode.
	MinAccountFileSize = 4
	// MaxAccountFileSize caps account files at 1 MiB.
	MaxAccountFileSize = 1 << 20
)

// KeyMaterial holds the long-term key pairs and the current session secret.
type KeyMaterial struct {
	KEMPublicKey       []byte
	KEMSecretKey       []byte
	SignaturePublicKey []byte
	SignatureSecretKey []byte
	// SessionSecret is nil until the first successful authentication.
	SessionSecret []byte
}

// Identity is the public half of an account.
type Identity struct {
	Email              string
	UserID             *uuid.UUID
	KEMPublicKey       []byte
	SignaturePublicKey []byte
}

// Account is a decoded account file.
type Account struct {
	Keys     KeyMaterial
	Identity Identity
}

func checkSize(name string, b []byte, want int) error {
	if len(b) != want {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrInvalidKeyMaterial, name, len(b), want)
	}
	return nil
}

func (k *KeyMaterial) validate() error {
	if err := checkSize("kem public key", k.KEMPublicKey, KEMPublicKeySize); err != nil {
		return err
	}
	if err := checkSize("kem secret key", k.KEMSecretKey, KEMSecretKeySize); err != nil {
		return err
	}
	if err := checkSize("signature public key", k.SignaturePublicKey, SignaturePublicKeySize); err != nil {
		return err
	}
	if err := checkSize("signature secret key", k.SignatureSecretKey, SignatureSecretKeySize); err != nil {
		return err
	}
	if k.SessionSecret != nil {
		return checkSize("session secret", k.SessionSecret, SessionSecretSize)
	}
	return nil
}

func (id *Identity) validate() error {
	if err := checkSize("kem public key", id.KEMPublicKey, KEMPublicKeySize); err != nil {
		return err
	}
	return checkSize("signature public key", id.SignaturePublicKey, SignaturePublicKeySize)
}

func (k *KeyMaterial) write(w *writer) {
	w.blob(k.KEMPublicKey)
	w.blob(k.KEMSecretKey)
	w.blob(k.SignaturePublicKey)
	w.blob(k.SignatureSecretKey)
	w.presence(k.SessionSecret != nil)
	if k.SessionSecret != nil {
		w.buf = append(w.buf, k.SessionSecret...)
	}
}

func (id *Identity) write(w *writer) {
	w.string(id.Email)
	w.presence(id.UserID != nil)
	if id.UserID != nil {
		w.blob(id.UserID[:])
	}
	w.blob(id.KEMPublicKey)
	w.blob(id.SignaturePublicKey)
}

// EncodeKeyMaterial encodes k. Blobs must have their fixed sizes.
func EncodeKeyMaterial(k *KeyMaterial) ([]byte, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	w := &writer{}
	k.write(w)
	return w.buf, nil
}

// EncodeIdentity encodes id. Key blobs must have their fixed sizes.
func EncodeIdentity(id *Identity) ([]byte, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}
	w := &writer{}
	id.write(w)
	return w.buf, nil
}

// EncodeAccount encodes an account file: key material followed by identity.
func EncodeAccount(a *Account) ([]byte, error) {
	if err := a.Keys.validate(); err != nil {
		return nil, err
	}
	if err := a.Identity.validate(); err != nil {
		return nil, err
	}
	w := &writer{}
	a.Keys.write(w)
	a.Identity.write(w)
	return w.buf, nil
}

func readKeyMaterial(r *reader) (*KeyMaterial, error) {
	var (
		k   KeyMaterial
		err error
	)
	if k.KEMPublicKey, err = r.blob("kem public key", KEMPublicKeySize); err != nil {
		return nil, err
	}
	if k.KEMSecretKey, err = r.blob("kem secret key", KEMSecretKeySize); err != nil {
		return nil, err
	}
	if k.SignaturePublicKey, err = r.blob("signature public key", SignaturePublicKeySize); err != nil {
		return nil, err
	}
	if k.SignatureSecretKey, err = r.blob("signature secret key", SignatureSecretKeySize); err != nil {
		return nil, err
	}
	present, err := r.presence()
	if err != nil {
		return nil, err
	}
	if present {
		b, err := r.take(SessionSecretSize)
		if err != nil {
			return nil, err
		}
		k.SessionSecret = append([]byte(nil), b...)
	}
	return &k, nil
}

func readIdentity(r *reader) (*Identity, error) {
	var (
		id  Identity
		err error
	)
	if id.Email, err = r.string(); err != nil {
		return nil, err
	}
	present, err := r.presence()
	if err != nil {
		return nil, err
	}
	if present {
		raw, err := r.blob("user id", UserIDSize)
		if err != nil {
			return nil, err
		}
		u, _ := uuid.FromBytes(raw)
		id.UserID = &u
	}
	if id.KEMPublicKey, err = r.blob("kem public key", KEMPublicKeySize); err != nil {
		return nil, err
	}
	if id.SignaturePublicKey, err = r.blob("signature public key", SignaturePublicKeySize); err != nil {
		return nil, err
	}
	return &id, nil
}

// DecodeKeyMaterial decodes key material in lenient mode.
func DecodeKeyMaterial(data []byte) (*KeyMaterial, error) {
	return readKeyMaterial(newReader(data, Lenient))
}

// DecodeIdentity decodes an identity in lenient mode.
func DecodeIdentity(data []byte) (*Identity, error) {
	return readIdentity(newReader(data, Lenient))
}

// DecodeAccount decodes an account file in lenient mode.
func DecodeAccount(data []byte) (*Account, error) {
	return DecodeAccountMode(data, Lenient)
}

// DecodeAccountStrict decodes an account file, validating every key blob
// length field and rejecting trailing bytes.
func DecodeAccountStrict(data []byte) (*Account, error) {
	return DecodeAccountMode(data, Strict)
}

// DecodeAccountMode decodes an account file using the given mode.
func DecodeAccountMode(data []byte, mode Mode) (*Account, error) {
	if len(data) < MinAccountFileSize || len(data) > MaxAccountFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSizeViolation, len(data))
	}
	r := newReader(data, mode)
	keys, err := readKeyMaterial(r)
	if err != nil {
		return nil, fmt.Errorf("key material: %w", err)
	}
	id, err := readIdentity(r)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	if mode == Strict && r.remaining() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedData, r.remaining())
	}
	return &Account{Keys: *keys, Identity: *id}, nil
}

package crypto

import (
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
)

// randReader is the random source used for key generation and nonces.
// It defaults to nil (which uses crypto/rand) but can be overridden for testing.
var randReader io.Reader

// GenerateKeyMaterial creates fresh ML-KEM-1024 and ML-DSA-87 key pairs.
// The session secret is left unset.
func GenerateKeyMaterial() (*codec.KeyMaterial, error) {
	kemPub, kemPriv, err := mlkem1024.GenerateKeyPair(randReader)
	if err != nil {
		return nil, fmt.Errorf("generate kem key: %w", err)
	}
	sigPub, sigPriv, err := mldsa87.GenerateKey(randReader)
	if err != nil {
		return nil, fmt.Errorf("generate signature key: %w", err)
	}

	// MarshalBinary never fails for keys from GenerateKey
	kemPk, _ := kemPub.MarshalBinary()
	kemSk, _ := kemPriv.MarshalBinary()
	sigPk, _ := sigPub.MarshalBinary()
	sigSk, _ := sigPriv.MarshalBinary()

	return &codec.KeyMaterial{
		KEMPublicKey:       kemPk,
		KEMSecretKey:       kemSk,
		SignaturePublicKey: sigPk,
		SignatureSecretKey: sigSk,
	}, nil
}

// ValidateKeyMaterial checks every key length and that the KEM secret key
// unpacks.
func ValidateKeyMaterial(k *codec.KeyMaterial) error {
	if k == nil {
		return fmt.Errorf("%w: nil key material", ErrKeySizeMismatch)
	}
	checks := []struct {
		name string
		key  []byte
		want int
	}{
		{"kem public key", k.KEMPublicKey, MLKEMPublicKeySize},
		{"kem secret key", k.KEMSecretKey, MLKEMSecretKeySize},
		{"signature public key", k.SignaturePublicKey, MLDSAPublicKeySize},
		{"signature secret key", k.SignatureSecretKey, MLDSASecretKeySize},
	}
	for _, c := range checks {
		if err := checkKeySize(c.name, c.key, c.want); err != nil {
			return err
		}
	}
	if k.SessionSecret != nil {
		if err := checkKeySize("session secret", k.SessionSecret, MLKEMSharedKeySize); err != nil {
			return err
		}
	}

	var priv mlkem1024.PrivateKey
	if err := priv.Unpack(k.KEMSecretKey); err != nil {
		return fmt.Errorf("%w: kem secret key: %v", ErrCryptoFailure, err)
	}
	return nil
}

// DerivePublicKeyFromSecret extracts the public key from an ML-KEM-1024
// secret key, where it is embedded at PublicKeyOffset.
func DerivePublicKeyFromSecret(secretKey []byte) ([]byte, error) {
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	publicKey := make([]byte, MLKEMPublicKeySize)
	copy(publicKey, secretKey[PublicKeyOffset:PublicKeyOffset+MLKEMPublicKeySize])
	return publicKey, nil
}

// Encapsulate generates a shared secret for publicKey and returns it with
// the KEM ciphertext that carries it.
func Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(publicKey) != MLKEMPublicKeySize {
		return nil, nil, ErrInvalidPublicKeySize
	}

	var pub mlkem1024.PublicKey
	if err := pub.Unpack(publicKey); err != nil {
		return nil, nil, fmt.Errorf("%w: kem public key: %v", ErrCryptoFailure, err)
	}

	var seed []byte
	if randReader != nil {
		seed = make([]byte, mlkem1024.EncapsulationSeedSize)
		if _, err := io.ReadFull(randReader, seed); err != nil {
			return nil, nil, fmt.Errorf("encapsulation seed: %w", err)
		}
	}

	ciphertext = make([]byte, MLKEMCiphertextSize)
	sharedSecret = make([]byte, MLKEMSharedKeySize)
	pub.EncapsulateTo(ciphertext, sharedSecret, seed)
	return ciphertext, sharedSecret, nil
}

// Decapsulate recovers the shared secret carried by ciphertext.
func Decapsulate(secretKey, ciphertext []byte) ([]byte, error) {
	if err := checkKeySize("kem secret key", secretKey, MLKEMSecretKeySize); err != nil {
		return nil, err
	}
	if len(ciphertext) != MLKEMCiphertextSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidCiphertextSize, len(ciphertext), MLKEMCiphertextSize)
	}

	var priv mlkem1024.PrivateKey
	if err := priv.Unpack(secretKey); err != nil {
		return nil, fmt.Errorf("%w: kem secret key: %v", ErrCryptoFailure, err)
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	priv.DecapsulateTo(sharedSecret, ciphertext)
	return sharedSecret, nil
}

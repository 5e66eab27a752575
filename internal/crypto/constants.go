package crypto

import (
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// MLKEMPublicKeySize is the size of an ML-KEM-1024 public key in bytes.
	MLKEMPublicKeySize = mlkem1024.PublicKeySize
	// MLKEMSecretKeySize is the size of an ML-KEM-1024 secret key in bytes.
	MLKEMSecretKeySize = mlkem1024.PrivateKeySize
	// MLKEMCiphertextSize is the size of an ML-KEM-1024 ciphertext in bytes.
	MLKEMCiphertextSize = mlkem1024.CiphertextSize
	// MLKEMSharedKeySize is the size of the shared secret from ML-KEM-1024 in bytes.
	MLKEMSharedKeySize = mlkem1024.SharedKeySize

	// MLDSAPublicKeySize is the size of an ML-DSA-87 public key in bytes.
	MLDSAPublicKeySize = mldsa87.PublicKeySize
	// MLDSASecretKeySize is the size of an ML-DSA-87 secret key in bytes.
	MLDSASecretKeySize = mldsa87.PrivateKeySize
	// MLDSASignatureSize is the size of an ML-DSA-87 signature in bytes.
	MLDSASignatureSize = mldsa87.SignatureSize

	// KeySize is the size of every derived symmetric key.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the size of an XChaCha20-Poly1305 nonce in bytes.
	NonceSize = chacha20poly1305.NonceSizeX
	// TagSize is the size of a Poly1305 authentication tag in bytes.
	TagSize = chacha20poly1305.Overhead

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// PublicKeyOffset is the byte offset where the public key is embedded
	// within an ML-KEM-1024 secret key.
	PublicKeyOffset = 1536
)

// AlgsCiphersuite is the canonical string representation of the algorithm suite.
var AlgsCiphersuite = "ML-KEM-1024:ML-DSA-87:XChaCha20-Poly1305:BLAKE3-256"

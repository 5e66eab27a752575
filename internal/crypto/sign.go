package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// Sign signs message with an ML-DSA-87 secret key using an empty context.
// The key length is checked before anything else.
func Sign(secretKey, message []byte) ([]byte, error) {
	if err := checkKeySize("signature secret key", secretKey, MLDSASecretKeySize); err != nil {
		return nil, err
	}

	var sk mldsa87.PrivateKey
	if err := sk.UnmarshalBinary(secretKey); err != nil {
		return nil, fmt.Errorf("%w: signature secret key: %v", ErrCryptoFailure, err)
	}

	sig := make([]byte, MLDSASignatureSize)
	if err := mldsa87.SignTo(&sk, message, nil, false, sig); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid ML-DSA-87 signature of message.
func Verify(publicKey, message, sig []byte) bool {
	if len(publicKey) != MLDSAPublicKeySize || len(sig) != MLDSASignatureSize {
		return false
	}
	var pk mldsa87.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false
	}
	return mldsa87.Verify(&pk, message, nil, sig)
}

package crypto

import "lukechampine.com/blake3"

// DeriveKey hashes secret with BLAKE3-256 into a symmetric key.
// Callers should Zero the result once the operation that needed it is done.
func DeriveKey(secret []byte) []byte {
	sum := blake3.Sum256(secret)
	key := make([]byte, KeySize)
	copy(key, sum[:])
	Zero(sum[:])
	return key
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}

// Package crypto provides the cryptographic primitives used to protect
// credential records and authenticate accounts.
//
// # Algorithm Suite
//
//   - ML-KEM-1024 (NIST FIPS 203): key encapsulation. Establishes the session
//     secret during authentication and wraps shared credentials.
//
//   - ML-DSA-87 (NIST FIPS 204): signatures over the server challenge.
//
//   - XChaCha20-Poly1305: authenticated encryption of credential envelopes,
//     with 24-byte random nonces.
//
//   - BLAKE3-256: derives each 32-byte symmetric key from its secret
//     ([DeriveKey]).
//
//   - AES-256-GCM: encryption of local cache entries, 12-byte IVs.
//
// # Envelopes
//
// An owned credential is encrypted twice. The inner layer uses a key derived
// from the account's KEM secret key and the nonce stored in
// [Envelope.Nonce]; the outer layer uses a key derived from the current
// session secret and [Envelope.Nonce2]. A record sealed under one session
// secret does not open under another, so the outer layer must be re-applied
// after each authentication ([UnwrapSession], [WrapSession]).
//
// A shared credential is a single layer keyed by BLAKE3 of an ML-KEM-1024
// shared secret encapsulated to the recipient. Only envelopes whose status is
// [ShareAccepted] are opened.
//
// Derived keys and intermediate plaintexts are zeroed with [Zero] before the
// operation returns.
//
// # Key Management
//
// Use [GenerateKeyMaterial] to create a new account's key pairs. The ML-KEM
// secret key embeds its public key at offset 1536, which can be extracted
// with [DerivePublicKeyFromSecret].
//
// Keep secret keys secure. They should never be logged, transmitted in
// plaintext, or stored in version control.
package crypto

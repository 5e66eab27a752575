// Package codec implements the fixed-layout binary format used for account
// files and credential records.
//
// # Primitives
//
//   - String: an unsigned 64-bit little-endian byte length followed by that
//     many UTF-8 bytes.
//   - Optional string: a presence byte (0 = absent, 1 = present) followed, only
//     when present, by a string.
//   - Key blob: an 8-byte little-endian length field followed by the blob. The
//     length field is written as the blob length. In [Lenient] mode it is
//     skipped on read; [Strict] mode requires it to equal the known blob size.
//
// # Records
//
// A credential is encoded as password, appId?, username, description?, url?,
// otp?, in that order. Key material is four key blobs (ML-KEM public, ML-KEM
// secret, ML-DSA public, ML-DSA secret) followed by an optional 32-byte session
// secret. An identity is the email string, an optional UUID blob, and the two
// public key blobs. An account file is key material immediately followed by an
// identity.
//
// Decoding never returns a partially filled value: the first structural
// violation aborts the whole decode with [ErrMalformedData] or
// [ErrEndOfStream].
package codec

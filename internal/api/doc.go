// Package api provides the HTTP client for the credential service. It
// handles request/response serialization, bearer session tokens, client-side
// pacing and optional retry with exponential backoff.
//
// # Client Creation
//
// The package provides two ways to create a client:
//
//   - [NewClient]: Struct-based configuration for explicit, type-safe setup.
//   - [New]: Functional options pattern for flexible configuration.
//
// Both require a base URL.
//
// # Wire Format
//
// Byte fields (challenges, signatures, KEM ciphertexts, public keys and
// envelope fields) travel as JSON arrays of numbers. Every endpoint is scoped
// by the caller's user id in the path, e.g. GET /challenge/{uid}. Calls made
// after authentication carry the session token in the Authorization header.
//
// # Retry Behavior
//
// Transport failures are not retried by default. Setting [Config.MaxRetries]
// enables retries with exponential backoff for network errors and these
// status codes:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// Only idempotent calls are repeated: reads, updates and share decisions.
// Verify, create and share are sent once whatever the policy says. A
// Retry-After header replaces the computed backoff and is also reported in
// APIError.RetryAfter.
//
// # Error Handling
//
// Non-2xx responses are returned as *apierrors.APIError and network failures
// as *apierrors.NetworkError. Both match apierrors.ErrTransportFailure:
//
//	if errors.Is(err, apierrors.ErrTransportFailure) {
//	    // server unreachable or rejected the request
//	}
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use. Multiple goroutines may call
// methods on a single Client simultaneously.
package api

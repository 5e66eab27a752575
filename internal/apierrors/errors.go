// Package apierrors provides shared error types for the skap client.
package apierrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrTransportFailure is matched by every non-success response and every
	// network-level failure.
	ErrTransportFailure = errors.New("transport failure")

	// ErrUnauthorized is returned when the session token is missing, invalid
	// or expired.
	ErrUnauthorized = errors.New("invalid or expired session token")

	// ErrUserNotFound is returned when a user id is unknown to the server.
	ErrUserNotFound = errors.New("user not found")

	// ErrCredentialNotFound is returned when a credential record is not found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrRateLimited is returned when the server rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ResourceType indicates which type of resource an error relates to.
type ResourceType string

const (
	// ResourceUnknown indicates the resource type is not specified.
	ResourceUnknown ResourceType = ""
	// ResourceUser indicates the error relates to a user.
	ResourceUser ResourceType = "user"
	// ResourceCredential indicates the error relates to a credential record.
	ResourceCredential ResourceType = "credential"
)

// APIError represents a non-success HTTP response.
type APIError struct {
	StatusCode   int
	Message      string
	RequestID    string
	ResourceType ResourceType

	// RetryAfter is the wait the server asked for, zero when it sent none.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// SkapError implements the skap.Error interface.
func (e *APIError) SkapError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	if target == ErrTransportFailure {
		return true
	}
	switch e.StatusCode {
	case 401:
		return target == ErrUnauthorized
	case 404:
		switch e.ResourceType {
		case ResourceUser:
			return target == ErrUserNotFound
		case ResourceCredential:
			return target == ErrCredentialNotFound
		default:
			return target == ErrUserNotFound || target == ErrCredentialNotFound
		}
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// WithResourceType returns a copy of the error with the resource type set.
// If the error is not an *APIError, it is returned unchanged.
func WithResourceType(err error, rt ResourceType) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode:   apiErr.StatusCode,
			Message:      apiErr.Message,
			RequestID:    apiErr.RequestID,
			ResourceType: rt,
			RetryAfter:   apiErr.RetryAfter,
		}
	}
	return err
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransportFailure.
func (e *NetworkError) Is(target error) bool {
	return target == ErrTransportFailure
}

// SkapError implements the skap.Error interface.
func (e *NetworkError) SkapError() {}

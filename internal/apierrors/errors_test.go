package apierrors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "status code only",
			err:      &APIError{StatusCode: 500},
			expected: "API error 500",
		},
		{
			name:     "with message",
			err:      &APIError{StatusCode: 400, Message: "bad request"},
			expected: "API error 400: bad request",
		},
		{
			name:     "with request ID",
			err:      &APIError{StatusCode: 500, RequestID: "req-123"},
			expected: "API error 500 (request_id: req-123)",
		},
		{
			name:     "with message and request ID",
			err:      &APIError{StatusCode: 503, Message: "service unavailable", RequestID: "req-456"},
			expected: "API error 503: service unavailable (request_id: req-456)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		target   error
		expected bool
	}{
		{
			name:     "any status matches ErrTransportFailure",
			err:      &APIError{StatusCode: 500},
			target:   ErrTransportFailure,
			expected: true,
		},
		{
			name:     "401 matches ErrUnauthorized",
			err:      &APIError{StatusCode: 401},
			target:   ErrUnauthorized,
			expected: true,
		},
		{
			name:     "401 does not match ErrUserNotFound",
			err:      &APIError{StatusCode: 401},
			target:   ErrUserNotFound,
			expected: false,
		},
		{
			name:     "404 with user resource matches ErrUserNotFound",
			err:      &APIError{StatusCode: 404, ResourceType: ResourceUser},
			target:   ErrUserNotFound,
			expected: true,
		},
		{
			name:     "404 with user resource does not match ErrCredentialNotFound",
			err:      &APIError{StatusCode: 404, ResourceType: ResourceUser},
			target:   ErrCredentialNotFound,
			expected: false,
		},
		{
			name:     "404 with credential resource matches ErrCredentialNotFound",
			err:      &APIError{StatusCode: 404, ResourceType: ResourceCredential},
			target:   ErrCredentialNotFound,
			expected: true,
		},
		{
			name:     "404 without resource type matches ErrUserNotFound",
			err:      &APIError{StatusCode: 404},
			target:   ErrUserNotFound,
			expected: true,
		},
		{
			name:     "404 without resource type matches ErrCredentialNotFound",
			err:      &APIError{StatusCode: 404},
			target:   ErrCredentialNotFound,
			expected: true,
		},
		{
			name:     "429 matches ErrRateLimited",
			err:      &APIError{StatusCode: 429},
			target:   ErrRateLimited,
			expected: true,
		},
		{
			name:     "500 does not match ErrUnauthorized",
			err:      &APIError{StatusCode: 500},
			target:   ErrUnauthorized,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Is(tt.target)
			if got != tt.expected {
				t.Errorf("Is(%v) = %v, want %v", tt.target, got, tt.expected)
			}
		})
	}
}

func TestAPIError_ErrorsIs(t *testing.T) {
	err := fmt.Errorf("challenge: %w", &APIError{StatusCode: 401})
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("errors.Is should match ErrUnauthorized for wrapped 401")
	}
	if !errors.Is(err, ErrTransportFailure) {
		t.Error("errors.Is should match ErrTransportFailure for wrapped 401")
	}
}

func TestWithResourceType(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		resourceType ResourceType
		checkResult  func(t *testing.T, result error)
	}{
		{
			name:         "nil error returns nil",
			err:          nil,
			resourceType: ResourceUser,
			checkResult: func(t *testing.T, result error) {
				if result != nil {
					t.Errorf("expected nil, got %v", result)
				}
			},
		},
		{
			name:         "APIError gets resource type",
			err:          &APIError{StatusCode: 404, Message: "not found"},
			resourceType: ResourceCredential,
			checkResult: func(t *testing.T, result error) {
				apiErr, ok := result.(*APIError)
				if !ok {
					t.Fatal("expected *APIError")
				}
				if apiErr.ResourceType != ResourceCredential {
					t.Errorf("ResourceType = %v, want %v", apiErr.ResourceType, ResourceCredential)
				}
				if apiErr.StatusCode != 404 {
					t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
				}
				if apiErr.Message != "not found" {
					t.Errorf("Message = %q, want %q", apiErr.Message, "not found")
				}
			},
		},
		{
			name:         "rate limit keeps retry after",
			err:          &APIError{StatusCode: 429, RetryAfter: 5 * time.Second},
			resourceType: ResourceUser,
			checkResult: func(t *testing.T, result error) {
				apiErr, ok := result.(*APIError)
				if !ok {
					t.Fatal("expected *APIError")
				}
				if apiErr.RetryAfter != 5*time.Second {
					t.Errorf("RetryAfter = %v, want 5s", apiErr.RetryAfter)
				}
				if !errors.Is(result, ErrRateLimited) {
					t.Error("should still match ErrRateLimited")
				}
			},
		},
		{
			name:         "non-APIError returned unchanged",
			err:          fmt.Errorf("some other error"),
			resourceType: ResourceUser,
			checkResult: func(t *testing.T, result error) {
				if result.Error() != "some other error" {
					t.Errorf("expected original error, got %v", result)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WithResourceType(tt.err, tt.resourceType)
			tt.checkResult(t, result)
		})
	}
}

func TestNetworkError(t *testing.T) {
	underlying := fmt.Errorf("connection refused")
	err := &NetworkError{Err: underlying, URL: "http://x/challenge/1", Attempt: 1}

	expected := "network error: connection refused"
	if got := err.Error(); got != expected {
		t.Errorf("Error() = %q, want %q", got, expected)
	}

	if errors.Unwrap(err) != underlying {
		t.Error("errors.Unwrap should return underlying error")
	}

	if !errors.Is(err, ErrTransportFailure) {
		t.Error("errors.Is should match ErrTransportFailure")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("errors.Is should not match ErrUnauthorized")
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrTransportFailure,
		ErrUnauthorized,
		ErrUserNotFound,
		ErrCredentialNotFound,
		ErrRateLimited,
	}

	for _, err := range sentinels {
		if err == nil {
			t.Error("sentinel error should not be nil")
		}
		if err.Error() == "" {
			t.Error("sentinel error message should not be empty")
		}
	}
}

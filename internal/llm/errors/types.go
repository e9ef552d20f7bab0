// Package errors defines the failure taxonomy for remote model calls.
//
// Every provider adapter converts transport and HTTP failures into one of the
// typed errors below so that retry, agent and orchestration code can decide
// what to do with errors.As instead of string matching. The central split is
// retryable (network, timeouts, rate limits, provider outages) versus
// non-retryable (validation, authentication, permission, quota and content
// policy failures).
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies a remote call failure.
//
// The type decides retry behavior: Retryable reports true for timeouts, rate
// limits, network failures and provider outages, and false for everything the
// caller must fix (validation, authentication, permission, quota, content
// filtering) or chose (cancellation).
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates a local or remote rate limit (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the provider is unavailable or returned a 5xx (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the request itself is malformed (non-retryable).
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeContent indicates content blocked by provider safety filters (non-retryable).
	ErrorTypeContent ErrorType = "content_filtered"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (non-retryable).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates the account quota is exhausted (non-retryable).
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeCanceled indicates the caller canceled the operation (non-retryable).
	ErrorTypeCanceled ErrorType = "canceled"

	// ErrorTypeUnknown indicates an unclassified error (retryable).
	ErrorTypeUnknown ErrorType = "unknown"
)

// Retryable reports whether failures of this type may succeed on another attempt.
// Unknown failures are treated as transient.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorTypeValidation, ErrorTypeContent, ErrorTypeAuth,
		ErrorTypePermission, ErrorTypeQuota, ErrorTypeCanceled:
		return false
	default:
		return true
	}
}

// Sentinel errors shared by adapters and middleware.
var (
	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("provider service unavailable")

	// ErrRateLimitExceeded indicates a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnknownProvider indicates an unknown or unsupported provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrCircuitOpen indicates the call was rejected by an open circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrInvalidResponse indicates the provider returned a response that
	// could not be decoded or carried no content.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// RetryAfterProvider is implemented by errors carrying a server backoff hint.
type RetryAfterProvider interface {
	GetRetryAfter() time.Duration
}

// ProviderError captures structured error responses from model providers.
// Includes HTTP status codes, provider-specific error codes, and retry timing
// so retry code can honor server backoff hints.
type ProviderError struct {
	Provider   string    `json:"provider"`    // Provider name
	StatusCode int       `json:"status_code"` // HTTP status code, 0 for transport failures
	Message    string    `json:"message"`     // Error message
	Code       string    `json:"code"`        // Provider error code
	Type       ErrorType `json:"type"`        // Classified error type
	RetryAfter int       `json:"retry_after"` // Retry-After header value in seconds
	Cause      error     `json:"-"`           // Underlying transport error, if any
}

// Error returns formatted provider error with status code context.
func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap returns the underlying transport error.
func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the provider error warrants another attempt.
func (e *ProviderError) IsRetryable() bool { return e.Type.Retryable() }

// GetRetryAfter implements RetryAfterProvider.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError reports a rate limit, either enforced locally by the
// token-bucket middleware or returned by the provider.
type RateLimitError struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	RetryAfter int    `json:"retry_after"` // Seconds to wait before retry
	LocalLimit bool   `json:"local_limit"` // Whether this is a local limit
}

// Error returns formatted rate limit error with retry guidance.
func (e *RateLimitError) Error() string {
	scope := "remote"
	if e.LocalLimit {
		scope = "local"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded for %s, retry after %d seconds", scope, e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded for %s", scope, e.Provider)
}

// Is makes errors.Is(err, ErrRateLimitExceeded) hold for every RateLimitError.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExceeded }

// GetRetryAfter implements RetryAfterProvider.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// ValidationError reports a request that can never succeed as built, such as
// a frame with neither inline data nor a handle. It is never retried and is
// classified as ErrorTypeValidation.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Invalid value
	Message string `json:"message"` // Validation message
	Cause   error  `json:"-"`
}

// Error returns formatted validation error with field-specific context.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error { return e.Cause }

// NewValidationError wraps cause as a ValidationError on field.
func NewValidationError(field string, cause error) *ValidationError {
	return &ValidationError{Field: field, Message: cause.Error(), Cause: cause}
}

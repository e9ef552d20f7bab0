package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// TypeForStatus maps an HTTP status code from a provider to an ErrorType.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized:
		return ErrorTypeAuth
	case status == http.StatusForbidden:
		return ErrorTypePermission
	case status == http.StatusPaymentRequired:
		return ErrorTypeQuota
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case status >= http.StatusInternalServerError:
		return ErrorTypeProvider
	default:
		return ErrorTypeUnknown
	}
}

// Classify returns the ErrorType of err.
// Typed errors are inspected first, then context and network errors, and
// finally the message is matched against common provider phrasing.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}

	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Type
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return ErrorTypeValidation
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return ErrorTypeRateLimit
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Type
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, ErrRateLimitExceeded):
		return ErrorTypeRateLimit
	case errors.Is(err, ErrProviderUnavailable):
		return ErrorTypeProvider
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	return classifyMessage(err.Error())
}

// classifyMessage handles untyped errors by matching on the message text.
func classifyMessage(msg string) ErrorType {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "rate limit"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "api key"):
		return ErrorTypeAuth
	case strings.Contains(msg, "forbidden") || strings.Contains(msg, "permission"):
		return ErrorTypePermission
	case strings.Contains(msg, "quota"):
		return ErrorTypeQuota
	case strings.Contains(msg, "safety") || strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "content filter"):
		return ErrorTypeContent
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}

// IsNonRetryable reports whether err must be surfaced without another attempt.
func IsNonRetryable(err error) bool {
	return err != nil && !Classify(err).Retryable()
}

// IsRetryableError reports whether err warrants another attempt.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Retryable
	}
	return Classify(err).Retryable()
}

// RetryAfter extracts the server backoff hint from err, or 0.
func RetryAfter(err error) time.Duration {
	var p RetryAfterProvider
	if errors.As(err, &p) {
		return p.GetRetryAfter()
	}
	return 0
}

// ClassifyLLMError transforms a remote call error into a WorkflowError with
// retry guidance. Activities return it so Temporal sees a stable error type.
func ClassifyLLMError(err error) *WorkflowError {
	if err == nil {
		return nil
	}
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr
	}

	t := Classify(err)
	wf := &WorkflowError{
		Type:      t,
		Message:   err.Error(),
		Code:      strings.ToUpper(string(t)),
		Retryable: t.Retryable(),
		Cause:     err,
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		wf.Code = provErr.Code
		wf.Details = map[string]any{
			"provider":    provErr.Provider,
			"status_code": provErr.StatusCode,
		}
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		wf.Details = map[string]any{"field": valErr.Field}
	}
	if ra := RetryAfter(err); ra > 0 {
		if wf.Details == nil {
			wf.Details = map[string]any{}
		}
		wf.Details["retry_after_seconds"] = int(ra / time.Second)
	}
	return wf
}

package providers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
)

// Provider adapter errors.
var (
	ErrUnsupportedHandle = errors.New("media handle not supported by provider")
)

// classifyErrorType determines ErrorType from HTTP status and provider error codes.
// Provider error codes win over the status because several providers reuse
// 400 and 429 for unrelated conditions (quota vs. rate, safety vs. schema).
func classifyErrorType(statusCode int, errorCode string) llmerrors.ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "quota") || strings.Contains(lowerCode, "insufficient") ||
		strings.Contains(lowerCode, "billing"):
		return llmerrors.ErrorTypeQuota
	case strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "resource_exhausted"):
		return llmerrors.ErrorTypeRateLimit
	case strings.Contains(lowerCode, "overloaded") || strings.Contains(lowerCode, "unavailable"):
		return llmerrors.ErrorTypeProvider
	case strings.Contains(lowerCode, "timeout") || strings.Contains(lowerCode, "deadline"):
		return llmerrors.ErrorTypeTimeout
	case strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthenticated") ||
		strings.Contains(lowerCode, "api_key"):
		return llmerrors.ErrorTypeAuth
	case strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden"):
		return llmerrors.ErrorTypePermission
	case strings.Contains(lowerCode, "content_filter") || strings.Contains(lowerCode, "safety") ||
		strings.Contains(lowerCode, "content_policy"):
		return llmerrors.ErrorTypeContent
	}
	return llmerrors.TypeForStatus(statusCode)
}

// parseRetryAfter reads a Retry-After header as seconds or an HTTP date.
func parseRetryAfter(h http.Header) int {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return secs
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}

// providerError builds a ProviderError from an HTTP failure.
func providerError(provider string, resp *http.Response, message, code string) *llmerrors.ProviderError {
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &llmerrors.ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Type:       classifyErrorType(resp.StatusCode, code),
		RetryAfter: parseRetryAfter(resp.Header),
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

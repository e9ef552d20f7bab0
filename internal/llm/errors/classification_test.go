package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

// TestClassify verifies each failure shape maps to the expected type and
// retry decision, including when wrapped.
func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      llmerrors.ErrorType
		retryable bool
	}{
		{
			name:      "validation error",
			err:       &llmerrors.ValidationError{Field: "frame", Message: "missing"},
			want:      llmerrors.ErrorTypeValidation,
			retryable: false,
		},
		{
			name:      "wrapped validation error",
			err:       fmt.Errorf("agent technical: %w", &llmerrors.ValidationError{Message: "bad"}),
			want:      llmerrors.ErrorTypeValidation,
			retryable: false,
		},
		{
			name:      "provider 503",
			err:       &llmerrors.ProviderError{Provider: "openai", StatusCode: 503, Type: llmerrors.ErrorTypeProvider},
			want:      llmerrors.ErrorTypeProvider,
			retryable: true,
		},
		{
			name:      "provider auth",
			err:       &llmerrors.ProviderError{Provider: "anthropic", StatusCode: 401, Type: llmerrors.ErrorTypeAuth},
			want:      llmerrors.ErrorTypeAuth,
			retryable: false,
		},
		{
			name:      "local rate limit",
			err:       &llmerrors.RateLimitError{Provider: "google", LocalLimit: true},
			want:      llmerrors.ErrorTypeRateLimit,
			retryable: true,
		},
		{
			name:      "context canceled",
			err:       fmt.Errorf("call: %w", context.Canceled),
			want:      llmerrors.ErrorTypeCanceled,
			retryable: false,
		},
		{
			name:      "deadline exceeded",
			err:       context.DeadlineExceeded,
			want:      llmerrors.ErrorTypeTimeout,
			retryable: true,
		},
		{
			name:      "net timeout",
			err:       &net.OpError{Op: "dial", Err: timeoutErr{}},
			want:      llmerrors.ErrorTypeTimeout,
			retryable: true,
		},
		{
			name:      "quota message",
			err:       errors.New("You exceeded your current quota"),
			want:      llmerrors.ErrorTypeQuota,
			retryable: false,
		},
		{
			name:      "safety message",
			err:       errors.New("response blocked by safety settings"),
			want:      llmerrors.ErrorTypeContent,
			retryable: false,
		},
		{
			name:      "unknown is transient",
			err:       errors.New("something odd"),
			want:      llmerrors.ErrorTypeUnknown,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llmerrors.Classify(tt.err))
			assert.Equal(t, tt.retryable, llmerrors.IsRetryableError(tt.err))
			assert.Equal(t, !tt.retryable, llmerrors.IsNonRetryable(tt.err))
		})
	}
}

// TestClassify_Nil verifies nil errors are neither retryable nor fatal.
func TestClassify_Nil(t *testing.T) {
	assert.False(t, llmerrors.IsRetryableError(nil))
	assert.False(t, llmerrors.IsNonRetryable(nil))
	assert.Nil(t, llmerrors.ClassifyLLMError(nil))
}

// TestTypeForStatus covers the HTTP status mapping used by the adapters.
func TestTypeForStatus(t *testing.T) {
	cases := map[int]llmerrors.ErrorType{
		400: llmerrors.ErrorTypeValidation,
		401: llmerrors.ErrorTypeAuth,
		402: llmerrors.ErrorTypeQuota,
		403: llmerrors.ErrorTypePermission,
		408: llmerrors.ErrorTypeTimeout,
		429: llmerrors.ErrorTypeRateLimit,
		500: llmerrors.ErrorTypeProvider,
		529: llmerrors.ErrorTypeProvider,
		418: llmerrors.ErrorTypeUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, llmerrors.TypeForStatus(status), "status %d", status)
	}
}

// TestRetryAfter verifies server hints are read through wrapping.
func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &llmerrors.ProviderError{RetryAfter: 4, Type: llmerrors.ErrorTypeRateLimit})
	assert.Equal(t, 4*time.Second, llmerrors.RetryAfter(err))
	assert.Equal(t, 2*time.Second, llmerrors.RetryAfter(&llmerrors.RateLimitError{RetryAfter: 2}))
	assert.Zero(t, llmerrors.RetryAfter(errors.New("plain")))
}

// TestRateLimitError_IsSentinel verifies errors.Is against the sentinel.
func TestRateLimitError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("x: %w", &llmerrors.RateLimitError{Provider: "openai"})
	assert.ErrorIs(t, err, llmerrors.ErrRateLimitExceeded)
}

// TestClassifyLLMError verifies the workflow form keeps provider context.
func TestClassifyLLMError(t *testing.T) {
	cause := &llmerrors.ProviderError{
		Provider:   "openai",
		StatusCode: 429,
		Code:       "rate_limit_exceeded",
		Type:       llmerrors.ErrorTypeRateLimit,
		RetryAfter: 3,
	}
	wf := llmerrors.ClassifyLLMError(fmt.Errorf("analyze: %w", cause))
	require.NotNil(t, wf)
	assert.Equal(t, llmerrors.ErrorTypeRateLimit, wf.Type)
	assert.True(t, wf.Retryable)
	assert.Equal(t, "rate_limit_exceeded", wf.Code)
	assert.Equal(t, "openai", wf.Details["provider"])
	assert.Equal(t, 3, wf.Details["retry_after_seconds"])
	assert.ErrorIs(t, wf, cause)

	again := llmerrors.ClassifyLLMError(wf)
	assert.Same(t, wf, again)
}

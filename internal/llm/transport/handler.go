package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
)

// Handler sends one model call and returns the normalized response.
//
// Implementations must honor ctx cancellation and must not retain req after
// returning. Provider adapters, the router, the assembled client and every
// middleware-wrapped stage all implement Handler.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps a Handler with cross-cutting behavior such as logging,
// pricing, circuit breaking or rate limiting. Chain applies middlewares so the
// first one listed is the outermost.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided with the first middleware
// outermost, so Chain(h, a, b) runs a, then b, then h.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// ProviderAdapter abstracts provider-specific HTTP communication patterns.
// Each HTTP provider implements it to handle its own API format,
// authentication scheme and response structure.
type ProviderAdapter interface {
	// Build constructs the provider HTTP request from a normalized request.
	Build(ctx context.Context, req *Request) (*http.Request, error)

	// Parse extracts normalized data from the provider's HTTP response,
	// returning a *llmerrors.ProviderError for non-2xx statuses.
	Parse(httpResp *http.Response) (*Response, error)

	// Name returns the canonical provider identifier.
	Name() string
}

// NewHTTPHandler creates the core handler that sends requests built by
// adapter over client.
func NewHTTPHandler(client *http.Client, adapter ProviderAdapter) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpHandler{client: client, adapter: adapter}
}

type httpHandler struct {
	client  *http.Client
	adapter ProviderAdapter
}

// Handle implements Handler by making one HTTP round trip.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := h.adapter.Build(reqCtx, req)
	if err != nil {
		return nil, &llmerrors.ValidationError{
			Field:   "request",
			Message: fmt.Sprintf("build %s request: %v", h.adapter.Name(), err),
			Cause:   err,
		}
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", h.adapter.Name(), err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			slog.Default().Debug("failed to close response body",
				"provider", h.adapter.Name(), "error", closeErr)
		}
	}()

	resp, err := h.adapter.Parse(httpResp)
	if err != nil {
		return nil, err
	}
	resp.Usage.LatencyMs = latency.Milliseconds()
	if resp.Model == "" {
		resp.Model = req.Model
	}

	if err := ValidateResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ValidateResponse rejects responses that carry no usable content.
func ValidateResponse(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("nil response: %w", llmerrors.ErrInvalidResponse)
	}
	if strings.TrimSpace(resp.Content) == "" {
		if resp.FinishReason == FinishContentFilter {
			return &llmerrors.ProviderError{
				Message: "response blocked by content filter",
				Type:    llmerrors.ErrorTypeContent,
			}
		}
		return fmt.Errorf("empty content (finish_reason=%s): %w", resp.FinishReason, llmerrors.ErrInvalidResponse)
	}
	if resp.Usage.PromptTokens < 0 || resp.Usage.CompletionTokens < 0 {
		return fmt.Errorf("negative token counts: %w", llmerrors.ErrInvalidResponse)
	}
	return nil
}

// Package providers adapts the normalized transport.Request to the OpenAI,
// Anthropic and Google model APIs. OpenAI is served through the official
// openai-go SDK; Anthropic and Google are plain HTTP adapters run by
// transport.NewHTTPHandler. Every adapter supports both inline images and
// previously uploaded media handles.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

// Supported provider identifiers.
const (
	ProviderOpenAI    = configuration.ProviderOpenAI
	ProviderAnthropic = configuration.ProviderAnthropic
	ProviderGoogle    = configuration.ProviderGoogle
)

// Router dispatches each request to the handler registered for its provider.
// It is itself a transport.Handler so middleware can wrap the whole set.
type Router struct {
	handlers map[string]transport.Handler
}

// NewRouter creates a router with one handler per configured provider.
// Providers without an API key are still registered; their calls fail with
// an authentication error from the remote side.
func NewRouter(providers map[string]configuration.ProviderConfig, client *http.Client) (*Router, error) {
	r := &Router{handlers: make(map[string]transport.Handler, len(providers))}
	for name, cfg := range providers {
		switch name {
		case ProviderOpenAI:
			r.handlers[name] = NewOpenAIProvider(cfg, client)
		case ProviderAnthropic:
			r.handlers[name] = transport.NewHTTPHandler(client, NewAnthropicAdapter(cfg))
		case ProviderGoogle:
			r.handlers[name] = transport.NewHTTPHandler(client, NewGoogleAdapter(cfg))
		default:
			return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, name)
		}
	}
	return r, nil
}

// Register adds or replaces the handler for provider.
func (r *Router) Register(provider string, h transport.Handler) {
	if r.handlers == nil {
		r.handlers = make(map[string]transport.Handler)
	}
	r.handlers[provider] = h
}

// Providers lists registered provider identifiers in sorted order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle implements transport.Handler.
func (r *Router) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	h, ok := r.handlers[req.Provider]
	if !ok {
		return nil, &llmerrors.ValidationError{
			Field:   "provider",
			Value:   req.Provider,
			Message: llmerrors.ErrUnknownProvider.Error(),
			Cause:   llmerrors.ErrUnknownProvider,
		}
	}
	return h.Handle(ctx, req)
}

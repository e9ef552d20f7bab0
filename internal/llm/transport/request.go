// Package transport defines the normalized request/response model for remote
// model calls and the Handler/Middleware pipeline every call flows through.
package transport

import (
	"net/http"
	"time"

	"github.com/ahrav/go-fightlens/internal/domain"
)

// OperationType differentiates the two kinds of remote calls.
// Affects rate limiting keys, logging labels, cost attribution and timeouts.
type OperationType string

const (
	// OpAnalysis is a vision call made by one specialist agent.
	OpAnalysis OperationType = "analysis"

	// OpSynthesis is the text-only consolidation call.
	OpSynthesis OperationType = "synthesis"
)

// FinishReason explains why a provider stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishUnknown       FinishReason = "unknown"
)

// Request is a provider-neutral description of one model call.
//
// Vision calls carry Frame; synthesis calls leave it nil. RequestID and Label
// flow into logs and cost entries so one analysis can be traced across every
// call it made. Handlers treat Request as read-only.
type Request struct {
	// Operation type affects routing, logging and rate limiting.
	Operation OperationType `json:"operation"`

	// Provider identifies which model service to use.
	Provider string `json:"provider"` // "openai"|"anthropic"|"google"

	// Model specifies the exact model version to use.
	Model string `json:"model"`

	// RequestID correlates the call with its AnalysisRequest.
	RequestID string `json:"request_id"`

	// Label names the caller, e.g. the specialist agent or "synthesis".
	Label string `json:"label"`

	// SystemPrompt provides instructions to the model.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Prompt is the user turn.
	Prompt string `json:"prompt"`

	// Frame is the image for vision calls; nil for text-only calls.
	Frame *domain.Frame `json:"frame,omitempty"`

	// Generation parameters control model behavior.
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	// Timeout bounds a single attempt when positive.
	Timeout time.Duration `json:"timeout"`
}

// Response is the normalized output of any provider.
type Response struct {
	// Content is the generated text.
	Content string `json:"content"`

	// FinishReason indicates why generation stopped.
	FinishReason FinishReason `json:"finish_reason"`

	// Model is the model that actually served the call.
	Model string `json:"model"`

	// ProviderRequestIDs enables cross-system correlation.
	ProviderRequestIDs []string `json:"provider_request_ids,omitempty"`

	// Usage tracks resource consumption.
	Usage NormalizedUsage `json:"usage"`

	// EstimatedCost is filled by the pricing middleware.
	EstimatedCost domain.MilliCents `json:"estimated_cost_milli_cents"`

	// Headers preserves raw response headers for debugging.
	Headers http.Header `json:"-"`
}

// NormalizedUsage provides consistent usage metrics across all providers.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}

// Record converts the usage to the domain accounting type.
func (u NormalizedUsage) Record() domain.UsageRecord {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return domain.UsageRecord{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      total,
	}
}

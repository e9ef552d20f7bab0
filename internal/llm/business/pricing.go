// Package business holds the model price table and cost estimation for
// remote calls.
package business

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

// TokensPerMillion is the unit prices are quoted in.
const TokensPerMillion = 1_000_000

// Prices in milli-cents per million tokens.
const (
	// GPT-4o: $2.50 input, $10.00 output.
	GPT4oInputCost  = 250_000
	GPT4oOutputCost = 1_000_000

	// GPT-4o mini: $0.15 input, $0.60 output.
	GPT4oMiniInputCost  = 15_000
	GPT4oMiniOutputCost = 60_000

	// Claude 3.5 Sonnet: $3.00 input, $15.00 output.
	Claude35SonnetInputCost  = 300_000
	Claude35SonnetOutputCost = 1_500_000

	// Claude 3.5 Haiku: $0.80 input, $4.00 output.
	Claude35HaikuInputCost  = 80_000
	Claude35HaikuOutputCost = 400_000

	// Gemini 1.5 Pro: $1.25 input, $5.00 output.
	Gemini15ProInputCost  = 125_000
	Gemini15ProOutputCost = 500_000

	// Gemini 1.5 Flash: $0.075 input, $0.30 output.
	Gemini15FlashInputCost  = 7_500
	Gemini15FlashOutputCost = 30_000
)

// ErrInvalidPrice is returned when a price entry is malformed.
var ErrInvalidPrice = errors.New("invalid price entry")

// Price is the per-million-token rate of one model, input and output
// priced separately.
type Price struct {
	Model            string            `json:"model" yaml:"model" mapstructure:"model"`
	InputPerMillion  domain.MilliCents `json:"input_per_million" yaml:"input_per_million" mapstructure:"input_per_million"`
	OutputPerMillion domain.MilliCents `json:"output_per_million" yaml:"output_per_million" mapstructure:"output_per_million"`
}

// Calculate computes the cost of usage in milli-cents.
//
// Each side is computed with integer arithmetic and rounded half up to the
// nearest milli-cent. Zero usage costs zero.
func (p Price) Calculate(u domain.UsageRecord) domain.MilliCents {
	return perMillion(u.PromptTokens, p.InputPerMillion) + perMillion(u.CompletionTokens, p.OutputPerMillion)
}

func perMillion(tokens int64, rate domain.MilliCents) domain.MilliCents {
	if tokens <= 0 || rate <= 0 {
		return 0
	}
	return domain.MilliCents((tokens*int64(rate) + TokensPerMillion/2) / TokensPerMillion)
}

// PriceTable maps model ids to prices. Lookups fall back to the longest
// registered prefix so dated snapshots ("gpt-4o-2024-08-06") price like
// their family. Unknown models cost zero.
type PriceTable struct {
	mu      sync.RWMutex
	entries map[string]Price
}

// NewPriceTable creates a table from the given entries.
func NewPriceTable(entries ...Price) (*PriceTable, error) {
	t := &PriceTable{entries: make(map[string]Price, len(entries))}
	for _, e := range entries {
		if err := t.Set(e); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// DefaultPriceTable returns the built-in prices for the supported models.
func DefaultPriceTable() *PriceTable {
	t, _ := NewPriceTable(
		Price{Model: "gpt-4o", InputPerMillion: GPT4oInputCost, OutputPerMillion: GPT4oOutputCost},
		Price{Model: "gpt-4o-mini", InputPerMillion: GPT4oMiniInputCost, OutputPerMillion: GPT4oMiniOutputCost},
		Price{Model: "claude-3-5-sonnet", InputPerMillion: Claude35SonnetInputCost, OutputPerMillion: Claude35SonnetOutputCost},
		Price{Model: "claude-3-5-haiku", InputPerMillion: Claude35HaikuInputCost, OutputPerMillion: Claude35HaikuOutputCost},
		Price{Model: "gemini-1.5-pro", InputPerMillion: Gemini15ProInputCost, OutputPerMillion: Gemini15ProOutputCost},
		Price{Model: "gemini-1.5-flash", InputPerMillion: Gemini15FlashInputCost, OutputPerMillion: Gemini15FlashOutputCost},
	)
	return t
}

// Set adds or replaces a price.
func (t *PriceTable) Set(p Price) error {
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidPrice)
	}
	if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
		return fmt.Errorf("%w: negative rate for %s", ErrInvalidPrice, p.Model)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[p.Model] = p
	return nil
}

// Lookup returns the price for model, matching exactly first and then by
// the longest registered prefix.
func (t *PriceTable) Lookup(model string) (Price, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.entries[model]; ok {
		return p, true
	}

	var best Price
	found := false
	for id, p := range t.entries {
		if strings.HasPrefix(model, id) && len(id) > len(best.Model) {
			best, found = p, true
		}
	}
	return best, found
}

// Cost estimates the cost of usage against model. Unknown models cost zero.
func (t *PriceTable) Cost(model string, u domain.UsageRecord) domain.MilliCents {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return p.Calculate(u)
}

// Models lists the priced model ids in sorted order.
func (t *PriceTable) Models() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.entries))
	for id := range t.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NewPricingMiddleware sets Response.EstimatedCost on every successful call.
// The served model reported by the provider is priced when present.
func NewPricingMiddleware(table *PriceTable) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			resp, err := next.Handle(ctx, req)
			if err != nil || resp == nil {
				return resp, err
			}

			model := resp.Model
			if model == "" {
				model = req.Model
			}
			resp.EstimatedCost = table.Cost(model, resp.Usage.Record())
			return resp, nil
		})
	}
}

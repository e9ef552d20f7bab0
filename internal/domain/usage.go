package domain

// UsageRecord is the token consumption attributable to one model call.
type UsageRecord struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Add returns the element-wise sum of two records.
// A missing total is derived from the prompt and completion counts.
func (u UsageRecord) Add(o UsageRecord) UsageRecord {
	return UsageRecord{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.total() + o.total(),
	}
}

// IsZero reports whether the record carries no usage.
func (u UsageRecord) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

func (u UsageRecord) total() int64 {
	if u.TotalTokens == 0 {
		return u.PromptTokens + u.CompletionTokens
	}
	return u.TotalTokens
}

// UsageBucket accumulates usage and estimated cost for one class of calls.
type UsageBucket struct {
	Calls int         `json:"calls"`
	Usage UsageRecord `json:"usage"`
	Cost  MilliCents  `json:"cost_milli_cents"`
}

// Record folds one call into the bucket.
func (b *UsageBucket) Record(u UsageRecord, cost MilliCents) {
	b.Calls++
	b.Usage = b.Usage.Add(u)
	b.Cost = b.Cost.Add(cost)
}

// UsageAggregate sums usage across every remote call made for one request.
// Specialist calls and the synthesis call are kept in separate buckets.
type UsageAggregate struct {
	Specialists UsageBucket `json:"specialists"`
	Synthesis   UsageBucket `json:"synthesis"`
}

// Total returns the combined usage of both buckets.
func (a UsageAggregate) Total() UsageRecord {
	return a.Specialists.Usage.Add(a.Synthesis.Usage)
}

// TotalCost returns the combined estimated cost of both buckets.
func (a UsageAggregate) TotalCost() MilliCents {
	return a.Specialists.Cost.Add(a.Synthesis.Cost)
}

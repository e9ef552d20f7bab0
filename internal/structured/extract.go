// Package structured recovers structured results from free-form model output.
//
// Generative models asked for JSON routinely wrap it in prose and markdown,
// leave comments and trailing commas behind, forget to quote keys, use single
// quotes, or stop mid-object when they run out of tokens. Extractor repairs what it can and
// otherwise returns a deterministic fallback; it never fails. Every
// distribution it finds is passed through Normalize so callers can rely on
// percentage totals.
package structured

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/ahrav/go-fightlens/internal/domain"
)

const (
	// maxCandidates bounds how many '{' positions are tried before falling
	// back.
	maxCandidates = 64

	// DefaultSummary is used when no summary can be recovered at all.
	DefaultSummary = "Analysis completed, but the model output could not be fully parsed."
)

var (
	fenceMarker    = regexp.MustCompile("```[a-zA-Z0-9_-]*")
	summaryPattern = regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Result is the structured content recovered from one model response.
type Result struct {
	// Data is the decoded top-level object. Distributions inside it are
	// already normalized in place.
	Data map[string]any

	// Distributions indexes every distribution found in Data by dotted path
	// (e.g. "position_distribution" or "guard.distribution").
	Distributions map[string]domain.Distribution

	// Summary is Data["summary"] when present, or the recovered/default
	// summary on fallback.
	Summary string

	// Degraded is true when Data is the fallback structure.
	Degraded bool
}

// DiagnosticSink receives raw text that could not be parsed.
// Implementations must not block the caller.
type DiagnosticSink interface {
	Dump(label, raw string)
}

// Extractor recovers structured results from raw text.
type Extractor struct {
	fallback map[string]domain.Distribution
	sink     DiagnosticSink
	label    string
	logger   *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithFallbackDistributions overrides the placeholder distributions returned
// when extraction fails.
func WithFallbackDistributions(d map[string]domain.Distribution) Option {
	return func(e *Extractor) {
		if len(d) > 0 {
			e.fallback = d
		}
	}
}

// WithDiagnosticSink sets where unparseable output is dumped.
func WithDiagnosticSink(s DiagnosticSink) Option {
	return func(e *Extractor) { e.sink = s }
}

// WithLabel names the extractor's caller in diagnostic dumps.
func WithLabel(label string) Option {
	return func(e *Extractor) { e.label = label }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// DefaultFallbackDistributions is the placeholder set used on extraction failure.
func DefaultFallbackDistributions() map[string]domain.Distribution {
	return map[string]domain.Distribution{
		"position_distribution": {
			{Label: "Guard", Value: 34},
			{Label: "Top", Value: 33},
			{Label: "Standing", Value: 33},
		},
		"outcome_distribution": {
			{Label: "Undetermined", Value: 100},
		},
	}
}

// NewExtractor creates an extractor with the default placeholder set and no
// diagnostic sink.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		fallback: DefaultFallbackDistributions(),
		label:    "extract",
		logger:   slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract recovers the first JSON object in raw.
// ok is false when the fallback structure was returned. Extract never panics.
func (e *Extractor) Extract(raw string) (res Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extractor panic recovered", "panic", r)
			res, ok = e.fallbackResult(raw, raw), false
		}
	}()

	cleaned := cleanMarkup(raw)

	failed := ""
	rest := cleaned
	for range maxCandidates {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		repaired := repairSyntax(rest[start:])
		obj, found, _ := matchObject(repaired)
		if !found {
			break
		}

		data, err := decodeObject(obj)
		if err == nil {
			return e.buildResult(data), true
		}
		if failed == "" {
			failed = obj
		}

		// A stray '{' in prose never balances, so the next candidate starts
		// at the following brace rather than past the failed span.
		rest = rest[start+1:]
	}

	if failed == "" {
		failed = raw
	}
	if e.sink != nil {
		e.sink.Dump(e.label, failed)
	}
	e.logger.Debug("structured output unparseable, using fallback", "raw_length", len(raw))
	return e.fallbackResult(raw, failed), false
}

// decodeObject parses obj into a map. Numbers decode as float64.
func decodeObject(obj string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, &json.UnmarshalTypeError{Value: "null", Type: nil}
	}
	return data, nil
}

func (e *Extractor) buildResult(data map[string]any) Result {
	dists := make(map[string]domain.Distribution)
	normalizeTree(data, "", dists)

	summary, _ := data["summary"].(string)
	return Result{
		Data:          data,
		Distributions: dists,
		Summary:       strings.TrimSpace(summary),
	}
}

// fallbackResult builds the deterministic fallback structure.
func (e *Extractor) fallbackResult(raw, failed string) Result {
	summary := recoverSummary(failed)
	if summary == "" && failed != raw {
		summary = recoverSummary(raw)
	}
	if summary == "" {
		summary = DefaultSummary
	}

	dists := make(map[string]domain.Distribution, len(e.fallback))
	data := map[string]any{"summary": summary, "degraded": true}
	for name, d := range e.fallback {
		n := Normalize(d)
		dists[name] = n
		data[name] = distributionToAny(n)
	}

	return Result{
		Data:          data,
		Distributions: dists,
		Summary:       summary,
		Degraded:      true,
	}
}

// recoverSummary pulls a "summary" string out of text that failed to parse.
func recoverSummary(s string) string {
	m := summaryPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &out); err != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(out)
}

// normalizeTree walks decoded JSON, normalizes every distribution-shaped
// array in place and records it in dists under its dotted path.
func normalizeTree(node map[string]any, prefix string, dists map[string]domain.Distribution) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := node[k].(type) {
		case []any:
			if d, ok := AsDistribution(v); ok {
				n := Normalize(d)
				dists[path] = n
				node[k] = distributionToAny(n)
			}
		case map[string]any:
			normalizeTree(v, path, dists)
		}
	}
}

// AsDistribution interprets a decoded JSON array as a distribution.
// Every element must be an object with a string label (label|name|category)
// and a numeric value (value|percentage|percent). Empty arrays are not
// distributions.
func AsDistribution(arr []any) (domain.Distribution, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	out := make(domain.Distribution, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		label, ok := firstString(obj, "label", "name", "category")
		if !ok {
			return nil, false
		}
		value, ok := firstNumber(obj, "value", "percentage", "percent")
		if !ok {
			return nil, false
		}
		out = append(out, domain.DistributionItem{Label: label, Value: value})
	}
	return out, true
}

// FindDistributions returns every distribution inside data without
// modifying it.
func FindDistributions(data map[string]any) map[string]domain.Distribution {
	dists := make(map[string]domain.Distribution)
	normalizeTree(domain.CloneData(data), "", dists)
	return dists
}

func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

func firstNumber(obj map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := obj[k].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

// distributionToAny converts a distribution back to decoded-JSON form so it
// can live inside a data payload.
func distributionToAny(d domain.Distribution) []any {
	out := make([]any, len(d))
	for i, it := range d {
		out[i] = map[string]any{"label": it.Label, "value": it.Value}
	}
	return out
}

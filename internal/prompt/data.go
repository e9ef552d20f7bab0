package prompt

// AnalysisData fills a specialist template.
type AnalysisData struct {
	Subject       string
	Discriminator string
	RuleSet       RuleSet
	PriorResult   string

	// FocusAreas are the specialist's declared concerns.
	FocusAreas []string

	// CallerFocus is free text from the request.
	CallerFocus string

	// Shape is the JSON object the model must return, pre-rendered.
	Shape string
}

// AgentReport is one specialist's result as presented to synthesis.
type AgentReport struct {
	Name       string
	Confidence float64
	Degraded   bool
	Error      string
	Insights   []string

	// Payload is the result data rendered as JSON.
	Payload string
}

// SynthesisData fills the synthesis template.
type SynthesisData struct {
	Subject       string
	Discriminator string
	RuleSet       RuleSet
	PriorResult   string
	CallerFocus   string
	Agents        []AgentReport
}

// Package workflow runs analysis requests as Temporal workflows.
//
// AnalysisWorkflow is the durable variant of orchestrator.Orchestrate. Each
// specialist runs as its own activity so a worker crash only repeats the
// agents that had not finished, then a single Consolidate activity applies
// the quorum rule, synthesizes or falls back, and prices the request. The
// agents, the synthesizer and the fallback merge are the same code the
// in-process orchestrator uses.
//
// Workflow code uses workflow-safe APIs only: workflow.Now for timestamps
// and activities for every remote call.
package workflow

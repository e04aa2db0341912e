// Package pipeline runs an ordered chain of capabilities where each step's
// final text becomes the next step's entire input.
//
// An Executor wraps one core.Capability and relays only text across the step
// boundary; tool calls, tool results and streamed fragments are reported on
// the run's Scope instead. Build assembles executors into a linear Pipeline
// and a Runner drives it once, either to a batch core.WorkflowResponse or as a
// live stream of core.RunUpdate values.
//
// Step failures are fail-open: the failing step's output becomes an
// explanatory error text and later steps still run. Only infrastructure
// failures and cancellation end a run early.
package pipeline

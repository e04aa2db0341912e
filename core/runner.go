package core

import "context"

// Runner executes one pipeline run for an input text.
//
// Semantics & Guarantees:
//   - Ordering: updates are delivered in the order they were produced; no
//     update of step i+1 precedes the StepCompleted of step i.
//   - Channel Lifecycle: the updates channel is closed after the run ends
//     (success, failure or cancellation). The error channel carries at most
//     one terminal error then closes (buffered size 1).
//   - Step failures never surface as errors; only infrastructure failures and
//     cancellation do.
//   - A Runner serves exactly one run; later calls fail.
type Runner interface {
	// Run executes the pipeline to completion and returns the aggregated response.
	Run(ctx context.Context, input string) (*WorkflowResponse, error)

	// Stream executes the pipeline and yields updates live. Cancelling ctx stops
	// the producer at its next suspension point.
	Stream(ctx context.Context, input string) (<-chan RunUpdate, <-chan error)
}

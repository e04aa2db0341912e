// Package core provides the foundational domain types and interfaces shared by
// the FactoryOps packages. It defines the core abstractions for:
//
//   - Capabilities (opaque pipeline participants, managed or peer)
//   - Events (progress emitted by a capability while it runs)
//   - RunUpdates (the closed set of pipeline-level progress variants)
//   - Step results and the batch WorkflowResponse
//   - Resolution errors raised while assembling a pipeline
//
// The package keeps implementation concerns (model providers, transport,
// persistence, HTTP) out of scope, exposing small interfaces so capabilities
// can be backed by anything that streams events.
package core

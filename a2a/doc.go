// Package a2a connects pipelines to peer agents over the agent-to-agent
// protocol: JSON-RPC 2.0 over HTTP with optional SSE streaming.
//
// CardResolver fetches a peer's agent card and returns a RemoteAgent that
// satisfies core.Capability. Server exposes any core.Capability as a peer,
// so managed agents can be hosted for other orchestrators.
package a2a

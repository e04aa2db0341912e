// Package capability hosts managed agents: model-backed capabilities that run
// a tool-calling loop in process and are resolved by name from a Registry.
//
// A ManagedAgent satisfies core.Capability. Each Run starts from a fresh
// conversation holding only the input text, streams partial text while the
// model generates, executes requested tools in order and finishes with one
// complete assistant message.
package capability

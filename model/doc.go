// Package model defines the provider-agnostic language model abstraction
// used by managed agents.
//
// A Model streams Responses for a Request. Tool calls are normalized to
// ToolCall values regardless of vendor. Provider adapters live in the
// openai and anthropic subpackages; MockModel replays scripted turns for
// tests, demos and the "mock" provider.
package model

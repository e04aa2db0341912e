package testutil

import (
	"github.com/hupe1980/factoryops/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Author("AgentX").AssistantText("hello").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	author        string
	id            string
	role          string
	textParts     []string
	funcCalls     []core.FunctionCall
	funcResponses []core.FunctionResponse
	partial       bool
	customParts   []core.Part
}

// NewEventBuilder creates a builder with default author "agent".
func NewEventBuilder() *EventBuilder { return &EventBuilder{author: "agent"} }

// Author sets the author name for the event (chainable).
func (b *EventBuilder) Author(a string) *EventBuilder { b.author = a; return b }

// ID overrides the auto-generated event ID (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Partial marks the event as a streaming fragment (chainable).
func (b *EventBuilder) Partial(p bool) *EventBuilder { b.partial = p; return b }

// UserText appends a user role text part and sets role to user (chainable).
func (b *EventBuilder) UserText(t string) *EventBuilder {
	b.role = core.RoleUser
	b.textParts = append(b.textParts, t)
	return b
}

// AssistantText appends an assistant role text part and sets role to assistant (chainable).
func (b *EventBuilder) AssistantText(t string) *EventBuilder {
	b.role = core.RoleAssistant
	b.textParts = append(b.textParts, t)
	return b
}

// AddPart appends a custom content part (chainable).
func (b *EventBuilder) AddPart(p core.Part) *EventBuilder {
	b.customParts = append(b.customParts, p)
	return b
}

// FunctionCall adds a function call part (chainable). id may be empty.
func (b *EventBuilder) FunctionCall(id, name, args string) *EventBuilder {
	b.role = core.RoleAssistant
	b.funcCalls = append(b.funcCalls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// FunctionResponse adds a function response part (chainable). id and name may be empty.
func (b *EventBuilder) FunctionResponse(id, name string, result any, err error) *EventBuilder {
	b.role = core.RoleTool
	fr := core.FunctionResponse{ID: id, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	b.funcResponses = append(b.funcResponses, fr)
	return b
}

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.author)
	if b.id != "" {
		ev.ID = b.id
	}
	ev.Partial = b.partial

	parts := make([]core.Part, 0, len(b.textParts)+len(b.funcCalls)+len(b.funcResponses)+len(b.customParts))
	for _, t := range b.textParts {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.funcCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}
	for _, fr := range b.funcResponses {
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})
	}
	parts = append(parts, b.customParts...)

	if len(parts) > 0 {
		role := b.role
		if role == "" {
			role = core.RoleAssistant
		}
		ev.Content = &core.Content{Role: role, Parts: parts}
	}
	return ev
}

// Text returns a complete assistant message event.
func Text(author, text string) core.Event {
	return NewEventBuilder().Author(author).AssistantText(text).Build()
}

// Fragment returns a partial assistant text event.
func Fragment(author, text string) core.Event {
	return NewEventBuilder().Author(author).AssistantText(text).Partial(true).Build()
}

// Call returns a function call event.
func Call(author, id, name, args string) core.Event {
	return NewEventBuilder().Author(author).FunctionCall(id, name, args).Build()
}

// Result returns a function response event.
func Result(author, id, name string, result any) core.Event {
	return NewEventBuilder().Author(author).FunctionResponse(id, name, result, nil).Build()
}

package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is one unit of progress emitted by a Capability while it runs: a
// streamed text fragment, an assistant message, a tool invocation or a tool
// result. After emission it should be treated as immutable.
//
// Content may be nil for control-only events. Timestamp is informational and
// never used for ordering; consumers rely on channel order.
type Event struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Content   *Content  `json:"content,omitempty"`
	Partial   bool      `json:"partial,omitempty"`
}

// NewEvent creates a bare event authored by 'author'.
// Prefer helper constructors for common semantic categories (message, function call/response).
func NewEvent(author string) Event {
	return Event{
		ID:        NewID(),
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent creates a complete assistant message event with a single text part.
func NewMessageEvent(author, message string) Event {
	e := NewEvent(author)
	e.Content = NewTextContent(RoleAssistant, message)
	return e
}

// NewPartialTextEvent creates a streamed assistant text fragment.
func NewPartialTextEvent(author, text string) Event {
	e := NewMessageEvent(author, text)
	e.Partial = true
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named function/tool.
func NewFunctionCallEvent(author string, calls ...FunctionCall) Event {
	e := NewEvent(author)
	parts := make([]Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, FunctionCallPart{FunctionCall: c})
	}
	e.Content = &Content{Role: RoleAssistant, Parts: parts}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a tool/function invocation.
// If err is non-nil its message is copied into the response.Error field.
func NewFunctionResponseEvent(author, id, functionName string, result any, err error) Event {
	e := NewEvent(author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewID generates a new unique identifier for events, runs and messages.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment that will be
// followed by additional events composing the final assistant turn.
func (e Event) IsPartial() bool { return e.Partial }

// Text returns the concatenated text parts of the event content.
func (e Event) Text() string { return e.Content.Text() }

// IsAssistantText reports whether the event carries assistant-authored text.
func (e Event) IsAssistantText() bool {
	return e.Content != nil && e.Content.Role == RoleAssistant && e.Text() != ""
}

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts contained within the
// event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse reports whether the event completes an assistant turn: no
// pending tool calls/responses and not partial.
func (e Event) IsFinalResponse() bool {
	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial()
}

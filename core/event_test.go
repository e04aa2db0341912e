package core

import (
	"errors"
	"testing"
)

// Event constructor & helper method tests
func TestEvent_ConstructorsAndMethods(t *testing.T) {
	e := NewEvent("authorA")
	if e.Author != "authorA" || e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("NewEvent did not initialize fields correctly: %+v", e)
	}

	msg := NewMessageEvent("agent1", "hello world")
	if msg.Content == nil || msg.Content.Role != RoleAssistant || len(msg.Content.Parts) != 1 {
		t.Fatalf("NewMessageEvent malformed: %+v", msg)
	}
	if msg.Text() != "hello world" || !msg.IsAssistantText() {
		t.Fatalf("unexpected text: %q", msg.Text())
	}

	partial := NewPartialTextEvent("agent1", "hel")
	if !partial.IsPartial() || partial.IsFinalResponse() {
		t.Fatalf("partial event flags wrong: %+v", partial)
	}

	fCall := NewFunctionCallEvent("agent2", FunctionCall{ID: "c1", Name: "do_stuff", Arguments: "test"})
	calls := fCall.GetFunctionCalls()
	if len(calls) != 1 || calls[0].Name != "do_stuff" || calls[0].Arguments != "test" {
		t.Fatalf("GetFunctionCalls extraction failed: %+v", calls)
	}

	fRespOK := NewFunctionResponseEvent("agent2", "call-1", "do_stuff", 42, nil)
	resps := fRespOK.GetFunctionResponses()
	if len(resps) != 1 || resps[0].Response.(int) != 42 || resps[0].Error != "" {
		t.Fatalf("Function response success extraction failed: %+v", resps)
	}

	fRespErr := NewFunctionResponseEvent("agent2", "call-2", "do_stuff", nil, errors.New("boom"))
	resps = fRespErr.GetFunctionResponses()
	if resps[0].Error != "boom" {
		t.Fatalf("Expected error message in function response: %+v", resps[0])
	}
}

func TestEvent_IsFinalResponseLogic(t *testing.T) {
	if !NewMessageEvent("agent", "done").IsFinalResponse() {
		t.Error("Expected message event to be final")
	}
	if NewFunctionCallEvent("agent", FunctionCall{Name: "f"}).IsFinalResponse() {
		t.Error("Event with function call should not be final")
	}
	if NewFunctionResponseEvent("agent", "", "f", "ok", nil).IsFinalResponse() {
		t.Error("Event with function response should not be final")
	}
}

func TestEvent_TextIgnoresNonTextParts(t *testing.T) {
	e := NewEvent("agent")
	e.Content = &Content{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "a"},
		DataPart{Data: map[string]any{"x": 1}},
		TextPart{Text: "b"},
	}}
	if got := e.Text(); got != "ab" {
		t.Fatalf("Text() = %q, want %q", got, "ab")
	}
	if (Event{}).Text() != "" {
		t.Fatal("nil content should yield empty text")
	}
}

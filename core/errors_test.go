package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestResolutionError_Is(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("member 3: %w", NewResolutionError(Unreachable, "http://peer", cause))

	if !errors.Is(err, ErrUnreachable) {
		t.Fatal("expected ErrUnreachable")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("did not expect ErrNotFound")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected underlying cause to be reachable")
	}

	var re *ResolutionError
	if !errors.As(err, &re) || re.Reason != Unreachable || re.Member != "http://peer" {
		t.Fatalf("unexpected resolution error: %+v", re)
	}
}

func TestResolutionError_Message(t *testing.T) {
	err := NewResolutionError(NotFound, "AgentX", nil)
	if got := err.Error(); got != "resolve AgentX: not found" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestStepResult_CloneIsDeep(t *testing.T) {
	r := "42"
	s := StepResult{
		AgentName:    "AgentX",
		ToolCalls:    []ToolCallRecord{{ToolName: "lookup", Result: &r}},
		FinalMessage: StringPtr("done"),
	}
	c := s.Clone()
	*s.ToolCalls[0].Result = "changed"
	*s.FinalMessage = "changed"
	s.ToolCalls[0].ToolName = "other"

	if *c.ToolCalls[0].Result != "42" || *c.FinalMessage != "done" || c.ToolCalls[0].ToolName != "lookup" {
		t.Fatalf("clone shares state with original: %+v", c)
	}
}

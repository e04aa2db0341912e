package transcode

import (
	"strings"

	"github.com/hupe1980/factoryops/core"
)

// Transcoder turns the run updates of one run into wire events. It keeps at
// most one open step, so agent_complete for a step is always written before
// the next agent_started. Output depends only on the input sequence.
//
// A Transcoder is not safe for concurrent use.
type Transcoder struct {
	open *openStep
}

type openStep struct {
	result core.StepResult
	text   strings.Builder
}

// New returns a transcoder for a fresh run.
func New() *Transcoder { return &Transcoder{} }

// Translate maps one update to the wire events it produces, in order.
func (t *Transcoder) Translate(u core.RunUpdate) []Event {
	switch u := u.(type) {
	case core.StepStarted:
		events := t.flush()
		t.open = newOpenStep(u.ExecutorID)
		return append(events, Event{Name: EventAgentStarted, Data: AgentStarted{AgentName: u.ExecutorID}})

	case core.ToolCall:
		events := t.ensure(u.ExecutorID)
		t.open.result.ToolCalls = append(t.open.result.ToolCalls, core.ToolCallRecord{
			CallID:    u.CallID,
			ToolName:  u.ToolName,
			Arguments: u.Arguments,
		})
		return append(events, Event{Name: EventToolCall, Data: ToolCall{
			AgentName: u.ExecutorID,
			ToolName:  u.ToolName,
			Arguments: u.Arguments,
		}})

	case core.ToolResult:
		events := t.ensure(u.ExecutorID)
		idx := core.MatchToolResult(t.open.result.ToolCalls, u.CallID, u.ToolName)
		if idx < 0 {
			// Never write a tool_result without its tool_call.
			return events
		}
		rec := &t.open.result.ToolCalls[idx]
		result := u.Result
		rec.Result = &result
		return append(events, Event{Name: EventToolResult, Data: ToolResult{
			AgentName: u.ExecutorID,
			ToolName:  rec.ToolName,
			Result:    u.Result,
		}})

	case core.TextFragment:
		events := t.ensure(u.ExecutorID)
		t.open.text.WriteString(u.Text)
		return append(events, Event{Name: EventTextToken, Data: TextToken{AgentName: u.ExecutorID, Text: u.Text}})

	case core.StepCompleted:
		events := t.ensure(u.ExecutorID)
		t.open = nil
		return append(events, complete(u.ExecutorID, u.Result))

	case core.PipelineOutput:
		events := t.flush()
		return append(events, Event{Name: EventWorkflowComplete, Data: WorkflowComplete{FinalMessage: u.FinalText}})

	default:
		return nil
	}
}

// Error returns the event reporting a run failure.
func (t *Transcoder) Error(err error) Event {
	return Event{Name: EventError, Data: Error{Message: err.Error()}}
}

// Done returns the terminal event of every stream.
func (t *Transcoder) Done() Event {
	return Event{Name: EventDone, Data: Done{}}
}

func newOpenStep(name string) *openStep {
	return &openStep{result: core.StepResult{AgentName: name, ToolCalls: []core.ToolCallRecord{}}}
}

// ensure opens a step for executorID when updates arrive without a preceding
// StepStarted, flushing any other open step first.
func (t *Transcoder) ensure(executorID string) []Event {
	if t.open != nil && t.open.result.AgentName == executorID {
		return nil
	}
	events := t.flush()
	t.open = newOpenStep(executorID)
	return append(events, Event{Name: EventAgentStarted, Data: AgentStarted{AgentName: executorID}})
}

// flush closes a step that ended without StepCompleted as agent_complete,
// built from the updates seen so far.
func (t *Transcoder) flush() []Event {
	if t.open == nil {
		return nil
	}
	s := t.open
	t.open = nil
	s.result.TextOutput = s.text.String()
	return []Event{complete(s.result.AgentName, s.result)}
}

// complete renders a finalized step result.
func complete(executorID string, result core.StepResult) Event {
	r := result.Clone()
	if r.AgentName == "" {
		r.AgentName = executorID
	}
	return Event{Name: EventAgentComplete, Data: AgentComplete{
		AgentName:    r.AgentName,
		Status:       StatusDone,
		ToolCalls:    r.ToolCalls,
		TextOutput:   r.TextOutput,
		FinalMessage: r.FinalMessage,
	}}
}

// Package transcode maps pipeline run updates to the wire events delivered to
// live clients and normalizes batch responses.
package transcode

import (
	"encoding/json"

	"github.com/hupe1980/factoryops/core"
)

// Wire event names.
const (
	EventAgentStarted     = "agent_started"
	EventToolCall         = "tool_call"
	EventToolResult       = "tool_result"
	EventTextToken        = "text_token"
	EventAgentComplete    = "agent_complete"
	EventWorkflowComplete = "workflow_complete"
	EventError            = "error"
	EventDone             = "done"
)

// StatusDone is the only status reported by agent_complete.
const StatusDone = "done"

// Event is one wire event: a name and its JSON payload.
type Event struct {
	Name string
	Data any
}

// Payload returns the JSON encoding of the event data.
func (e Event) Payload() ([]byte, error) {
	return json.Marshal(e.Data)
}

type AgentStarted struct {
	AgentName string `json:"agentName"`
}

type ToolCall struct {
	AgentName string `json:"agentName"`
	ToolName  string `json:"toolName"`
	Arguments string `json:"arguments"`
}

type ToolResult struct {
	AgentName string `json:"agentName"`
	ToolName  string `json:"toolName"`
	Result    string `json:"result"`
}

type TextToken struct {
	AgentName string `json:"agentName"`
	Text      string `json:"text"`
}

type AgentComplete struct {
	AgentName    string                `json:"agentName"`
	Status       string                `json:"status"`
	ToolCalls    []core.ToolCallRecord `json:"toolCalls"`
	TextOutput   string                `json:"textOutput"`
	FinalMessage *string               `json:"finalMessage"`
}

type WorkflowComplete struct {
	FinalMessage *string `json:"finalMessage"`
}

type Error struct {
	Message string `json:"message"`
}

type Done struct{}

// NewResponse normalizes a batch response for the wire: steps and tool call
// lists are never null.
func NewResponse(resp *core.WorkflowResponse) *core.WorkflowResponse {
	out := &core.WorkflowResponse{AgentSteps: []core.StepResult{}}
	if resp == nil {
		return out
	}
	out.FinalMessage = resp.FinalMessage
	for _, s := range resp.AgentSteps {
		s = s.Clone()
		if s.ToolCalls == nil {
			s.ToolCalls = []core.ToolCallRecord{}
		}
		out.AgentSteps = append(out.AgentSteps, s)
	}
	return out
}

package a2a

import (
	"fmt"

	"github.com/go-json-experiment/json/jsontext"
)

// Well-known agent card locations, relative to the peer base URL.
const (
	AgentCardPath       = "/.well-known/agent-card.json"
	LegacyAgentCardPath = "/.well-known/agent.json"
)

// JSON-RPC methods served by peers.
const (
	MethodMessageSend   = "message/send"
	MethodMessageStream = "message/stream"
)

// Metadata keys and values marking data parts that carry tool activity.
const (
	MetadataType         = "type"
	MetadataADKType      = "adk_type"
	PartFunctionCall     = "function_call"
	PartFunctionResponse = "function_response"
)

// AgentCard describes a peer agent.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description,omitzero"`
	URL                string            `json:"url"`
	Version            string            `json:"version,omitzero"`
	ProtocolVersion    string            `json:"protocolVersion,omitzero"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitzero"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitzero"`
	Skills             []AgentSkill      `json:"skills,omitzero"`
}

// Validate checks the fields a client needs to talk to the peer.
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("agent card has no name")
	}
	if c.URL == "" {
		return fmt.Errorf("agent card %s has no url", c.Name)
	}
	return nil
}

type AgentCapabilities struct {
	Streaming bool `json:"streaming,omitzero"`
}

type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitzero"`
	Tags        []string `json:"tags,omitzero"`
}

// Part kinds.
const (
	KindText = "text"
	KindData = "data"
)

// Part is a text or data segment of a message or artifact.
type Part struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text,omitzero"`
	Data     map[string]any `json:"data,omitzero"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// TextPart returns a text part.
func TextPart(text string) Part { return Part{Kind: KindText, Text: text} }

// DataPart returns a data part tagged with the given metadata type.
func DataPart(typ string, data map[string]any) Part {
	return Part{Kind: KindData, Data: data, Metadata: map[string]any{MetadataType: typ}}
}

// ToolType returns the function_call/function_response tag of a data part, or "".
func (p Part) ToolType() string {
	if p.Kind != KindData {
		return ""
	}
	for _, key := range []string{MetadataType, MetadataADKType} {
		if v, ok := p.Metadata[key].(string); ok && (v == PartFunctionCall || v == PartFunctionResponse) {
			return v
		}
	}
	return ""
}

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is one conversational turn.
type Message struct {
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	TaskID    string `json:"taskId,omitzero"`
	ContextID string `json:"contextId,omitzero"`
}

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
	TaskStateRejected  TaskState = "rejected"
)

// Failed reports whether the state ends the task unsuccessfully.
func (s TaskState) Failed() bool { return s == TaskStateFailed || s == TaskStateRejected }

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitzero"`
	Timestamp string    `json:"timestamp,omitzero"`
}

type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitzero"`
	Parts      []Part `json:"parts"`
}

type Task struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitzero"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitzero"`
	History   []Message  `json:"history,omitzero"`
}

type TaskStatusUpdateEvent struct {
	Kind      string     `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId,omitzero"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

type TaskArtifactUpdateEvent struct {
	Kind      string   `json:"kind"`
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId,omitzero"`
	Artifact  Artifact `json:"artifact"`
	Append    bool     `json:"append,omitzero"`
	LastChunk bool     `json:"lastChunk,omitzero"`
}

// Result kinds, used as the "kind" discriminator of JSON-RPC results.
const (
	ResultMessage        = "message"
	ResultTask           = "task"
	ResultStatusUpdate   = "status-update"
	ResultArtifactUpdate = "artifact-update"
)

// MessageSendParams is the params object of message/send and message/stream.
type MessageSendParams struct {
	Message Message `json:"message"`
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
}

// Response is a JSON-RPC 2.0 response. Result is kept raw until its kind is known.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Result  jsontext.Value `json:"result,omitzero"`
	Error   *RPCError      `json:"error,omitzero"`
}

package a2a

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
)

// RemoteAgentOptions configures a RemoteAgent.
type RemoteAgentOptions struct {
	HTTPClient *http.Client
	Logger     logging.Logger
}

// RemoteAgent is a peer agent reached over JSON-RPC. It uses message/stream
// when the card advertises streaming and message/send otherwise.
type RemoteAgent struct {
	card   AgentCard
	hc     *http.Client
	logger logging.Logger
}

var _ core.Capability = (*RemoteAgent)(nil)

// NewRemoteAgent creates a capability for the peer described by card.
func NewRemoteAgent(card AgentCard, optFns ...func(o *RemoteAgentOptions)) *RemoteAgent {
	opts := RemoteAgentOptions{
		HTTPClient: &http.Client{},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RemoteAgent{card: card, hc: opts.HTTPClient, logger: opts.Logger}
}

// Card returns the agent card the peer was resolved from.
func (a *RemoteAgent) Card() AgentCard { return a.card }

func (a *RemoteAgent) Info() core.CapabilityInfo {
	return core.CapabilityInfo{
		Name:        a.card.Name,
		ID:          a.card.URL,
		Kind:        core.KindPeer,
		Description: a.card.Description,
	}
}

// Run sends input as a user message and relays the peer's replies as events.
func (a *RemoteAgent) Run(ctx context.Context, input string) (<-chan core.Event, <-chan error) {
	out := make(chan core.Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		m := &resultMapper{author: a.card.Name, emit: func(ev core.Event) error {
			select {
			case out <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}

		msg := Message{
			Kind:      ResultMessage,
			Role:      RoleUser,
			Parts:     []Part{TextPart(input)},
			MessageID: core.NewID(),
		}

		var err error
		if a.card.Capabilities.Streaming {
			err = a.stream(ctx, msg, m)
		} else {
			err = a.send(ctx, msg, m)
		}
		if err != nil {
			a.logger.Debug("a2a.peer.failed", "agent", a.card.Name, "error", err)
			errCh <- err
		}
	}()

	return out, errCh
}

func (a *RemoteAgent) call(ctx context.Context, method string, msg Message, accept string) (*http.Response, error) {
	params, err := json.Marshal(MessageSendParams{Message: msg})
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      core.NewID(),
		Method:  method,
		Params:  jsontext.Value(params),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.card.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := a.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	return resp, nil
}

func (a *RemoteAgent) send(ctx context.Context, msg Message, m *resultMapper) error {
	resp, err := a.call(ctx, MethodMessageSend, msg, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.UnmarshalRead(resp.Body, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	_, err = m.handle(rpcResp.Result)
	return err
}

func (a *RemoteAgent) stream(ctx context.Context, msg Message, m *resultMapper) error {
	resp, err := a.call(ctx, MethodMessageStream, msg, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Some peers answer a stream request with a plain JSON-RPC response.
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		var rpcResp Response
		if err := json.UnmarshalRead(resp.Body, &rpcResp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		_, err = m.handle(rpcResp.Result)
		return err
	}

	dec := newSSEDecoder(resp.Body)
	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if strings.TrimSpace(ev.Data) == "" {
			continue
		}

		var rpcResp Response
		if err := json.Unmarshal([]byte(ev.Data), &rpcResp); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		final, err := m.handle(rpcResp.Result)
		if err != nil || final {
			return err
		}
	}
}

// resultMapper turns JSON-RPC results into capability events.
type resultMapper struct {
	author string
	emit   func(core.Event) error
}

// handle maps one result. It reports whether the result ends the task.
func (m *resultMapper) handle(raw jsontext.Value) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}

	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return false, fmt.Errorf("decode result: %w", err)
	}

	switch head.Kind {
	case ResultMessage:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return false, fmt.Errorf("decode message: %w", err)
		}
		return true, m.parts(msg.Parts, false)

	case ResultTask:
		var task Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return false, fmt.Errorf("decode task: %w", err)
		}
		return m.task(task)

	case ResultStatusUpdate:
		var ev TaskStatusUpdateEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return false, fmt.Errorf("decode status update: %w", err)
		}
		if ev.Status.State.Failed() {
			return true, failure(ev.Status)
		}
		if ev.Status.Message != nil {
			if err := m.parts(ev.Status.Message.Parts, false); err != nil {
				return false, err
			}
		}
		return ev.Final || terminal(ev.Status.State), nil

	case ResultArtifactUpdate:
		var ev TaskArtifactUpdateEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return false, fmt.Errorf("decode artifact update: %w", err)
		}
		return false, m.parts(ev.Artifact.Parts, true)

	default:
		return false, fmt.Errorf("unknown result kind %q", head.Kind)
	}
}

func (m *resultMapper) task(task Task) (bool, error) {
	if task.Status.State.Failed() {
		return true, failure(task.Status)
	}

	for _, msg := range task.History {
		if msg.Role != RoleAgent {
			continue
		}
		if err := m.parts(msg.Parts, false); err != nil {
			return false, err
		}
	}

	for _, art := range task.Artifacts {
		if err := m.parts(art.Parts, false); err != nil {
			return false, err
		}
	}

	if len(task.Artifacts) == 0 && task.Status.Message != nil {
		if err := m.parts(task.Status.Message.Parts, false); err != nil {
			return false, err
		}
	}

	return terminal(task.Status.State), nil
}

// parts emits consecutive text parts as one text event and every tagged data
// part as a function call or response.
func (m *resultMapper) parts(parts []Part, partial bool) error {
	var text strings.Builder

	flush := func() error {
		if text.Len() == 0 {
			return nil
		}
		ev := core.NewMessageEvent(m.author, text.String())
		ev.Partial = partial
		text.Reset()
		return m.emit(ev)
	}

	for _, p := range parts {
		switch {
		case p.Kind == KindText:
			text.WriteString(p.Text)

		case p.ToolType() == PartFunctionCall:
			if err := flush(); err != nil {
				return err
			}
			if err := m.emit(core.NewFunctionCallEvent(m.author, functionCall(p.Data))); err != nil {
				return err
			}

		case p.ToolType() == PartFunctionResponse:
			if err := flush(); err != nil {
				return err
			}
			ev := core.NewEvent(m.author)
			ev.Content = &core.Content{
				Role:  core.RoleTool,
				Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: functionResponse(p.Data)}},
			}
			if err := m.emit(ev); err != nil {
				return err
			}
		}
	}

	return flush()
}

func functionCall(data map[string]any) core.FunctionCall {
	fc := core.FunctionCall{ID: stringField(data, "id"), Name: stringField(data, "name")}

	args, ok := data["args"]
	if !ok {
		args = data["arguments"]
	}
	switch v := args.(type) {
	case nil:
	case string:
		fc.Arguments = v
	default:
		if b, err := json.Marshal(v, json.Deterministic(true)); err == nil {
			fc.Arguments = string(b)
		}
	}

	return fc
}

func functionResponse(data map[string]any) core.FunctionResponse {
	return core.FunctionResponse{
		ID:       stringField(data, "id"),
		Name:     stringField(data, "name"),
		Response: data["response"],
		Error:    stringField(data, "error"),
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func terminal(s TaskState) bool {
	return s == TaskStateCompleted || s == TaskStateCanceled || s.Failed()
}

func failure(status TaskStatus) error {
	var text string
	if status.Message != nil {
		for _, p := range status.Message.Parts {
			if p.Kind == KindText {
				text += p.Text
			}
		}
	}
	return &TaskFailedError{State: status.State, Message: text}
}

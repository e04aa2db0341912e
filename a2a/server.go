package a2a

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Logger logging.Logger
}

// Server exposes a capability as an A2A peer: it publishes the agent card
// and answers message/send and message/stream at the root path.
type Server struct {
	cap    core.Capability
	card   AgentCard
	logger logging.Logger
	mux    *http.ServeMux
}

// NewServer creates a peer server for c described by card.
func NewServer(c core.Capability, card AgentCard, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{cap: c, card: card, logger: opts.Logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET "+AgentCardPath, s.handleCard)
	s.mux.HandleFunc("GET "+LegacyAgentCardPath, s.handleCard)
	s.mux.HandleFunc("POST /{$}", s.handleRPC)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, s.card); err != nil {
		s.logger.Error("a2a.card.write_failed", "error", err)
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		s.writeResponse(w, Response{JSONRPC: "2.0", Error: NewRPCError(CodeParseError, "parse error", err.Error())})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeResponse(w, Response{JSONRPC: "2.0", ID: req.ID, Error: NewRPCError(CodeInvalidRequest, "invalid request", nil)})
		return
	}

	if req.Method != MethodMessageSend && req.Method != MethodMessageStream {
		s.writeResponse(w, Response{JSONRPC: "2.0", ID: req.ID, Error: NewRPCError(CodeMethodNotFound, "method not found", req.Method)})
		return
	}

	var params MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(w, Response{JSONRPC: "2.0", ID: req.ID, Error: NewRPCError(CodeInvalidParams, "invalid params", err.Error())})
		return
	}
	input := messageText(params.Message)
	if input == "" {
		s.writeResponse(w, Response{JSONRPC: "2.0", ID: req.ID, Error: NewRPCError(CodeInvalidParams, "message has no text", nil)})
		return
	}

	t := newTaskRun(params.Message)
	s.logger.Info("a2a.task.started", "method", req.Method, "task", t.id, "agent", s.card.Name)

	if req.Method == MethodMessageStream {
		s.stream(w, r, req.ID, t, input)
		return
	}
	s.send(w, r, req.ID, t, input)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, id any, t *taskRun, input string) {
	err := s.run(r.Context(), input, func(ev core.Event) error {
		t.record(ev)
		return nil
	})

	task := t.task(err)
	result, mErr := json.Marshal(task)
	if mErr != nil {
		s.writeResponse(w, Response{JSONRPC: "2.0", ID: id, Error: NewRPCError(CodeInternalError, "internal error", mErr.Error())})
		return
	}

	s.logger.Info("a2a.task.finished", "task", t.id, "state", string(task.Status.State))
	s.writeResponse(w, Response{JSONRPC: "2.0", ID: id, Result: jsontext.Value(result)})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, id any, t *taskRun, input string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeResponse(w, Response{JSONRPC: "2.0", ID: id, Error: NewRPCError(CodeInternalError, "streaming unsupported", nil)})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	write := func(result any) error {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		b, err := json.Marshal(Response{JSONRPC: "2.0", ID: id, Result: jsontext.Value(raw)})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := write(Task{Kind: ResultTask, ID: t.id, ContextID: t.contextID, Status: TaskStatus{State: TaskStateSubmitted, Timestamp: now()}}); err != nil {
		s.logger.Debug("a2a.stream.write_failed", "task", t.id, "error", err)
		return
	}

	appended := false
	runErr := s.run(r.Context(), input, func(ev core.Event) error {
		switch {
		case ev.IsPartial():
			upd := TaskArtifactUpdateEvent{
				Kind:      ResultArtifactUpdate,
				TaskID:    t.id,
				ContextID: t.contextID,
				Artifact:  Artifact{ArtifactID: t.artifactID, Name: "response", Parts: []Part{TextPart(ev.Text())}},
				Append:    appended,
			}
			appended = true
			return write(upd)
		default:
			parts := eventParts(ev)
			if len(parts) == 0 {
				return nil
			}
			return write(TaskStatusUpdateEvent{
				Kind:      ResultStatusUpdate,
				TaskID:    t.id,
				ContextID: t.contextID,
				Status:    TaskStatus{State: TaskStateWorking, Message: t.agentMessage(parts), Timestamp: now()},
			})
		}
	})

	if errors.Is(runErr, context.Canceled) || r.Context().Err() != nil {
		s.logger.Debug("a2a.stream.cancelled", "task", t.id)
		return
	}

	status := TaskStatus{State: TaskStateCompleted, Timestamp: now()}
	if runErr != nil {
		status = TaskStatus{State: TaskStateFailed, Message: t.agentMessage([]Part{TextPart(runErr.Error())}), Timestamp: now()}
	}
	if err := write(TaskStatusUpdateEvent{Kind: ResultStatusUpdate, TaskID: t.id, ContextID: t.contextID, Status: status, Final: true}); err != nil {
		s.logger.Debug("a2a.stream.write_failed", "task", t.id, "error", err)
		return
	}

	s.logger.Info("a2a.task.finished", "task", t.id, "state", string(status.State))
}

// run drives the capability and hands each event to fn.
func (s *Server) run(ctx context.Context, input string, fn func(core.Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, errs := s.cap.Run(ctx, input)
	for ev := range events {
		if err := fn(ev); err != nil {
			cancel()
			for range events {
			}
			return err
		}
	}

	for err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, resp); err != nil {
		s.logger.Error("a2a.response.write_failed", "error", err)
	}
}

// taskRun accumulates a non-streaming task.
type taskRun struct {
	id         string
	contextID  string
	artifactID string
	request    Message
	history    []Message
	partial    strings.Builder
	final      string
}

func newTaskRun(req Message) *taskRun {
	contextID := req.ContextID
	if contextID == "" {
		contextID = core.NewID()
	}
	return &taskRun{id: core.NewID(), contextID: contextID, artifactID: core.NewID(), request: req}
}

func (t *taskRun) agentMessage(parts []Part) *Message {
	return &Message{
		Kind:      ResultMessage,
		Role:      RoleAgent,
		Parts:     parts,
		MessageID: core.NewID(),
		TaskID:    t.id,
		ContextID: t.contextID,
	}
}

func (t *taskRun) record(ev core.Event) {
	switch {
	case ev.IsPartial():
		t.partial.WriteString(ev.Text())
	case len(ev.GetFunctionCalls()) > 0 || len(ev.GetFunctionResponses()) > 0:
		t.history = append(t.history, *t.agentMessage(eventParts(ev)))
	case ev.IsAssistantText():
		t.final = ev.Text()
	}
}

func (t *taskRun) task(err error) Task {
	req := t.request
	req.TaskID = t.id
	req.ContextID = t.contextID

	task := Task{
		Kind:      ResultTask,
		ID:        t.id,
		ContextID: t.contextID,
		History:   append([]Message{req}, t.history...),
	}

	if err != nil {
		task.Status = TaskStatus{State: TaskStateFailed, Message: t.agentMessage([]Part{TextPart(err.Error())}), Timestamp: now()}
		return task
	}

	text := t.final
	if text == "" {
		text = t.partial.String()
	}
	task.Status = TaskStatus{State: TaskStateCompleted, Timestamp: now()}
	if text != "" {
		task.Artifacts = []Artifact{{ArtifactID: t.artifactID, Name: "response", Parts: []Part{TextPart(text)}}}
	}

	return task
}

// eventParts converts capability event content to protocol parts.
func eventParts(ev core.Event) []Part {
	if ev.Content == nil {
		return nil
	}

	var parts []Part
	for _, p := range ev.Content.Parts {
		switch p := p.(type) {
		case core.TextPart:
			if p.Text != "" {
				parts = append(parts, TextPart(p.Text))
			}
		case core.FunctionCallPart:
			parts = append(parts, DataPart(PartFunctionCall, map[string]any{
				"id":   p.FunctionCall.ID,
				"name": p.FunctionCall.Name,
				"args": callArgs(p.FunctionCall.Arguments),
			}))
		case core.FunctionResponsePart:
			data := map[string]any{
				"id":       p.FunctionResponse.ID,
				"name":     p.FunctionResponse.Name,
				"response": p.FunctionResponse.Response,
			}
			if p.FunctionResponse.Error != "" {
				data["error"] = p.FunctionResponse.Error
			}
			parts = append(parts, DataPart(PartFunctionResponse, data))
		}
	}

	return parts
}

// callArgs decodes JSON object arguments, keeping anything else verbatim.
func callArgs(args string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(args), &obj); err == nil {
		return obj
	}
	return args
}

func messageText(m Message) string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Kind == KindText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

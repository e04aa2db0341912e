package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/factoryops/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	// Name overrides the capability name as step identifier.
	Name string
	// Timeout bounds a single step; 0 disables the bound. A step that times
	// out fails open like any other step error.
	Timeout time.Duration
}

// Executor is a text-relay wrapper around one capability. Only the final text
// of a step crosses into the next step; structured call history stays behind.
type Executor struct {
	cap  core.Capability
	opts ExecutorOptions
}

// NewExecutor wraps c.
func NewExecutor(c core.Capability, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{Name: c.Info().Name}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{cap: c, opts: opts}
}

// ID returns the step identifier, which is the agent name.
func (e *Executor) ID() string { return e.opts.Name }

// Capability returns the wrapped capability.
func (e *Executor) Capability() core.Capability { return e.cap }

// FailureText is the text a failed step relays instead of an error.
func FailureText(step string, err error) string {
	return fmt.Sprintf("Error processing %s request: %s", step, err.Error())
}

// step accumulates one executor's activity until it is finalized.
type step struct {
	result core.StepResult
	text   strings.Builder
	// partialTurn is set while partial fragments of the current model turn
	// have been appended to text.
	partialTurn bool
}

func (s *step) finalize() core.StepResult {
	s.result.TextOutput = s.text.String()
	return s.result
}

// output is the text relayed to the next step.
func (s *step) output() string {
	if s.result.FinalMessage != nil && *s.result.FinalMessage != "" {
		return *s.result.FinalMessage
	}
	return s.text.String()
}

// Invoke runs the wrapped capability on input and returns the text for the
// next step. Capability failures are converted into FailureText and never
// returned. The only errors are cancellation of ctx and a failed emit; the
// step is still published to the scope in both cases.
func (e *Executor) Invoke(ctx context.Context, scope *Scope, input string) (string, error) {
	name := e.ID()
	logger := scope.logger
	start := time.Now()

	ctx, span := scope.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("agent.name", name),
		attribute.String("agent.kind", string(e.cap.Info().Kind)),
		attribute.String("run.id", scope.RunID()),
	))
	defer span.End()

	st := &step{result: core.StepResult{AgentName: name, ToolCalls: []core.ToolCallRecord{}}}
	abort := func(err error) (string, error) {
		scope.Publish(st.finalize())
		span.RecordError(err)
		span.SetStatus(codes.Error, "step aborted")
		logger.Debug("pipeline.step.aborted", "agent", name, "error", err.Error())
		return "", err
	}

	if err := scope.Emit(ctx, core.StepStarted{ExecutorID: name}); err != nil {
		return abort(err)
	}

	stepCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	events, errs := safeRun(stepCtx, e.cap, input)
	runErr := func() error {
		for {
			select {
			case <-stepCtx.Done():
				return stepCtx.Err()
			case ev, ok := <-events:
				if !ok {
					return <-errs
				}
				if err := e.handle(ctx, scope, st, ev); err != nil {
					return err
				}
			}
		}
	}()

	if ctx.Err() != nil {
		return abort(ctx.Err())
	}
	var emitErr *emitError
	if errors.As(runErr, &emitErr) {
		return abort(emitErr.err)
	}

	failed := runErr != nil
	if failed {
		if errors.Is(runErr, context.DeadlineExceeded) && e.opts.Timeout > 0 {
			runErr = fmt.Errorf("step timed out after %s", e.opts.Timeout)
		}
		msg := FailureText(name, runErr)
		logger.Warn("pipeline.step.failed", "agent", name, "error", runErr.Error())
		span.RecordError(runErr)
		st.text.Reset()
		st.text.WriteString(msg)
		st.result.FinalMessage = core.StringPtr(msg)
		if err := scope.Emit(ctx, core.TextFragment{ExecutorID: name, Text: msg}); err != nil {
			return abort(err)
		}
	}

	result := st.finalize()
	scope.Publish(result)
	out := st.output()

	span.SetAttributes(
		attribute.Int("step.tool_calls", len(result.ToolCalls)),
		attribute.Bool("step.failed", failed),
	)
	logger.Info(
		"pipeline.step.completed",
		"agent", name,
		"tool_calls", len(result.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds(),
		"failed", failed,
	)

	if err := scope.Emit(ctx, core.StepCompleted{ExecutorID: name, FinalText: out, Result: result.Clone()}); err != nil {
		return out, err
	}
	return out, nil
}

// emitError marks a failure of the update sink, as opposed to a capability error.
type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

// handle folds one capability event into the step and forwards the matching updates.
func (e *Executor) handle(ctx context.Context, scope *Scope, st *step, ev core.Event) error {
	name := e.ID()
	emit := func(u core.RunUpdate) error {
		if err := scope.Emit(ctx, u); err != nil {
			return &emitError{err: err}
		}
		return nil
	}

	if ev.Content == nil {
		return nil
	}

	for _, fc := range ev.GetFunctionCalls() {
		st.partialTurn = false
		st.result.ToolCalls = append(st.result.ToolCalls, core.ToolCallRecord{
			CallID:    fc.ID,
			ToolName:  fc.Name,
			Arguments: fc.Arguments,
		})
		if err := emit(core.ToolCall{ExecutorID: name, CallID: fc.ID, ToolName: fc.Name, Arguments: fc.Arguments}); err != nil {
			return err
		}
	}

	for _, fr := range ev.GetFunctionResponses() {
		st.partialTurn = false
		idx := correlate(st.result.ToolCalls, fr)
		if idx < 0 {
			scope.logger.Warn("pipeline.tool_result.unmatched", "agent", name, "tool", fr.Name, "call_id", fr.ID)
			continue
		}
		rec := &st.result.ToolCalls[idx]
		result := resultText(fr)
		rec.Result = &result
		if err := emit(core.ToolResult{ExecutorID: name, CallID: rec.CallID, ToolName: rec.ToolName, Result: result}); err != nil {
			return err
		}
	}

	if !ev.IsAssistantText() {
		return nil
	}
	text := ev.Text()
	if ev.IsPartial() {
		st.partialTurn = true
		st.text.WriteString(text)
		return emit(core.TextFragment{ExecutorID: name, Text: text})
	}

	st.result.FinalMessage = core.StringPtr(text)
	if st.partialTurn {
		st.partialTurn = false
		return nil
	}
	st.text.WriteString(text)
	return emit(core.TextFragment{ExecutorID: name, Text: text})
}

// correlate matches a tool result to one of the step's tool call records.
func correlate(records []core.ToolCallRecord, fr core.FunctionResponse) int {
	return core.MatchToolResult(records, fr.ID, fr.Name)
}

// resultText serializes a tool result for the step record.
func resultText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		b, _ := json.Marshal(map[string]string{"error": fr.Error})
		return string(b)
	}
	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// safeRun starts the capability, converting a panic in Run into an error.
func safeRun(ctx context.Context, c core.Capability, input string) (events <-chan core.Event, errs <-chan error) {
	defer func() {
		if r := recover(); r != nil {
			ev := make(chan core.Event)
			ec := make(chan error, 1)
			close(ev)
			ec <- fmt.Errorf("capability panic: %v", r)
			close(ec)
			events, errs = ev, ec
		}
	}()
	return c.Run(ctx, input)
}

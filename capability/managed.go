package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
	"github.com/hupe1980/factoryops/model"
	"github.com/hupe1980/factoryops/tool"
)

// ManagedOptions configures a ManagedAgent.
type ManagedOptions struct {
	ID          string
	Description string
	Instruction Instruction
	Tools       []tool.Tool
	// MaxTurns bounds model calls per Run; 0 disables the bound.
	MaxTurns        int
	Temperature     *float64
	EnableStreaming bool
	ToolTimeout     time.Duration
	Logger          logging.Logger
}

// ManagedAgent is a model-backed capability running a tool-calling loop.
// It holds no per-run state and may serve concurrent runs.
type ManagedAgent struct {
	name   string
	llm    model.Model
	opts   ManagedOptions
	tools  map[string]tool.Tool
	defs   []model.ToolDefinition
	logger logging.Logger
}

// NewManagedAgent creates a managed agent named name backed by llm.
func NewManagedAgent(name string, llm model.Model, optFns ...func(o *ManagedOptions)) *ManagedAgent {
	opts := ManagedOptions{
		ID:              core.NewID(),
		Description:     fmt.Sprintf("Agent %s", name),
		Instruction:     NewInstructionFromText("You are {{.Name}}, a helpful maintenance assistant."),
		MaxTurns:        8,
		EnableStreaming: true,
		ToolTimeout:     30 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ManagedAgent{
		name:   name,
		llm:    llm,
		opts:   opts,
		tools:  make(map[string]tool.Tool, len(opts.Tools)),
		logger: opts.Logger,
	}
	for _, t := range opts.Tools {
		if _, dup := a.tools[t.Name()]; !dup {
			a.defs = append(a.defs, model.ToolDefinition{
				Type: "function",
				Function: model.FunctionDefinition{
					Name:        t.Name(),
					Description: t.Description(),
					Parameters:  t.Parameters(),
				},
			})
		}
		a.tools[t.Name()] = t
	}
	return a
}

// Info implements core.Capability.
func (a *ManagedAgent) Info() core.CapabilityInfo {
	return core.CapabilityInfo{
		Name:        a.name,
		ID:          a.opts.ID,
		Kind:        core.KindManaged,
		Description: a.opts.Description,
	}
}

// Tools returns the names of the bound tools in registration order.
func (a *ManagedAgent) Tools() []string {
	names := make([]string, 0, len(a.defs))
	for _, d := range a.defs {
		names = append(names, d.Function.Name)
	}
	return names
}

// Run implements core.Capability.
func (a *ManagedAgent) Run(ctx context.Context, input string) (<-chan core.Event, <-chan error) {
	out := make(chan core.Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if err := a.run(ctx, input, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (a *ManagedAgent) run(ctx context.Context, input string, out chan<- core.Event) error {
	instructions, err := a.opts.Instruction.Resolve(ctx, a.Info())
	if err != nil {
		return fmt.Errorf("resolve instructions: %w", err)
	}

	emit := func(ev core.Event) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- ev:
			return nil
		}
	}

	contents := []core.Content{*core.NewTextContent(core.RoleUser, input)}
	limiter := newTurnLimiter(a.opts.MaxTurns)

	for {
		if err := limiter.Increment(); err != nil {
			return err
		}

		final, err := a.generate(ctx, instructions, contents, emit)
		if err != nil {
			return err
		}

		// Calls without an id get one so responses can be correlated.
		parts := make([]core.Part, 0, len(final.Content.Parts))
		var fnCalls []core.FunctionCall
		for _, p := range final.Content.Parts {
			if fc, ok := p.(core.FunctionCallPart); ok {
				if fc.FunctionCall.ID == "" {
					fc.FunctionCall.ID = core.NewID()
				}
				fnCalls = append(fnCalls, fc.FunctionCall)
				p = fc
			}
			parts = append(parts, p)
		}
		final.Content.Parts = parts

		if text := final.Content.Text(); text != "" {
			if err := emit(core.NewMessageEvent(a.name, text)); err != nil {
				return err
			}
		}
		if len(fnCalls) == 0 {
			a.logger.Debug("agent.run.complete", "agent", a.name, "turns", limiter.count)
			return nil
		}

		contents = append(contents, final.Content)
		if err := emit(core.NewFunctionCallEvent(a.name, fnCalls...)); err != nil {
			return err
		}

		responses := make([]core.Part, 0, len(fnCalls))
		for _, fc := range fnCalls {
			result, callErr := a.executeTool(ctx, fc)
			ev := core.NewFunctionResponseEvent(a.name, fc.ID, fc.Name, result, callErr)
			if err := emit(ev); err != nil {
				return err
			}
			responses = append(responses, ev.Content.Parts...)
		}
		contents = append(contents, core.Content{Role: core.RoleTool, Parts: responses})
	}
}

// generate runs one model turn, forwarding partial text, and returns the
// complete response of the turn.
func (a *ManagedAgent) generate(
	ctx context.Context,
	instructions string,
	contents []core.Content,
	emit func(core.Event) error,
) (model.Response, error) {
	respCh, errCh := a.llm.Generate(ctx, model.Request{
		Instructions: instructions,
		Contents:     contents,
		Tools:        a.defs,
		Stream:       a.opts.EnableStreaming,
		Temperature:  a.opts.Temperature,
	})

	var (
		final    model.Response
		gotFinal bool
	)
	for resp := range respCh {
		if resp.Partial {
			if text := resp.Content.Text(); text != "" {
				if err := emit(core.NewPartialTextEvent(a.name, text)); err != nil {
					return final, err
				}
			}
			continue
		}
		final = resp
		gotFinal = true
	}
	if err := <-errCh; err != nil {
		return final, fmt.Errorf("model generate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return final, err
	}
	if !gotFinal {
		return final, errors.New("model returned no final response")
	}
	return final, nil
}

// executeTool runs one tool call, converting panics and unknown tools into errors.
func (a *ManagedAgent) executeTool(ctx context.Context, fc core.FunctionCall) (result any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
			a.logger.Error("agent.function.panic", "agent", a.name, "function", fc.Name, "recover", r)
		}
		a.logger.Info(
			"agent.function.executed",
			"agent", a.name,
			"function", fc.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil,
		)
	}()

	impl, ok := a.tools[fc.Name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", fc.Name)
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	if a.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.ToolTimeout)
		defer cancel()
	}
	return impl.Call(ctx, args)
}

func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

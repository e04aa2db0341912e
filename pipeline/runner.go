package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrAlreadyStarted is returned when a Runner is used for a second run.
var ErrAlreadyStarted = errors.New("pipeline runner already started")

// State of a run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configure a Runner.
type Options struct {
	RunID string
	// EventBuffer is the capacity of the Stream updates channel.
	EventBuffer int
	Logger      logging.Logger
	Tracer      trace.Tracer
}

// WithTracer sets an OpenTelemetry tracer; without one tracing is a no-op.
func WithTracer(t trace.Tracer) func(o *Options) {
	return func(o *Options) { o.Tracer = t }
}

// WithLogger sets the logger used by the runner and its executors.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) func(o *Options) {
	return func(o *Options) { o.RunID = id }
}

// WithEventBuffer sets the Stream channel capacity.
func WithEventBuffer(n int) func(o *Options) {
	return func(o *Options) { o.EventBuffer = n }
}

func defaultTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("github.com/hupe1980/factoryops/pipeline")
}

// Runner drives one run of a Pipeline. It is single-use.
type Runner struct {
	pipeline *Pipeline
	opts     Options

	mu      sync.Mutex
	state   State
	err     error
	results []core.StepResult
}

var _ core.Runner = (*Runner)(nil)

// NewRunner creates an idle runner for p.
func NewRunner(p *Pipeline, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBuffer: 64,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RunID == "" {
		opts.RunID = core.NewID()
	}
	if opts.Tracer == nil {
		opts.Tracer = defaultTracer()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Runner{pipeline: p, opts: opts}
}

// RunID returns the identifier of the run.
func (r *Runner) RunID() string { return r.opts.RunID }

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the terminal error of a failed run.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Results returns the step results finalized so far by a finished run.
func (r *Runner) Results() []core.StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.StepResult(nil), r.results...)
}

func (r *Runner) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return ErrAlreadyStarted
	}
	r.state = StateRunning
	return nil
}

func (r *Runner) finish(results []core.StepResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = results
	if err != nil {
		r.state = StateFailed
		r.err = err
		return
	}
	r.state = StateCompleted
}

// Run executes the pipeline to completion and returns the aggregated response.
func (r *Runner) Run(ctx context.Context, input string) (*core.WorkflowResponse, error) {
	if err := r.start(); err != nil {
		return nil, err
	}
	final, results, err := r.execute(ctx, input, nil)
	if err != nil {
		return nil, err
	}
	return &core.WorkflowResponse{AgentSteps: results, FinalMessage: final}, nil
}

// Stream executes the pipeline and yields updates as they occur. The updates
// channel closes when the run ends; the error channel then carries the
// terminal error, if any.
func (r *Runner) Stream(ctx context.Context, input string) (<-chan core.RunUpdate, <-chan error) {
	out := make(chan core.RunUpdate, r.opts.EventBuffer)
	errCh := make(chan error, 1)

	if err := r.start(); err != nil {
		close(out)
		errCh <- err
		close(errCh)
		return out, errCh
	}

	go func() {
		defer close(errCh)
		defer close(out)

		emit := func(ctx context.Context, u core.RunUpdate) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- u:
				return nil
			}
		}
		if _, _, err := r.execute(ctx, input, emit); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// execute runs every step in order and records the terminal state.
func (r *Runner) execute(ctx context.Context, input string, emit EmitFunc) (final *string, results []core.StepResult, err error) {
	start := time.Now()
	logger := r.opts.Logger

	ctx, span := r.opts.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", r.opts.RunID),
		attribute.Int("pipeline.members", r.pipeline.Len()),
	))
	defer span.End()

	scope := NewScope(r.opts.RunID, emit, logger, r.opts.Tracer)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
			final = nil
		}
		results = scope.Results()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pipeline run failed")
			if errors.Is(err, context.Canceled) {
				logger.Debug("pipeline.run.cancelled", "run_id", r.opts.RunID, "steps", len(results))
			} else {
				logger.Error("pipeline.run.failed", "run_id", r.opts.RunID, "error", err.Error())
			}
		} else {
			logger.Info(
				"pipeline.run.completed",
				"run_id", r.opts.RunID,
				"steps", len(results),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		r.finish(results, err)
	}()

	text := input
	for _, ex := range r.pipeline.executors {
		out, err := ex.Invoke(ctx, scope, text)
		if err != nil {
			return nil, nil, err
		}
		text = out
	}

	final = finalMessage(scope.Results())
	if err := scope.Emit(ctx, core.PipelineOutput{FinalText: final}); err != nil {
		return nil, nil, err
	}
	return final, nil, nil
}

// finalMessage picks the overall final message: the output step's final
// message or text, else the latest earlier step with a final message.
func finalMessage(results []core.StepResult) *string {
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if last.FinalMessage != nil && *last.FinalMessage != "" {
		return core.StringPtr(*last.FinalMessage)
	}
	if last.TextOutput != "" {
		return core.StringPtr(last.TextOutput)
	}
	for i := len(results) - 2; i >= 0; i-- {
		if m := results[i].FinalMessage; m != nil && *m != "" {
			return core.StringPtr(*m)
		}
	}
	return nil
}

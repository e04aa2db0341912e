// Package factoryops provides the orchestrator façade of the machine-fault
// workflow. Most applications interact with it by:
//  1. Creating an Orchestrator via New() or NewFromConfig()
//  2. Calling Analyze for a batch response, or Stream for live run updates
//
// Every request resolves the configured members afresh, builds a linear
// pipeline and runs it once. Members that cannot be resolved are skipped
// unless they are required.
package factoryops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/factoryops/a2a"
	"github.com/hupe1980/factoryops/config"
	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
	"github.com/hupe1980/factoryops/pipeline"
)

// Version of the factoryops module.
const Version = "0.1.0"

// AnalyzeRequest is the body of an analysis request.
type AnalyzeRequest struct {
	MachineID string `json:"machine_id"`
	Telemetry any    `json:"telemetry"`
}

// Input serializes the request as the first step's input text.
func (r AnalyzeRequest) Input() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return string(b), nil
}

// Options configures the Orchestrator.
type Options struct {
	// Members in pipeline order.
	Members []config.MemberConfig

	// Managed resolves managed members by name.
	Managed core.Resolver
	// Peers resolves peer members by base URL.
	Peers core.Resolver

	// StepTimeout bounds each step; 0 disables the bound.
	StepTimeout time.Duration
	// EventBuffer is the capacity of streaming update channels.
	EventBuffer int

	Logger logging.Logger
	Tracer trace.Tracer
}

// Orchestrator resolves pipeline members and runs pipelines per request.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	opts Options
}

// New creates an Orchestrator.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		EventBuffer: 64,
		Peers:       a2a.NewCardResolver(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{opts: opts}
}

// NewFromConfig creates an Orchestrator for cfg, resolving managed members
// through managed and peers through their agent cards. Spans go to the
// global OpenTelemetry tracer provider.
func NewFromConfig(cfg *config.Config, managed core.Resolver, logger logging.Logger) *Orchestrator {
	return New(func(o *Options) {
		o.Members = cfg.Members
		o.Managed = managed
		o.Peers = a2a.NewCardResolver(func(ro *a2a.CardResolverOptions) { ro.Logger = logger })
		o.StepTimeout = cfg.Pipeline.StepTimeout
		o.EventBuffer = cfg.Pipeline.EventBuffer
		o.Logger = logger
		o.Tracer = otel.Tracer("github.com/hupe1980/factoryops")
	})
}

// Members returns the configured members in pipeline order.
func (o *Orchestrator) Members() []config.MemberConfig {
	return append([]config.MemberConfig(nil), o.opts.Members...)
}

// Build resolves every member and assembles the pipeline. A required member
// that fails to resolve aborts the build; other failures skip the member.
func (o *Orchestrator) Build(ctx context.Context) (*pipeline.Pipeline, error) {
	var executors []*pipeline.Executor

	for i, m := range o.opts.Members {
		c, err := o.resolve(ctx, m)
		if err != nil {
			if m.IsRequired(i) {
				return nil, fmt.Errorf("resolve required member %s: %w", m.Name, err)
			}
			o.opts.Logger.Warn("orchestrator.member.skipped", "member", m.Name, "kind", m.Kind, "error", err.Error())
			continue
		}

		name := m.Name
		executors = append(executors, pipeline.NewExecutor(c, func(eo *pipeline.ExecutorOptions) {
			if name != "" {
				eo.Name = name
			}
			eo.Timeout = o.opts.StepTimeout
		}))
	}

	return pipeline.Build(executors...)
}

func (o *Orchestrator) resolve(ctx context.Context, m config.MemberConfig) (core.Capability, error) {
	switch m.Kind {
	case config.KindPeer:
		if m.URL == "" {
			return nil, core.NewResolutionError(core.NotFound, m.Name, errors.New("no url configured"))
		}
		if o.opts.Peers == nil {
			return nil, core.NewResolutionError(core.NotFound, m.Name, errors.New("no peer resolver"))
		}
		return o.opts.Peers.Resolve(ctx, m.URL)
	default:
		if o.opts.Managed == nil {
			return nil, core.NewResolutionError(core.NotFound, m.Name, errors.New("no managed resolver"))
		}
		return o.opts.Managed.Resolve(ctx, m.Name)
	}
}

func (o *Orchestrator) runner(p *pipeline.Pipeline, runID string) *pipeline.Runner {
	return pipeline.NewRunner(p,
		pipeline.WithRunID(runID),
		pipeline.WithEventBuffer(o.opts.EventBuffer),
		pipeline.WithLogger(o.opts.Logger),
		pipeline.WithTracer(o.opts.Tracer),
	)
}

// Analyze runs the workflow for req to completion.
func (o *Orchestrator) Analyze(ctx context.Context, runID string, req AnalyzeRequest) (*core.WorkflowResponse, error) {
	input, err := req.Input()
	if err != nil {
		return nil, err
	}

	p, err := o.Build(ctx)
	if err != nil {
		return nil, err
	}

	o.opts.Logger.Info("orchestrator.run.started", "run_id", runID, "machine_id", req.MachineID, "steps", p.Len())

	return o.runner(p, runID).Run(ctx, input)
}

// Stream runs the workflow for req and yields its updates live. Member
// resolution happens inside the producer, so a resolution failure arrives
// on the error channel like any other run failure.
func (o *Orchestrator) Stream(ctx context.Context, runID string, req AnalyzeRequest) (<-chan core.RunUpdate, <-chan error) {
	out := make(chan core.RunUpdate, o.opts.EventBuffer)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		input, err := req.Input()
		if err != nil {
			errCh <- err
			return
		}

		p, err := o.Build(ctx)
		if err != nil {
			errCh <- err
			return
		}

		o.opts.Logger.Info("orchestrator.stream.started", "run_id", runID, "machine_id", req.MachineID, "steps", p.Len())

		updates, errs := o.runner(p, runID).Stream(ctx, input)
		for u := range updates {
			if ctx.Err() != nil {
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
			}
		}

		for err := range errs {
			if err != nil {
				errCh <- err
			}
		}
	}()

	return out, errCh
}

package pipeline

import (
	"context"
	"sync"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
	"go.opentelemetry.io/otel/trace"
)

// EmitFunc delivers a run update. It returns an error when the consumer is
// gone and the run should stop.
type EmitFunc func(ctx context.Context, u core.RunUpdate) error

// Scope is the side channel of one run: the append-only list of finalized
// step results plus the update sink and diagnostics shared by all executors.
// A Scope is created per run and never reused.
type Scope struct {
	runID  string
	emit   EmitFunc
	logger logging.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	results []core.StepResult
}

// NewScope creates an empty scope. A nil emit discards updates.
func NewScope(runID string, emit EmitFunc, logger logging.Logger, tracer trace.Tracer) *Scope {
	if emit == nil {
		emit = func(context.Context, core.RunUpdate) error { return nil }
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if tracer == nil {
		tracer = defaultTracer()
	}
	return &Scope{runID: runID, emit: emit, logger: logger, tracer: tracer}
}

// RunID returns the identifier of the run.
func (s *Scope) RunID() string { return s.runID }

// Emit forwards u to the run's consumer.
func (s *Scope) Emit(ctx context.Context, u core.RunUpdate) error { return s.emit(ctx, u) }

// Publish appends a finalized step result.
func (s *Scope) Publish(r core.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r.Clone())
}

// Results returns copies of the finalized step results in execution order.
func (s *Scope) Results() []core.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.StepResult, len(s.results))
	for i, r := range s.results {
		out[i] = r.Clone()
	}
	return out
}

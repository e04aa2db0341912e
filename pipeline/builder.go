package pipeline

import "github.com/hupe1980/factoryops/core"

// Pipeline is an immutable linear chain of executors. The last executor is
// the designated output.
type Pipeline struct {
	executors []*Executor
}

// Build wires executors in order: the output of executor i is the input of
// executor i+1. It fails with core.ErrEmptyPipeline when no executor is given.
func Build(executors ...*Executor) (*Pipeline, error) {
	if len(executors) == 0 {
		return nil, core.ErrEmptyPipeline
	}
	return &Pipeline{executors: append([]*Executor(nil), executors...)}, nil
}

// BuildFromCapabilities wraps each capability in an Executor and builds the pipeline.
func BuildFromCapabilities(caps []core.Capability, optFns ...func(o *ExecutorOptions)) (*Pipeline, error) {
	executors := make([]*Executor, 0, len(caps))
	for _, c := range caps {
		executors = append(executors, NewExecutor(c, optFns...))
	}
	return Build(executors...)
}

// Len returns the number of steps.
func (p *Pipeline) Len() int { return len(p.executors) }

// Executors returns the executors in execution order.
func (p *Pipeline) Executors() []*Executor { return append([]*Executor(nil), p.executors...) }

// Output returns the designated output executor.
func (p *Pipeline) Output() *Executor { return p.executors[len(p.executors)-1] }

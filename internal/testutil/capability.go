package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/factoryops/core"
)

// Behavior drives a ScriptedCapability. It emits events through emit and
// returns the terminal error of the run.
type Behavior func(ctx context.Context, input string, emit func(core.Event) error) error

// ScriptedCapability is a core.Capability whose runs are fixed by a Behavior.
// It records every input it receives.
type ScriptedCapability struct {
	info     core.CapabilityInfo
	behavior Behavior

	mu     sync.Mutex
	inputs []string
}

// NewCapability returns a managed capability named name.
func NewCapability(name string, b Behavior) *ScriptedCapability {
	return &ScriptedCapability{
		info:     core.CapabilityInfo{Name: name, ID: "id-" + name, Kind: core.KindManaged},
		behavior: b,
	}
}

// Info implements core.Capability.
func (c *ScriptedCapability) Info() core.CapabilityInfo { return c.info }

// Run implements core.Capability.
func (c *ScriptedCapability) Run(ctx context.Context, input string) (<-chan core.Event, <-chan error) {
	c.mu.Lock()
	c.inputs = append(c.inputs, input)
	c.mu.Unlock()

	out := make(chan core.Event)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		emit := func(ev core.Event) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- ev:
				return nil
			}
		}
		if err := c.behavior(ctx, input, emit); err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

// Inputs returns the inputs of all runs so far.
func (c *ScriptedCapability) Inputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

// Emit returns a Behavior that emits events in order and succeeds.
func Emit(events ...core.Event) Behavior {
	return func(_ context.Context, _ string, emit func(core.Event) error) error {
		for _, ev := range events {
			if err := emit(ev); err != nil {
				return err
			}
		}
		return nil
	}
}

// Reply returns a Behavior answering with one complete message computed from the input.
func Reply(author string, fn func(input string) string) Behavior {
	return func(_ context.Context, input string, emit func(core.Event) error) error {
		return emit(Text(author, fn(input)))
	}
}

// Fail returns a Behavior that emits events and then fails with err.
func Fail(err error, events ...core.Event) Behavior {
	return func(ctx context.Context, input string, emit func(core.Event) error) error {
		if e := Emit(events...)(ctx, input, emit); e != nil {
			return e
		}
		return err
	}
}

// Block returns a Behavior that emits events and then waits for cancellation.
// started, when non-nil, is closed once the events are delivered.
func Block(started chan<- struct{}, events ...core.Event) Behavior {
	return func(ctx context.Context, input string, emit func(core.Event) error) error {
		if e := Emit(events...)(ctx, input, emit); e != nil {
			return e
		}
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

// PanickingCapability panics inside Run itself.
type PanickingCapability struct{ Name string }

// Info implements core.Capability.
func (p PanickingCapability) Info() core.CapabilityInfo {
	return core.CapabilityInfo{Name: p.Name, Kind: core.KindManaged}
}

// Run implements core.Capability.
func (p PanickingCapability) Run(context.Context, string) (<-chan core.Event, <-chan error) {
	panic("capability exploded")
}

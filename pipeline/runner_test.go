package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func reply(name, text string) *testutil.ScriptedCapability {
	return testutil.NewCapability(name, testutil.Reply(name, func(string) string { return text }))
}

func mustBuild(t *testing.T, caps ...core.Capability) *Pipeline {
	t.Helper()
	p, err := BuildFromCapabilities(caps)
	require.NoError(t, err)
	return p
}

func drain(updates <-chan core.RunUpdate, errs <-chan error) ([]core.RunUpdate, error) {
	var out []core.RunUpdate
	for u := range updates {
		out = append(out, u)
	}
	return out, <-errs
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build()
	assert.ErrorIs(t, err, core.ErrEmptyPipeline)

	_, err = BuildFromCapabilities(nil)
	assert.ErrorIs(t, err, core.ErrEmptyPipeline)
}

func TestBuild_OutputIsLast(t *testing.T) {
	p := mustBuild(t, reply("A", "a"), reply("B", "b"))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "B", p.Output().ID())
	assert.Equal(t, []string{"A", "B"}, []string{p.Executors()[0].ID(), p.Executors()[1].ID()})
}

func TestRunner_Run_TwoSteps(t *testing.T) {
	x := reply("AgentX", "r1")
	y := testutil.NewCapability("AgentY", testutil.Reply("AgentY", func(in string) string {
		if in == "r1" {
			return "r2"
		}
		return "unexpected input " + in
	}))
	r := NewRunner(mustBuild(t, x, y))

	resp, err := r.Run(context.Background(), "t1")
	require.NoError(t, err)

	require.Len(t, resp.AgentSteps, 2)
	assert.Equal(t, "AgentX", resp.AgentSteps[0].AgentName)
	assert.Equal(t, "r1", resp.AgentSteps[0].TextOutput)
	assert.Empty(t, resp.AgentSteps[0].ToolCalls)
	assert.Equal(t, "AgentY", resp.AgentSteps[1].AgentName)
	assert.Equal(t, "r2", resp.AgentSteps[1].TextOutput)
	require.NotNil(t, resp.FinalMessage)
	assert.Equal(t, "r2", *resp.FinalMessage)

	assert.Equal(t, []string{"t1"}, x.Inputs())
	assert.Equal(t, []string{"r1"}, y.Inputs())
	assert.Equal(t, StateCompleted, r.State())
}

func TestRunner_Run_FailOpenContinues(t *testing.T) {
	x := testutil.NewCapability("AgentX", testutil.Fail(errors.New("not found")))
	y := reply("AgentY", "still ran")
	r := NewRunner(mustBuild(t, x, y))

	resp, err := r.Run(context.Background(), "t1")
	require.NoError(t, err)

	want := "Error processing AgentX request: not found"
	assert.Equal(t, want, resp.AgentSteps[0].TextOutput)
	assert.Equal(t, []string{want}, y.Inputs())
	assert.Equal(t, "still ran", *resp.FinalMessage)
}

func TestRunner_Run_StepCountAndOrder(t *testing.T) {
	for n := 1; n <= 5; n++ {
		caps := make([]core.Capability, n)
		for i := range caps {
			name := "Agent" + strings.Repeat("I", i+1)
			caps[i] = reply(name, name+" output")
		}
		resp, err := NewRunner(mustBuild(t, caps...)).Run(context.Background(), "in")
		require.NoError(t, err)
		require.Len(t, resp.AgentSteps, n)
		for i, step := range resp.AgentSteps {
			assert.Equal(t, caps[i].Info().Name, step.AgentName)
		}
	}
}

func TestRunner_Run_FinalMessageFallback(t *testing.T) {
	silent := testutil.NewCapability("Silent", testutil.Emit())

	resp, err := NewRunner(mustBuild(t, reply("AgentX", "r1"), silent)).Run(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, resp.FinalMessage)
	assert.Equal(t, "r1", *resp.FinalMessage)

	resp, err = NewRunner(mustBuild(t, testutil.NewCapability("Silent", testutil.Emit()))).Run(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, resp.FinalMessage)
}

func TestRunner_Run_SingleUse(t *testing.T) {
	r := NewRunner(mustBuild(t, reply("AgentX", "r1")))
	_, err := r.Run(context.Background(), "t1")
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	_, errs := r.Stream(context.Background(), "t1")
	assert.ErrorIs(t, <-errs, ErrAlreadyStarted)
	assert.Equal(t, StateCompleted, r.State())
}

// infoBomb panics on every Info call after the first.
type infoBomb struct{ calls atomic.Int32 }

func (b *infoBomb) Info() core.CapabilityInfo {
	if b.calls.Add(1) > 1 {
		panic("info unavailable")
	}
	return core.CapabilityInfo{Name: "Bomb"}
}

func (b *infoBomb) Run(context.Context, string) (<-chan core.Event, <-chan error) {
	panic("not reached")
}

func TestRunner_Run_PanicFails(t *testing.T) {
	r := NewRunner(mustBuild(t, reply("AgentX", "r1"), &infoBomb{}))

	_, err := r.Run(context.Background(), "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline panic")
	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, err, r.Err())
	assert.Len(t, r.Results(), 1)
}

func TestRunner_Stream_Updates(t *testing.T) {
	x := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Call("AgentX", "c1", "lookup", `{"k":1}`),
		testutil.Result("AgentX", "c1", "lookup", "42"),
		testutil.Fragment("AgentX", "r1"),
		testutil.Text("AgentX", "r1"),
	))
	y := reply("AgentY", "r2")

	r := NewRunner(mustBuild(t, x, y), WithRunID("run-42"), WithTracer(noop.NewTracerProvider().Tracer("test")))
	updates, err := drain(r.Stream(context.Background(), "t1"))
	require.NoError(t, err)
	assert.Equal(t, "run-42", r.RunID())

	assert.Equal(t, []core.RunUpdate{
		core.StepStarted{ExecutorID: "AgentX"},
		core.ToolCall{ExecutorID: "AgentX", CallID: "c1", ToolName: "lookup", Arguments: `{"k":1}`},
		core.ToolResult{ExecutorID: "AgentX", CallID: "c1", ToolName: "lookup", Result: "42"},
		core.TextFragment{ExecutorID: "AgentX", Text: "r1"},
		core.StepCompleted{ExecutorID: "AgentX", FinalText: "r1", Result: core.StepResult{
			AgentName:    "AgentX",
			ToolCalls:    []core.ToolCallRecord{{CallID: "c1", ToolName: "lookup", Arguments: `{"k":1}`, Result: core.StringPtr("42")}},
			TextOutput:   "r1",
			FinalMessage: core.StringPtr("r1"),
		}},
		core.StepStarted{ExecutorID: "AgentY"},
		core.TextFragment{ExecutorID: "AgentY", Text: "r2"},
		core.StepCompleted{ExecutorID: "AgentY", FinalText: "r2", Result: core.StepResult{
			AgentName:    "AgentY",
			ToolCalls:    []core.ToolCallRecord{},
			TextOutput:   "r2",
			FinalMessage: core.StringPtr("r2"),
		}},
		core.PipelineOutput{FinalText: core.StringPtr("r2")},
	}, updates)
	assert.Equal(t, StateCompleted, r.State())
	assert.Len(t, r.Results(), 2)
}

func TestRunner_Stream_Cancellation(t *testing.T) {
	started := make(chan struct{})
	third := reply("AgentZ", "r3")
	r := NewRunner(mustBuild(t,
		reply("AgentX", "r1"),
		testutil.NewCapability("AgentY", testutil.Block(started)),
		third,
	), WithEventBuffer(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, errs := r.Stream(ctx, "t1")

	var seen []core.RunUpdate
	for u := range updates {
		seen = append(seen, u)
		if s, ok := u.(core.StepStarted); ok && s.ExecutorID == "AgentY" {
			<-started
			cancel()
		}
	}

	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.Equal(t, core.StepStarted{ExecutorID: "AgentY"}, seen[len(seen)-1])
	assert.Empty(t, third.Inputs())
	assert.Equal(t, StateFailed, r.State())
}

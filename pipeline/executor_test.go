package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingScope returns a scope collecting every update it receives.
func recordingScope() (*Scope, *[]core.RunUpdate) {
	var updates []core.RunUpdate
	s := NewScope("run-1", func(_ context.Context, u core.RunUpdate) error {
		updates = append(updates, u)
		return nil
	}, nil, nil)
	return s, &updates
}

func TestExecutor_Invoke_RelaysFinalText(t *testing.T) {
	c := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Fragment("AgentX", "r"),
		testutil.Fragment("AgentX", "1"),
		testutil.Text("AgentX", "r1"),
	))
	scope, updates := recordingScope()

	out, err := NewExecutor(c).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)
	assert.Equal(t, "r1", out)
	assert.Equal(t, []string{"t1"}, c.Inputs())

	assert.Equal(t, []core.RunUpdate{
		core.StepStarted{ExecutorID: "AgentX"},
		core.TextFragment{ExecutorID: "AgentX", Text: "r"},
		core.TextFragment{ExecutorID: "AgentX", Text: "1"},
		core.StepCompleted{ExecutorID: "AgentX", FinalText: "r1", Result: core.StepResult{
			AgentName:    "AgentX",
			ToolCalls:    []core.ToolCallRecord{},
			TextOutput:   "r1",
			FinalMessage: core.StringPtr("r1"),
		}},
	}, *updates)

	results := scope.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].TextOutput)
	require.NotNil(t, results[0].FinalMessage)
	assert.Equal(t, "r1", *results[0].FinalMessage)
	assert.Empty(t, results[0].ToolCalls)
	assert.NotNil(t, results[0].ToolCalls)
}

func TestExecutor_Invoke_MessageWithoutFragmentsIsAppended(t *testing.T) {
	c := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Text("AgentX", "checking. "),
		testutil.Call("AgentX", "c1", "lookup", `{}`),
		testutil.Result("AgentX", "c1", "lookup", "ok"),
		testutil.Fragment("AgentX", "done"),
		testutil.Text("AgentX", "done"),
	))
	scope, _ := recordingScope()

	out, err := NewExecutor(c).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, "checking. done", scope.Results()[0].TextOutput)
}

func TestExecutor_Invoke_ToolResultCorrelation(t *testing.T) {
	c := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Call("AgentX", "", "lookup", `{"key":"a"}`),
		testutil.Result("AgentX", "", "lookup", "42"),
		testutil.Text("AgentX", "answer is 42"),
	))
	scope, updates := recordingScope()

	_, err := NewExecutor(c).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)

	steps := scope.Results()
	require.Len(t, steps[0].ToolCalls, 1)
	rec := steps[0].ToolCalls[0]
	assert.Equal(t, "lookup", rec.ToolName)
	assert.Equal(t, `{"key":"a"}`, rec.Arguments)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "42", *rec.Result)

	assert.Equal(t, core.ToolCall{ExecutorID: "AgentX", ToolName: "lookup", Arguments: `{"key":"a"}`}, (*updates)[1])
	assert.Equal(t, core.ToolResult{ExecutorID: "AgentX", ToolName: "lookup", Result: "42"}, (*updates)[2])
}

func TestExecutor_Invoke_DropsUnmatchedResult(t *testing.T) {
	c := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Result("AgentX", "", "orphan", "x"),
		testutil.Text("AgentX", "ok"),
	))
	scope, updates := recordingScope()

	_, err := NewExecutor(c).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)
	for _, u := range *updates {
		_, isResult := u.(core.ToolResult)
		assert.False(t, isResult)
	}
	assert.Empty(t, scope.Results()[0].ToolCalls)
}

func TestExecutor_Invoke_ToolErrorResult(t *testing.T) {
	c := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Call("AgentX", "c1", "get_work_order", `{}`),
		testutil.NewEventBuilder().Author("AgentX").
			FunctionResponse("c1", "get_work_order", nil, errors.New("work order not found")).Build(),
	))
	scope, _ := recordingScope()

	_, err := NewExecutor(c).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)
	assert.Equal(t, `{"error":"work order not found"}`, *scope.Results()[0].ToolCalls[0].Result)
}

func TestExecutor_Invoke_FailOpen(t *testing.T) {
	c := testutil.NewCapability("AgentX", testutil.Fail(errors.New("not found"),
		testutil.Fragment("AgentX", "partial work"),
	))
	scope, updates := recordingScope()

	out, err := NewExecutor(c).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)

	want := "Error processing AgentX request: not found"
	assert.Equal(t, want, out)
	step := scope.Results()[0]
	assert.Equal(t, want, step.TextOutput)
	assert.Equal(t, want, *step.FinalMessage)
	assert.Contains(t, *updates, core.TextFragment{ExecutorID: "AgentX", Text: want})
	completed, ok := (*updates)[len(*updates)-1].(core.StepCompleted)
	require.True(t, ok)
	assert.Equal(t, want, completed.FinalText)
	assert.Equal(t, step, completed.Result)
}

func TestExecutor_Invoke_RecoversPanic(t *testing.T) {
	scope, _ := recordingScope()

	out, err := NewExecutor(testutil.PanickingCapability{Name: "Boom"}).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Error processing Boom request: capability panic: capability exploded", out)
}

func TestExecutor_Invoke_Timeout(t *testing.T) {
	c := testutil.NewCapability("Slow", testutil.Block(nil))
	scope, _ := recordingScope()

	ex := NewExecutor(c, func(o *ExecutorOptions) { o.Timeout = 20 * time.Millisecond })
	out, err := ex.Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Error processing Slow request: step timed out after 20ms", out)
}

func TestExecutor_Invoke_Cancelled(t *testing.T) {
	started := make(chan struct{})
	c := testutil.NewCapability("AgentX", testutil.Block(started, testutil.Fragment("AgentX", "thinking")))
	scope, updates := recordingScope()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := NewExecutor(c).Invoke(ctx, scope, "t1")
	assert.ErrorIs(t, err, context.Canceled)

	for _, u := range *updates {
		_, completed := u.(core.StepCompleted)
		assert.False(t, completed)
	}
	require.Len(t, scope.Results(), 1)
	assert.Equal(t, "thinking", scope.Results()[0].TextOutput)
}

func TestCorrelate(t *testing.T) {
	r := "done"
	records := []core.ToolCallRecord{
		{CallID: "a", ToolName: "lookup"},
		{CallID: "b", ToolName: "lookup"},
		{CallID: "c", ToolName: "store", Result: &r},
		{CallID: "d", ToolName: "search"},
	}

	tests := []struct {
		name string
		fr   core.FunctionResponse
		want int
	}{
		{"call id wins", core.FunctionResponse{ID: "a", Name: "lookup"}, 0},
		{"last unresolved with same name", core.FunctionResponse{Name: "lookup"}, 1},
		{"unknown id never takes an identified call", core.FunctionResponse{ID: "zz", Name: "lookup"}, -1},
		{"resolved records are skipped", core.FunctionResponse{Name: "store"}, -1},
		{"nameless takes last unresolved", core.FunctionResponse{}, 3},
		{"unknown name is dropped", core.FunctionResponse{Name: "other"}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, correlate(records, tt.fr))
		})
	}

	mixed := []core.ToolCallRecord{
		{CallID: "a", ToolName: "lookup"},
		{ToolName: "lookup"},
	}
	assert.Equal(t, 1, correlate(mixed, core.FunctionResponse{ID: "zz", Name: "lookup"}))
}

func TestExecutor_Invoke_DuplicateResultKeepsOtherCallOpen(t *testing.T) {
	c := testutil.NewCapability("AgentX", testutil.Emit(
		testutil.Call("AgentX", "c1", "lookup", `{"k":1}`),
		testutil.Result("AgentX", "c1", "lookup", "first"),
		testutil.Call("AgentX", "c2", "lookup", `{"k":2}`),
		testutil.Result("AgentX", "c1", "lookup", "again"),
		testutil.Text("AgentX", "ok"),
	))
	scope, updates := recordingScope()

	_, err := NewExecutor(c).Invoke(context.Background(), scope, "t1")
	require.NoError(t, err)

	calls := scope.Results()[0].ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, "first", *calls[0].Result)
	assert.Nil(t, calls[1].Result)

	var results int
	for _, u := range *updates {
		if _, ok := u.(core.ToolResult); ok {
			results++
		}
	}
	assert.Equal(t, 1, results)
}

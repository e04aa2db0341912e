package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/model"
	"github.com/hupe1980/factoryops/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockModelImpl lets tests control Generate through testify expectations.
type MockModelImpl struct{ mock.Mock }

func (m *MockModelImpl) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)
	return args.Get(0).(<-chan model.Response), args.Get(1).(<-chan error)
}

func (m *MockModelImpl) Info() model.Info {
	return model.Info{Name: "mock", Provider: "mock"}
}

func collect(t *testing.T, c core.Capability, input string) ([]core.Event, error) {
	t.Helper()
	events, errs := c.Run(context.Background(), input)
	var out []core.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out, <-errs
}

func lookupTool(fn func(args map[string]any) (any, error)) tool.Tool {
	return tool.NewFunctionTool("lookup", "Look up a key", map[string]any{
		"type":       "object",
		"properties": map[string]any{"key": map[string]any{"type": "string"}},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return fn(args)
	})
}

func TestManagedAgent_Run_TextOnly(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(model.Turn{Text: "hi"})
	a := NewManagedAgent("AgentX", llm)

	events, err := collect(t, a, "t1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].IsPartial())
	assert.Equal(t, "h", events[0].Text())
	assert.Equal(t, "i", events[1].Text())
	assert.False(t, events[2].IsPartial())
	assert.Equal(t, "hi", events[2].Text())
	assert.Equal(t, "AgentX", events[2].Author)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Contents, 1)
	assert.Equal(t, "t1", reqs[0].Contents[0].Text())
	assert.Equal(t, core.RoleUser, reqs[0].Contents[0].Role)
}

func TestManagedAgent_Run_NonStreaming(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(model.Turn{Text: "complete"})
	a := NewManagedAgent("AgentX", llm, func(o *ManagedOptions) { o.EnableStreaming = false })

	events, err := collect(t, a, "t1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "complete", events[0].Text())
}

func TestManagedAgent_Run_ToolLoop(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(
		model.Turn{ToolCalls: []core.FunctionCall{{ID: "c1", Name: "lookup", Arguments: `{"key":"a"}`}}},
		model.Turn{Text: "ok"},
	)
	var gotKey any
	a := NewManagedAgent("AgentX", llm, func(o *ManagedOptions) {
		o.EnableStreaming = false
		o.Tools = []tool.Tool{lookupTool(func(args map[string]any) (any, error) {
			gotKey = args["key"]
			return "42", nil
		})}
	})

	events, err := collect(t, a, "t1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	calls := events[0].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "lookup", calls[0].Name)
	assert.Equal(t, `{"key":"a"}`, calls[0].Arguments)

	resps := events[1].GetFunctionResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, "c1", resps[0].ID)
	assert.Equal(t, "42", resps[0].Response)
	assert.Empty(t, resps[0].Error)
	assert.Equal(t, "a", gotKey)

	assert.Equal(t, "ok", events[2].Text())

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Contents, 3)
	assert.Equal(t, core.RoleAssistant, reqs[1].Contents[1].Role)
	assert.Equal(t, core.RoleTool, reqs[1].Contents[2].Role)
	assert.Equal(t, []string{"lookup"}, a.Tools())
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "lookup", reqs[0].Tools[0].Function.Name)
}

func TestManagedAgent_Run_AssignsMissingCallIDs(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(
		model.Turn{ToolCalls: []core.FunctionCall{{Name: "lookup"}}},
		model.Turn{Text: "ok"},
	)
	a := NewManagedAgent("AgentX", llm, func(o *ManagedOptions) {
		o.EnableStreaming = false
		o.Tools = []tool.Tool{lookupTool(func(map[string]any) (any, error) { return 1, nil })}
	})

	events, err := collect(t, a, "t1")
	require.NoError(t, err)
	callID := events[0].GetFunctionCalls()[0].ID
	assert.NotEmpty(t, callID)
	assert.Equal(t, callID, events[1].GetFunctionResponses()[0].ID)
}

func TestManagedAgent_Run_ToolFailuresBecomeResponses(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(
		model.Turn{ToolCalls: []core.FunctionCall{
			{ID: "c1", Name: "lookup", Arguments: `{}`},
			{ID: "c2", Name: "missing", Arguments: `{}`},
			{ID: "c3", Name: "lookup", Arguments: `not json`},
		}},
		model.Turn{Text: "recovered"},
	)
	a := NewManagedAgent("AgentX", llm, func(o *ManagedOptions) {
		o.EnableStreaming = false
		o.Tools = []tool.Tool{lookupTool(func(map[string]any) (any, error) { panic("kaboom") })}
	})

	events, err := collect(t, a, "t1")
	require.NoError(t, err)
	require.Len(t, events, 5)

	assert.Contains(t, events[1].GetFunctionResponses()[0].Error, "kaboom")
	assert.Equal(t, "tool missing not found", events[2].GetFunctionResponses()[0].Error)
	assert.Contains(t, events[3].GetFunctionResponses()[0].Error, "failed to unmarshal args")
	assert.Equal(t, "recovered", events[4].Text())
}

func TestManagedAgent_Run_MaxTurns(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	call := model.Turn{ToolCalls: []core.FunctionCall{{ID: "c", Name: "lookup"}}}
	llm.Script(call, call, call)
	a := NewManagedAgent("AgentX", llm, func(o *ManagedOptions) {
		o.EnableStreaming = false
		o.MaxTurns = 2
		o.Tools = []tool.Tool{lookupTool(func(map[string]any) (any, error) { return "v", nil })}
	})

	_, err := collect(t, a, "t1")
	assert.ErrorIs(t, err, ErrMaxTurnsExceeded)
	assert.Len(t, llm.Requests(), 2)
}

func TestManagedAgent_Run_ModelError(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(model.Turn{Err: errors.New("rate limited")})
	a := NewManagedAgent("AgentX", llm)

	events, err := collect(t, a, "t1")
	assert.Empty(t, events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestManagedAgent_Run_NoFinalResponse(t *testing.T) {
	respCh := make(chan model.Response)
	errCh := make(chan error)
	close(respCh)
	close(errCh)

	llm := &MockModelImpl{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return((<-chan model.Response)(respCh), (<-chan error)(errCh))

	a := NewManagedAgent("AgentX", llm)
	_, err := collect(t, a, "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no final response")
	llm.AssertExpectations(t)
}

func TestManagedAgent_Run_RendersInstructions(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(model.Turn{Text: "ok"})
	a := NewManagedAgent("FaultDiagnosisAgent", llm, func(o *ManagedOptions) {
		o.Instruction = NewInstructionFromText("You are {{.Name}}.")
	})

	_, err := collect(t, a, "t1")
	require.NoError(t, err)
	assert.Equal(t, "You are FaultDiagnosisAgent.", llm.Requests()[0].Instructions)
}

func TestManagedAgent_Run_Cancelled(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Script(model.Turn{Text: "a long streamed answer"})
	a := NewManagedAgent("AgentX", llm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events, errs := a.Run(ctx, "t1")
	for range events {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestManagedAgent_Info(t *testing.T) {
	a := NewManagedAgent("AgentX", model.NewMockModel("m", "mock"), func(o *ManagedOptions) {
		o.ID = "agent-1"
		o.Description = "desc"
	})
	assert.Equal(t, core.CapabilityInfo{Name: "AgentX", ID: "agent-1", Kind: core.KindManaged, Description: "desc"}, a.Info())
}

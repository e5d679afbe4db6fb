package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/dopus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScriptedProvider_ReplaysTurns(t *testing.T) {
	p := NewScriptedProvider(
		Turn{Calls: []dopus.ToolCall{CallWithID("c1", "add", dopus.Args{"a": 1})}},
		Turn{Calls: []dopus.ToolCall{Call("add", nil)}},
	)
	ctx := context.Background()

	resp, err := p.Request(ctx, nil, nil, []string{"add"}, "sys")
	require.NoError(t, err)
	calls := p.ToolCalls(resp)
	require.Len(t, calls, 1)
	call, err := p.ExtractToolCall(calls[0])
	require.NoError(t, err)
	assert.Equal(t, "c1", call.ID)
	assert.Equal(t, "add", call.Name)

	resp, err = p.Request(ctx, nil, nil, nil, "")
	require.NoError(t, err)
	call, err = p.ExtractToolCall(p.ToolCalls(resp)[0])
	require.NoError(t, err)
	assert.NotEmpty(t, call.ID)

	resp, err = p.Request(ctx, nil, nil, nil, "")
	require.NoError(t, err)
	assert.Empty(t, p.ToolCalls(resp))

	reqs := p.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"add"}, reqs[0].Tools)
	assert.Equal(t, "sys", reqs[0].SystemPrompt)
}

func TestScriptedProvider_ErrorAndRaw(t *testing.T) {
	boom := errors.New("boom")
	p := NewScriptedProvider(Turn{Err: boom}, Turn{Raw: []any{"garbage"}})
	_, err := p.Request(context.Background(), nil, nil, nil, "")
	require.ErrorIs(t, err, boom)

	resp, err := p.Request(context.Background(), nil, nil, nil, "")
	require.NoError(t, err)
	raw := p.ToolCalls(resp)
	require.Len(t, raw, 1)
	_, err = p.ExtractToolCall(raw[0])
	require.ErrorIs(t, err, dopus.ErrNoToolCall)
}

func TestScriptedProvider_BuildLog(t *testing.T) {
	p := NewScriptedProvider(Turn{Calls: []dopus.ToolCall{CallWithID("c1", "add", dopus.Args{"a": 1})}})
	resp, err := p.Request(context.Background(), nil, nil, []string{"add"}, "")
	require.NoError(t, err)
	a := p.BuildLog(resp, nil, 5, []string{"add"}, nil)
	assert.Equal(t, "step_1", a.ID)
	assert.Equal(t, "scripted", a.Model)
	require.NotNil(t, a.ToolCalled)
	assert.Equal(t, "c1", a.ToolCalled.ID)
	assert.Equal(t, 5, a.ToolCalled.Result)
}

func TestMockTool(t *testing.T) {
	m := &MockTool{
		NameVal:   "test_tool",
		DescVal:   "For tests",
		ParamsVal: []dopus.Param{dopus.RequiredParam("x", dopus.Integer("x"))},
		Result:    "done",
	}
	d := m.Descriptor()
	assert.Equal(t, "test_tool", d.ID())
	assert.Equal(t, "For tests", d.Description())
	out, err := d.Handler()(context.Background(), dopus.Args{"x": 1, "extra": true})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	require.Len(t, m.Calls(), 1)
	assert.Equal(t, dopus.Args{"x": 1}, m.Calls()[0])
}

func TestNewTestRegistry(t *testing.T) {
	m := &MockTool{NameVal: "m"}
	reg := NewTestRegistry(m.Descriptor())
	assert.True(t, reg.Contains("m"))
	assert.NotSame(t, dopus.DefaultRegistry(), reg)
}

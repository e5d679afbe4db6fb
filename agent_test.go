package dopus_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/dopus"
	"github.com/skosovsky/dopus/testutil"
)

// counterAgent declares its tools as closures over its own state.
type counterAgent struct {
	total int
	stop  func(any)
}

func (c *counterAgent) Prompt() string { return "You keep a running total." }

func (c *counterAgent) Tools() []*dopus.Descriptor {
	type incArgs struct {
		By int `json:"by" description:"amount to add"`
	}
	return []*dopus.Descriptor{
		dopus.MustTool("increment", "Add to the total.", func(_ context.Context, in incArgs) (int, error) {
			c.total += in.By
			return c.total, nil
		}, dopus.WithQualifiedName("counterAgent.increment")),
		dopus.Define("finish", "End the session.", nil, func(context.Context, dopus.Args) (any, error) {
			c.stop(c.total)
			return nil, nil
		}),
	}
}

func TestAgent_RunWithDeclaredTools(t *testing.T) {
	behavior := &counterAgent{}
	p := testutil.NewScriptedProvider(
		testutil.Turn{Calls: []dopus.ToolCall{testutil.CallWithID("c1", "counterAgent_increment", dopus.Args{"by": float64(2)})}},
		testutil.Turn{Calls: []dopus.ToolCall{testutil.CallWithID("c2", "counterAgent_increment", dopus.Args{"by": float64(5)})}},
		testutil.Turn{Calls: []dopus.ToolCall{testutil.CallWithID("c3", "finish", nil)}},
		testutil.Turn{Calls: []dopus.ToolCall{testutil.CallWithID("c4", "counterAgent_increment", dopus.Args{"by": float64(100)})}},
	)
	agent := dopus.NewAgent(p, behavior, dopus.WithRegistry(dopus.NewRegistry()))
	behavior.stop = agent.Stop

	assert.Equal(t, "counterAgent", agent.Name())
	assert.Equal(t, []string{"counterAgent_increment", "finish"}, agent.Engine().ActiveTools())

	res, err := agent.Run(context.Background(), "count to seven")
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 7, res.Value)
	assert.Len(t, res.Actions, 3)
	assert.Equal(t, res.Actions, agent.Actions())

	msgs := agent.Conversation().Messages()
	require.Len(t, msgs, 7)
	assert.Equal(t, "count to seven", msgs[0].Content)
	for i := 1; i < len(msgs); i += 2 {
		call := msgs[i].Content.(dopus.ToolCallContent)
		result := msgs[i+1].Content.(dopus.ToolResultContent)
		assert.Equal(t, call.ID, result.ID)
	}
	assert.Equal(t, dopus.ToolResultContent{ID: "c3", Result: ""}, msgs[6].Content)

	assert.Equal(t, "You keep a running total.", p.Requests()[0].SystemPrompt)
	assert.Equal(t, []any{7}, p.Stops())
}

func TestAgent_ToolErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := testutil.NewScriptedProvider(testutil.Turn{Calls: []dopus.ToolCall{testutil.Call("missing", nil)}})
	agent := dopus.NewAgent(p, nil, dopus.WithRegistry(dopus.NewRegistry()), dopus.WithAgentLogger(logger))

	_, err := agent.Run(context.Background(), "hi")
	require.NoError(t, err)
	want := "Error calling tool: missing. Are you sure the tool is loaded?"
	assert.Equal(t, want, agent.LastToolError())
	assert.Contains(t, buf.String(), want)
	// The user message, then the unanswered call paired with an empty result.
	msgs := agent.Conversation().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, dopus.MessageToolCall, msgs[1].Type)
	assert.Equal(t, dopus.MessageToolResult, msgs[2].Type)
	assert.Nil(t, msgs[2].Content.(dopus.ToolResultContent).Result)

	agent.Reset()
	assert.Empty(t, agent.LastToolError())
	assert.Empty(t, agent.Conversation().Messages())
}

func TestAgent_FailureFeedback(t *testing.T) {
	mock := &testutil.MockTool{NameVal: "flaky", Err: errors.New("timeout")}
	p := testutil.NewScriptedProvider(testutil.Turn{Calls: []dopus.ToolCall{testutil.Call("flaky", nil)}})
	agent := dopus.NewAgent(p, nil,
		dopus.WithRegistry(dopus.NewRegistry()),
		dopus.WithFailureFeedback(),
		dopus.WithName("helper"),
	)
	agent.AddTool(mock.Descriptor())

	_, err := agent.Run(context.Background(), "go")
	require.NoError(t, err)
	msgs := agent.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, dopus.RoleUser, msgs[1].Role)
	assert.Equal(t, "Error calling tool: flaky. Are you sure the tool is loaded?", msgs[1].Content)
	assert.Equal(t, "helper", agent.Name())
}

func TestAgent_OnToolUse(t *testing.T) {
	mock := &testutil.MockTool{NameVal: "lookup", Result: "base"}
	p := testutil.NewScriptedProvider(testutil.Turn{Calls: []dopus.ToolCall{testutil.Call("lookup", nil)}})
	agent := dopus.NewAgent(p, nil, dopus.WithRegistry(dopus.NewRegistry()))

	assert.False(t, agent.OnToolUse("lookup", func(context.Context, dopus.Args) (any, error) { return "x", nil }))
	agent.AddTools(mock.Descriptor())
	var notified bool
	assert.True(t, agent.OnToolUse("lookup", func(context.Context, dopus.Args) (any, error) {
		notified = true
		return "override", nil
	}))

	res, err := agent.Run(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, notified)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "override", res.Actions[0].ToolCalled.Result)
	assert.Len(t, agent.Conversation().Messages(), 2)
}

func TestAgent_AddToolReplacesHandler(t *testing.T) {
	v1 := &testutil.MockTool{NameVal: "quote", Result: "v1"}
	v2 := &testutil.MockTool{NameVal: "quote", Result: "v2"}
	p := testutil.NewScriptedProvider(testutil.Turn{Calls: []dopus.ToolCall{testutil.Call("quote", nil)}})
	agent := dopus.NewAgent(p, nil, dopus.WithRegistry(dopus.NewRegistry()))
	agent.AddTool(v1.Descriptor())
	agent.AddTool(v2.Descriptor())

	res, err := agent.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, v1.Calls())
	assert.Len(t, v2.Calls(), 1)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "v2", res.Actions[0].ToolCalled.Result)
}

func TestAgent_RemoveTool(t *testing.T) {
	mock := &testutil.MockTool{NameVal: "gone"}
	agent := dopus.NewAgent(testutil.NewScriptedProvider(), nil, dopus.WithRegistry(dopus.NewRegistry()))
	agent.AddTool(mock.Descriptor())
	agent.RemoveTool("gone")
	assert.Empty(t, agent.Engine().ActiveTools())
	assert.True(t, agent.Engine().Registry().Contains("gone"))
}

func TestAgent_WithEngineAndConversation(t *testing.T) {
	conv := dopus.NewConversation()
	conv.Append(dopus.RoleUser, "earlier")
	engine := dopus.NewEngine(dopus.NewRegistry(), dopus.WithMaxSteps(1))
	p := testutil.NewScriptedProvider()
	agent := dopus.NewAgent(p, staticPrompt("sys"), dopus.WithEngine(engine), dopus.WithConversation(conv))

	assert.Same(t, engine, agent.Engine())
	assert.Same(t, conv, agent.Conversation())
	assert.Equal(t, "sys", agent.Prompt())
	_, err := agent.Run(context.Background(), "now")
	require.NoError(t, err)
	require.Len(t, p.Requests(), 1)
	assert.Len(t, p.Requests()[0].Messages, 2)
}

func TestAgent_StopIsForwardedToProvider(t *testing.T) {
	p := testutil.NewScriptedProvider()
	agent := dopus.NewAgent(p, nil, dopus.WithRegistry(dopus.NewRegistry()))
	_, err := agent.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, p.Stops())
	assert.Empty(t, agent.Prompt())
}

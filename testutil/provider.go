// Package testutil provides test helpers for dopus: a scripted provider, mock tools and
// isolated registries.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skosovsky/dopus"
)

// Turn is the scripted answer to one provider request.
type Turn struct {
	Calls  []dopus.ToolCall // tool calls requested by the "model"; empty ends the loop
	Raw    []any            // when set, returned by ToolCalls instead of Calls
	Err    error            // request failure
	Before func()           // runs inside Request, before the turn is answered
}

// Request records what the engine sent.
type Request struct {
	Messages     []dopus.Message
	Tools        []string
	SystemPrompt string
}

// Response is the value ScriptedProvider.Request returns.
type Response struct {
	Step int
	Turn Turn
}

// ScriptedProvider replays turns in order. Once the script is exhausted it answers with no
// tool call. Calls without an ID get a random one.
type ScriptedProvider struct {
	Model string

	mu       sync.Mutex
	turns    []Turn
	requests []Request
	stops    []any
}

// NewScriptedProvider returns a provider answering with turns.
func NewScriptedProvider(turns ...Turn) *ScriptedProvider {
	return &ScriptedProvider{Model: "scripted", turns: turns}
}

// Request implements dopus.Provider.
func (p *ScriptedProvider) Request(
	_ context.Context,
	messages []dopus.Message,
	_ *dopus.Registry,
	tools []string,
	systemPrompt string,
) (any, error) {
	p.mu.Lock()
	p.requests = append(p.requests, Request{Messages: messages, Tools: tools, SystemPrompt: systemPrompt})
	step := len(p.requests)
	var turn Turn
	if len(p.turns) > 0 {
		turn = p.turns[0]
		p.turns = p.turns[1:]
	}
	p.mu.Unlock()

	if turn.Before != nil {
		turn.Before()
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	calls := make([]dopus.ToolCall, len(turn.Calls))
	for i, c := range turn.Calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		calls[i] = c
	}
	turn.Calls = calls
	return &Response{Step: step, Turn: turn}, nil
}

// ToolCalls implements dopus.Provider.
func (p *ScriptedProvider) ToolCalls(response any) []any {
	r, ok := response.(*Response)
	if !ok || r == nil {
		return nil
	}
	if r.Turn.Raw != nil {
		return r.Turn.Raw
	}
	out := make([]any, len(r.Turn.Calls))
	for i, c := range r.Turn.Calls {
		out[i] = c
	}
	return out
}

// ExtractToolCall implements dopus.Provider. Only dopus.ToolCall values are calls.
func (p *ScriptedProvider) ExtractToolCall(raw any) (dopus.ToolCall, error) {
	switch c := raw.(type) {
	case dopus.ToolCall:
		return c, nil
	case *dopus.ToolCall:
		if c != nil {
			return *c, nil
		}
	}
	return dopus.ToolCall{}, fmt.Errorf("%w: %T", dopus.ErrNoToolCall, raw)
}

// BuildLog implements dopus.Provider.
func (p *ScriptedProvider) BuildLog(
	response any,
	messages []dopus.Message,
	result any,
	tools []string,
	_ dopus.Prompter,
) dopus.Action {
	a := dopus.Action{
		Model:          p.Model,
		Created:        time.Now(),
		Messages:       messages,
		AvailableTools: tools,
	}
	r, ok := response.(*Response)
	if !ok || r == nil {
		return a
	}
	a.ID = fmt.Sprintf("step_%d", r.Step)
	if len(r.Turn.Calls) > 0 {
		c := r.Turn.Calls[0]
		a.ToolCalled = &dopus.CalledTool{ID: c.ID, Name: c.Name, Args: c.Args, Result: result}
	}
	return a
}

// OnStop implements dopus.Stopper; values are available through Stops.
func (p *ScriptedProvider) OnStop(_ *dopus.Conversation, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops = append(p.stops, value)
}

// Requests returns the requests received so far.
func (p *ScriptedProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

// Stops returns the values OnStop was called with.
func (p *ScriptedProvider) Stops() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.stops...)
}

// Call is a ToolCall without an ID (the provider assigns one).
func Call(name string, args dopus.Args) dopus.ToolCall {
	return dopus.ToolCall{Name: name, Args: args}
}

// CallWithID is a ToolCall with a fixed ID.
func CallWithID(id, name string, args dopus.Args) dopus.ToolCall {
	return dopus.ToolCall{ID: id, Name: name, Args: args}
}

var (
	_ dopus.Provider = (*ScriptedProvider)(nil)
	_ dopus.Stopper  = (*ScriptedProvider)(nil)
)

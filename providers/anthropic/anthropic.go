// Package anthropic adapts the Anthropic messages API to dopus.Provider.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skosovsky/dopus"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

// WaitingMessage is appended as an assistant message when a loop ends.
const WaitingMessage = "Waiting for user input..."

// MessagesClient is the part of the SDK's message service the provider needs.
// Pass &client.Messages for a real client.
type MessagesClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Option configures a Provider.
type Option func(*Provider)

func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithMaxTokens caps the response length. Non-positive values keep the default.
func WithMaxTokens(n int64) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// Provider implements dopus.Provider and dopus.Stopper for Anthropic.
type Provider struct {
	client    MessagesClient
	model     string
	maxTokens int64
	now       func() time.Time
}

// New creates a Provider.
func New(client MessagesClient, opts ...Option) *Provider {
	p := &Provider{client: client, model: DefaultModel, maxTokens: DefaultMaxTokens, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request implements dopus.Provider.
func (p *Provider) Request(
	ctx context.Context,
	messages []dopus.Message,
	registry *dopus.Registry,
	tools []string,
	systemPrompt string,
) (any, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  dopus.FormatMessages(messages, formatter{}),
		Tools:     toolDefinitions(registry, tools),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(params.Tools) > 0 {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: anthropic.Bool(true)},
		}
	}
	msg, err := p.client.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return msg, nil
}

// ToolCalls implements dopus.Provider. Raw calls are anthropic.ToolUseBlock values.
func (p *Provider) ToolCalls(response any) []any {
	msg, ok := response.(*anthropic.Message)
	if !ok || msg == nil {
		return nil
	}
	var out []any
	for _, block := range msg.Content {
		if block.Type == "tool_use" {
			out = append(out, anthropic.ToolUseBlock{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	return out
}

// ExtractToolCall implements dopus.Provider.
func (p *Provider) ExtractToolCall(raw any) (dopus.ToolCall, error) {
	block, ok := raw.(anthropic.ToolUseBlock)
	if !ok {
		return dopus.ToolCall{}, fmt.Errorf("%w: %T", dopus.ErrNoToolCall, raw)
	}
	call := dopus.ToolCall{ID: block.ID, Name: block.Name, Args: dopus.Args{}}
	if len(block.Input) == 0 {
		return call, nil
	}
	if err := json.Unmarshal(block.Input, &call.Args); err != nil {
		return call, fmt.Errorf("parse input of %s: %w", block.Name, err)
	}
	return call, nil
}

// BuildLog implements dopus.Provider. The messages API has no creation time, so the
// log is stamped locally.
func (p *Provider) BuildLog(
	response any,
	messages []dopus.Message,
	result any,
	tools []string,
	_ dopus.Prompter,
) dopus.Action {
	a := dopus.Action{Created: p.now(), Messages: messages, AvailableTools: tools}
	msg, ok := response.(*anthropic.Message)
	if !ok || msg == nil {
		return a
	}
	a.ID = msg.ID
	a.Model = string(msg.Model)
	a.Usage = dopus.Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		TotalTokens:  msg.Usage.InputTokens + msg.Usage.OutputTokens,
	}
	a.Extra = map[string]any{"stop_reason": string(msg.StopReason)}
	if calls := p.ToolCalls(msg); len(calls) > 0 {
		call, _ := p.ExtractToolCall(calls[0])
		a.ToolCalled = &dopus.CalledTool{ID: call.ID, Name: call.Name, Args: call.Args, Result: result}
	}
	return a
}

// OnStop implements dopus.Stopper.
func (p *Provider) OnStop(conv *dopus.Conversation, _ any) {
	conv.Append(dopus.RoleAssistant, WaitingMessage)
}

func toolDefinitions(registry *dopus.Registry, ids []string) []anthropic.ToolUnionParam {
	if registry == nil {
		return nil
	}
	descs := registry.Descriptors(ids)
	out := make([]anthropic.ToolUnionParam, 0, len(descs))
	for _, d := range descs {
		schema := d.JSONSchema()
		tool := anthropic.ToolParam{
			Name: d.ID(),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   d.Required(),
			},
		}
		if desc := d.Description(); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

type formatter struct{}

func (formatter) FormatMessage(m dopus.Message) anthropic.MessageParam {
	block := anthropic.NewTextBlock(dopus.ContentString(m.Content))
	if m.Role == dopus.RoleAssistant {
		return anthropic.NewAssistantMessage(block)
	}
	return anthropic.NewUserMessage(block)
}

func (formatter) FormatToolCall(c dopus.ToolCallContent) anthropic.MessageParam {
	input := map[string]any(c.Args)
	if input == nil {
		input = map[string]any{}
	}
	return anthropic.NewAssistantMessage(anthropic.NewToolUseBlock(c.ID, input, c.Name))
}

func (formatter) FormatToolResult(r dopus.ToolResultContent) anthropic.MessageParam {
	return anthropic.NewUserMessage(anthropic.NewToolResultBlock(r.ID, dopus.ContentString(r.Result), false))
}

var (
	_ dopus.Provider = (*Provider)(nil)
	_ dopus.Stopper  = (*Provider)(nil)
)

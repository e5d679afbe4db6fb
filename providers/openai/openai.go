// Package openai adapts the OpenAI chat completions API to dopus.Provider.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/skosovsky/dopus"
)

// DefaultModel is used when WithModel is not given.
const DefaultModel = openai.GPT4o

// ChatClient is the part of *openai.Client the provider needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithToolChoice sets tool_choice when tools are offered: "required" (default), "auto",
// or an openai.ToolChoice naming one function.
func WithToolChoice(choice any) Option {
	return func(p *Provider) { p.toolChoice = choice }
}

// Provider implements dopus.Provider for OpenAI.
type Provider struct {
	client     ChatClient
	model      string
	toolChoice any
}

// New creates a Provider. Use openai.NewClient(apiKey) for a real client.
func New(client ChatClient, opts ...Option) *Provider {
	p := &Provider{client: client, model: DefaultModel, toolChoice: "required"}
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
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: p.messages(messages, systemPrompt),
		Tools:    toolDefinitions(registry, tools),
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = p.toolChoice
		req.ParallelToolCalls = false
	}
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return &resp, nil
}

func (p *Provider) messages(messages []dopus.Message, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	return append(out, dopus.FormatMessages(messages, formatter{})...)
}

// ToolCalls implements dopus.Provider. Raw calls are openai.ToolCall values.
func (p *Provider) ToolCalls(response any) []any {
	resp, ok := response.(*openai.ChatCompletionResponse)
	if !ok || resp == nil || len(resp.Choices) == 0 {
		return nil
	}
	calls := resp.Choices[0].Message.ToolCalls
	out := make([]any, len(calls))
	for i, c := range calls {
		out[i] = c
	}
	return out
}

// ExtractToolCall implements dopus.Provider. Arguments that are not a JSON object are an
// error; the returned call still carries the id and name.
func (p *Provider) ExtractToolCall(raw any) (dopus.ToolCall, error) {
	tc, ok := raw.(openai.ToolCall)
	if !ok {
		return dopus.ToolCall{}, fmt.Errorf("%w: %T", dopus.ErrNoToolCall, raw)
	}
	call := dopus.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: dopus.Args{}}
	if tc.Function.Arguments == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Args); err != nil {
		return call, fmt.Errorf("parse arguments of %s: %w", tc.Function.Name, err)
	}
	return call, nil
}

// BuildLog implements dopus.Provider.
func (p *Provider) BuildLog(
	response any,
	messages []dopus.Message,
	result any,
	tools []string,
	_ dopus.Prompter,
) dopus.Action {
	a := dopus.Action{Messages: messages, AvailableTools: tools}
	resp, ok := response.(*openai.ChatCompletionResponse)
	if !ok || resp == nil {
		return a
	}
	a.ID = resp.ID
	a.Model = resp.Model
	a.Created = time.Unix(resp.Created, 0)
	a.Usage = dopus.Usage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		TotalTokens:  int64(resp.Usage.TotalTokens),
	}
	if resp.SystemFingerprint != "" {
		a.Extra = map[string]any{"system_fingerprint": resp.SystemFingerprint}
	}
	if calls := p.ToolCalls(resp); len(calls) > 0 {
		call, _ := p.ExtractToolCall(calls[0])
		a.ToolCalled = &dopus.CalledTool{ID: call.ID, Name: call.Name, Args: call.Args, Result: result}
	}
	return a
}

// toolDefinitions renders the active tools as strict function definitions where possible.
func toolDefinitions(registry *dopus.Registry, ids []string) []openai.Tool {
	if registry == nil {
		return nil
	}
	descs := registry.Descriptors(ids)
	out := make([]openai.Tool, 0, len(descs))
	for _, d := range descs {
		params := d.JSONSchema()
		strict := allRequired(d.InputSchema())
		if strict {
			closeObjects(params)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.ID(),
				Description: d.Description(),
				Strict:      strict,
				Parameters:  params,
			},
		})
	}
	return out
}

// allRequired reports whether every object property in s, at any depth, is required.
// Strict mode rejects schemas with optional properties.
func allRequired(s *dopus.Schema) bool {
	if s == nil {
		return true
	}
	switch s.Kind {
	case dopus.KindArray:
		return allRequired(s.Items)
	case dopus.KindObject:
		for _, p := range s.Properties {
			if p.Optional || !allRequired(p.Schema) {
				return false
			}
		}
	}
	return true
}

// closeObjects sets additionalProperties=false on every object schema in m.
func closeObjects(m map[string]any) {
	if m["type"] == "object" {
		m["additionalProperties"] = false
	}
	if props, ok := m["properties"].(map[string]any); ok {
		for _, v := range props {
			if sub, ok := v.(map[string]any); ok {
				closeObjects(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		closeObjects(items)
	}
}

type formatter struct{}

func (formatter) FormatMessage(m dopus.Message) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: string(m.Role), Content: dopus.ContentString(m.Content)}
}

func (formatter) FormatToolCall(c dopus.ToolCallContent) openai.ChatCompletionMessage {
	args := "{}"
	if len(c.Args) > 0 {
		if data, err := json.Marshal(c.Args); err == nil {
			args = string(data)
		}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       c.ID,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: c.Name, Arguments: args},
		}},
	}
}

func (formatter) FormatToolResult(r dopus.ToolResultContent) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    dopus.ContentString(r.Result),
		ToolCallID: r.ID,
	}
}

var _ dopus.Provider = (*Provider)(nil)

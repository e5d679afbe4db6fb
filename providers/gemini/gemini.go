// Package gemini adapts the Gemini GenerateContent API to dopus.Provider.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/skosovsky/dopus"
)

const DefaultModel = "gemini-2.5-flash"

// ModelsClient is the part of genai.Models the provider needs. Pass client.Models.
type ModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// Provider implements dopus.Provider for Gemini. Function calling is forced (mode ANY)
// whenever tools are active.
type Provider struct {
	client ModelsClient
	model  string
}

// New creates a Provider.
func New(client ModelsClient, opts ...Option) *Provider {
	p := &Provider{client: client, model: DefaultModel}
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
	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if decls := functionDeclarations(registry, tools); len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny},
		}
	}
	contents := dopus.FormatMessages(messages, &formatter{names: map[string]string{}})
	resp, err := p.client.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return resp, nil
}

// ToolCalls implements dopus.Provider. Raw calls are *genai.FunctionCall. Calls without an
// id get one here so the result can be matched to it later.
func (p *Provider) ToolCalls(response any) []any {
	resp, ok := response.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return nil
	}
	calls := resp.FunctionCalls()
	out := make([]any, len(calls))
	for i, fc := range calls {
		if fc.ID == "" {
			fc.ID = "call_" + uuid.NewString()
		}
		out[i] = fc
	}
	return out
}

// ExtractToolCall implements dopus.Provider.
func (p *Provider) ExtractToolCall(raw any) (dopus.ToolCall, error) {
	fc, ok := raw.(*genai.FunctionCall)
	if !ok || fc == nil {
		return dopus.ToolCall{}, fmt.Errorf("%w: %T", dopus.ErrNoToolCall, raw)
	}
	return dopus.ToolCall{ID: fc.ID, Name: fc.Name, Args: dopus.Args(fc.Args).Clone()}, nil
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
	resp, ok := response.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return a
	}
	a.ID = resp.ResponseID
	a.Model = resp.ModelVersion
	a.Created = resp.CreateTime
	if u := resp.UsageMetadata; u != nil {
		a.Usage = dopus.Usage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
			TotalTokens:  int64(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		a.Extra = map[string]any{"finish_reason": string(resp.Candidates[0].FinishReason)}
	}
	if calls := p.ToolCalls(resp); len(calls) > 0 {
		call, _ := p.ExtractToolCall(calls[0])
		a.ToolCalled = &dopus.CalledTool{ID: call.ID, Name: call.Name, Args: call.Args, Result: result}
	}
	return a
}

func functionDeclarations(registry *dopus.Registry, ids []string) []*genai.FunctionDeclaration {
	if registry == nil {
		return nil
	}
	descs := registry.Descriptors(ids)
	out := make([]*genai.FunctionDeclaration, 0, len(descs))
	for _, d := range descs {
		decl := &genai.FunctionDeclaration{Name: d.ID(), Description: d.Description()}
		if len(d.Params()) > 0 {
			decl.Parameters = toSchema(d.InputSchema())
		}
		out = append(out, decl)
	}
	return out
}

// toSchema converts to Gemini's OpenAPI subset. Property order is kept via PropertyOrdering.
func toSchema(s *dopus.Schema) *genai.Schema {
	if s == nil {
		return &genai.Schema{Type: genai.TypeString}
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(string(s.Kind))),
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		out.Enum = append([]string(nil), s.Enum...)
		out.Format = "enum"
	}
	switch s.Kind {
	case dopus.KindArray:
		out.Items = toSchema(s.Items)
	case dopus.KindObject:
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for _, p := range s.Properties {
			out.Properties[p.Name] = toSchema(p.Schema)
			out.PropertyOrdering = append(out.PropertyOrdering, p.Name)
		}
		out.Required = s.Required()
	}
	return out
}

// formatter remembers call names by id; Gemini function responses are keyed by name.
type formatter struct {
	names map[string]string
}

func (f *formatter) FormatMessage(m dopus.Message) *genai.Content {
	role := genai.Role(genai.RoleUser)
	if m.Role == dopus.RoleAssistant {
		role = genai.RoleModel
	}
	return genai.NewContentFromText(dopus.ContentString(m.Content), role)
}

func (f *formatter) FormatToolCall(c dopus.ToolCallContent) *genai.Content {
	f.names[c.ID] = c.Name
	part := genai.NewPartFromFunctionCall(c.Name, map[string]any(c.Args.Clone()))
	part.FunctionCall.ID = c.ID
	return genai.NewContentFromParts([]*genai.Part{part}, genai.RoleModel)
}

func (f *formatter) FormatToolResult(r dopus.ToolResultContent) *genai.Content {
	part := genai.NewPartFromFunctionResponse(f.names[r.ID], map[string]any{"result": r.Result})
	part.FunctionResponse.ID = r.ID
	return genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser)
}

var _ dopus.Provider = (*Provider)(nil)

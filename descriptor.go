package dopus

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes one tool call. Returning an *ArgumentError marks a coercion failure;
// any other error is an execution failure.
type Handler func(ctx context.Context, args Args) (any, error)

// Descriptor is the immutable description of a tool: identity, name, description,
// parameter list and the handler bound at definition time.
type Descriptor struct {
	id          string
	name        string
	description string
	params      []Param
	handler     Handler

	resolveOnce sync.Once
	resolved    *jsonschema.Resolved
	resolveErr  error
}

// ToolID flattens a qualified name such as "calc.Agent.Add" into a registry key
// ("calc_Agent_Add") that vendors accept as a function name.
func ToolID(qualified string) string {
	return idReplacer.Replace(qualified)
}

var idReplacer = strings.NewReplacer(".", "_", "/", "_", "*", "", "(", "", ")", "")

// Define builds a Descriptor from an explicit parameter list. The handler receives only the
// declared parameters (all arguments when none are declared).
func Define(name, description string, params []Param, handler Handler, opts ...ToolOption) *Descriptor {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	id := name
	if o.id != "" {
		id = o.id
	}
	return &Descriptor{
		id:          id,
		name:        name,
		description: firstLine(description),
		params:      slices.Clone(params),
		handler:     handler,
	}
}

// NewTool builds a Descriptor from a typed function. The parameter list is derived from
// struct T (see SchemaFor) and raw arguments are decoded into T before fn runs; a decoding
// failure is reported as *ArgumentError without calling fn.
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (*Descriptor, error) {
	s, err := SchemaFor[T]("")
	if err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, args Args) (any, error) {
		var in T
		if err := args.DecodeInto(&in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
	return Define(name, description, s.Properties, handler, opts...), nil
}

// MustTool is like NewTool but panics on error. Intended for package-level tool definitions.
func MustTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) *Descriptor {
	d, err := NewTool(name, description, fn, opts...)
	if err != nil {
		panic("dopus: " + name + ": " + err.Error())
	}
	return d
}

func (d *Descriptor) ID() string          { return d.id }
func (d *Descriptor) Name() string        { return d.name }
func (d *Descriptor) Description() string { return d.description }

// Params returns a copy of the ordered parameter list.
func (d *Descriptor) Params() []Param { return slices.Clone(d.params) }

// Parameters maps parameter names to their schemas.
func (d *Descriptor) Parameters() map[string]*Schema {
	out := make(map[string]*Schema, len(d.params))
	for _, p := range d.params {
		out[p.Name] = p.Schema
	}
	return out
}

// Required lists required parameter names in declaration order.
func (d *Descriptor) Required() []string {
	return d.InputSchema().Required()
}

// InputSchema is the object schema of the tool's arguments.
func (d *Descriptor) InputSchema() *Schema {
	return &Schema{Kind: KindObject, Properties: d.params}
}

// JSONSchema renders the argument schema as a plain map for vendor tool definitions.
func (d *Descriptor) JSONSchema() map[string]any {
	return d.InputSchema().Map()
}

// Handler returns the bound handler. When parameters are declared it only sees those keys.
func (d *Descriptor) Handler() Handler {
	if d.handler == nil {
		return nil
	}
	if len(d.params) == 0 {
		return d.handler
	}
	names := make([]string, len(d.params))
	for i, p := range d.params {
		names[i] = p.Name
	}
	return func(ctx context.Context, args Args) (any, error) {
		return d.handler(ctx, args.only(names))
	}
}

// Validate checks args against the argument schema (required fields, types, enums).
// Failures are returned as *ArgumentError.
func (d *Descriptor) Validate(args Args) error {
	d.resolveOnce.Do(func() {
		d.resolved, d.resolveErr = d.InputSchema().JSONSchema().Resolve(nil)
	})
	if d.resolveErr != nil {
		return d.resolveErr
	}
	var v any = map[string]any(args)
	if args == nil {
		v = map[string]any{}
	}
	if err := d.resolved.Validate(v); err != nil {
		return &ArgumentError{Err: err}
	}
	return nil
}

func firstLine(s string) string {
	for line := range strings.Lines(s) {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

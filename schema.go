package dopus

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Kind is the JSON Schema type of a parameter.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Schema describes one tool parameter: a primitive, an array of Items, or an object with
// ordered Properties. Enum restricts a string to the listed values.
type Schema struct {
	Kind        Kind
	Description string
	Enum        []string
	Items       *Schema
	Properties  []Param
}

// Param is a named schema inside a tool's parameter list or an object schema.
type Param struct {
	Name     string
	Schema   *Schema
	Optional bool
}

// RequiredParam returns a required parameter. Tools treat parameters as required unless
// declared with OptionalParam.
func RequiredParam(name string, s *Schema) Param {
	return Param{Name: name, Schema: s}
}

// OptionalParam returns a parameter the model may omit.
func OptionalParam(name string, s *Schema) Param {
	return Param{Name: name, Schema: s, Optional: true}
}

func String(description string) *Schema  { return &Schema{Kind: KindString, Description: description} }
func Integer(description string) *Schema { return &Schema{Kind: KindInteger, Description: description} }
func Number(description string) *Schema  { return &Schema{Kind: KindNumber, Description: description} }
func Boolean(description string) *Schema { return &Schema{Kind: KindBoolean, Description: description} }

// Enum is a string restricted to values.
func Enum(description string, values ...string) *Schema {
	return &Schema{Kind: KindString, Description: description, Enum: slices.Clone(values)}
}

// Array is a list of items.
func Array(description string, items *Schema) *Schema {
	return &Schema{Kind: KindArray, Description: description, Items: items}
}

// Object is a structured value with the given fields, in order.
func Object(description string, fields ...Param) *Schema {
	return &Schema{Kind: KindObject, Description: description, Properties: slices.Clone(fields)}
}

// Required returns the names of non-optional properties in declaration order.
func (s *Schema) Required() []string {
	var out []string
	for _, p := range s.Properties {
		if !p.Optional {
			out = append(out, p.Name)
		}
	}
	return out
}

// JSONSchema converts s to a jsonschema-go schema (used for validation and export).
func (s *Schema) JSONSchema() *jsonschema.Schema {
	if s == nil {
		return &jsonschema.Schema{Type: string(KindString)}
	}
	js := &jsonschema.Schema{
		Type:        string(s.Kind),
		Description: s.Description,
	}
	for _, v := range s.Enum {
		js.Enum = append(js.Enum, v)
	}
	if s.Kind == KindArray {
		js.Items = s.Items.JSONSchema()
	}
	if s.Kind == KindObject {
		js.Properties = make(map[string]*jsonschema.Schema, len(s.Properties))
		for _, p := range s.Properties {
			js.Properties[p.Name] = p.Schema.JSONSchema()
		}
		js.Required = s.Required()
	}
	return js
}

// Map renders s as a plain JSON Schema map, the shape vendors expect for tool parameters.
// Objects always carry "properties" and "required", even when empty.
func (s *Schema) Map() map[string]any {
	data, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return map[string]any{"type": string(s.Kind)}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": string(s.Kind)}
	}
	if s != nil && s.Kind == KindObject {
		if _, ok := out["properties"]; !ok {
			out["properties"] = map[string]any{}
		}
		if _, ok := out["required"]; !ok {
			out["required"] = []any{}
		}
	}
	return out
}

var errNotStruct = errors.New("tool arguments must be a struct")

// SchemaFor derives an object schema from struct type T using jsonschema.For. Field order
// follows the struct; fields tagged omitempty are optional. The description and enum struct
// tags override what jsonschema.For produced. Types it cannot map become strings.
func SchemaFor[T any](description string) (*Schema, error) {
	js, err := jsonschema.For[T](&jsonschema.ForOptions{IgnoreInvalidTypes: true})
	if err != nil {
		return nil, err
	}
	s := fromJSONSchema(js, js, reflect.TypeFor[T]())
	if s.Kind != KindObject {
		return nil, fmt.Errorf("schema for %s: %w", reflect.TypeFor[T](), errNotStruct)
	}
	if description != "" {
		s.Description = description
	}
	return s, nil
}

func fromJSONSchema(root, js *jsonschema.Schema, typ reflect.Type) *Schema {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if js == nil {
		return String("")
	}
	if js.Ref != "" {
		name := strings.TrimPrefix(js.Ref, "#/$defs/")
		if def, ok := root.Defs[name]; ok {
			return fromJSONSchema(root, def, typ)
		}
		return String(js.Description)
	}
	out := &Schema{Kind: kindOf(js), Description: js.Description}
	for _, v := range js.Enum {
		if str, ok := v.(string); ok {
			out.Enum = append(out.Enum, str)
		}
	}
	switch out.Kind {
	case KindArray:
		var elem reflect.Type
		if typ != nil && (typ.Kind() == reflect.Slice || typ.Kind() == reflect.Array) {
			elem = typ.Elem()
		}
		out.Items = fromJSONSchema(root, js.Items, elem)
	case KindObject:
		required := make(map[string]bool, len(js.Required))
		for _, name := range js.Required {
			required[name] = true
		}
		fields := structFields(typ)
		for _, name := range propertyOrder(js, fields) {
			var ft reflect.Type
			var tag reflect.StructTag
			if f, ok := fields[name]; ok {
				ft, tag = f.Type, f.Tag
			}
			ps := fromJSONSchema(root, js.Properties[name], ft)
			if desc := tag.Get("description"); desc != "" {
				ps.Description = desc
			}
			if enum := tag.Get("enum"); enum != "" {
				ps.Enum = nil
				for _, v := range strings.Split(enum, ",") {
					ps.Enum = append(ps.Enum, strings.TrimSpace(v))
				}
			}
			out.Properties = append(out.Properties, Param{Name: name, Schema: ps, Optional: !required[name]})
		}
	}
	return out
}

func kindOf(js *jsonschema.Schema) Kind {
	t := js.Type
	if t == "" {
		for _, candidate := range js.Types {
			if candidate != "null" {
				t = candidate
				break
			}
		}
	}
	switch Kind(t) {
	case KindInteger, KindNumber, KindBoolean, KindArray, KindObject:
		return Kind(t)
	}
	return KindString
}

type structField struct {
	index int
	Type  reflect.Type
	Tag   reflect.StructTag
}

// structFields maps JSON property names to the exported fields of typ.
func structFields(typ reflect.Type) map[string]structField {
	out := map[string]structField{}
	if typ == nil || typ.Kind() != reflect.Struct {
		return out
	}
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		name := jsonName(f)
		if name == "-" {
			continue
		}
		out[name] = structField{index: i, Type: f.Type, Tag: f.Tag}
	}
	return out
}

// propertyOrder lists properties in struct field order, then any extras sorted by name.
func propertyOrder(js *jsonschema.Schema, fields map[string]structField) []string {
	names := make([]string, 0, len(js.Properties))
	for name := range js.Properties {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		fa, oka := fields[a]
		fb, okb := fields[b]
		switch {
		case oka && okb:
			return fa.index - fb.index
		case oka:
			return -1
		case okb:
			return 1
		}
		return strings.Compare(a, b)
	})
	return names
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

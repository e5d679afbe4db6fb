package dopus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Constructors(t *testing.T) {
	s := Object("point",
		RequiredParam("x", Number("x coordinate")),
		OptionalParam("label", String("label")),
		RequiredParam("tags", Array("tags", String(""))),
		RequiredParam("unit", Enum("unit", "cm", "in")),
	)
	assert.Equal(t, KindObject, s.Kind)
	assert.Equal(t, []string{"x", "tags", "unit"}, s.Required())
	assert.Equal(t, KindArray, s.Properties[2].Schema.Kind)
	assert.Equal(t, KindString, s.Properties[2].Schema.Items.Kind)
	assert.Equal(t, []string{"cm", "in"}, s.Properties[3].Schema.Enum)
}

func TestSchema_Map(t *testing.T) {
	s := Object("",
		RequiredParam("a", Integer("first")),
		OptionalParam("mode", Enum("mode", "fast", "slow")),
	)
	m := s.Map()
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []any{"a"}, m["required"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	a, ok := props["a"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", a["type"])
	assert.Equal(t, "first", a["description"])
	mode, ok := props["mode"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"fast", "slow"}, mode["enum"])
}

func TestSchema_MapEmptyObject(t *testing.T) {
	m := Object("").Map()
	assert.Equal(t, map[string]any{}, m["properties"])
	assert.Equal(t, []any{}, m["required"])
}

func TestSchema_JSONSchemaArray(t *testing.T) {
	js := Array("nums", Integer("")).JSONSchema()
	assert.Equal(t, "array", js.Type)
	require.NotNil(t, js.Items)
	assert.Equal(t, "integer", js.Items.Type)
}

type point struct {
	X float64 `json:"x" description:"x coordinate"`
	Y float64 `json:"y"`
}

type drawArgs struct {
	Shape  string   `json:"shape" enum:"circle, square"`
	Size   int      `json:"size" description:"size in pixels"`
	Origin point    `json:"origin"`
	Tags   []string `json:"tags,omitempty"`
	Fill   *bool    `json:"fill,omitempty"`
	secret string
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor[drawArgs]("draw a shape")
	require.NoError(t, err)
	assert.Equal(t, KindObject, s.Kind)
	assert.Equal(t, "draw a shape", s.Description)

	names := make([]string, len(s.Properties))
	for i, p := range s.Properties {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"shape", "size", "origin", "tags", "fill"}, names)
	assert.Equal(t, []string{"shape", "size", "origin"}, s.Required())

	shape := s.Properties[0].Schema
	assert.Equal(t, KindString, shape.Kind)
	assert.Equal(t, []string{"circle", "square"}, shape.Enum)

	size := s.Properties[1].Schema
	assert.Equal(t, KindInteger, size.Kind)
	assert.Equal(t, "size in pixels", size.Description)

	origin := s.Properties[2].Schema
	assert.Equal(t, KindObject, origin.Kind)
	require.Len(t, origin.Properties, 2)
	assert.Equal(t, "x", origin.Properties[0].Name)
	assert.Equal(t, "x coordinate", origin.Properties[0].Schema.Description)
	assert.Equal(t, KindNumber, origin.Properties[1].Schema.Kind)

	tags := s.Properties[3].Schema
	assert.Equal(t, KindArray, tags.Kind)
	assert.Equal(t, KindString, tags.Items.Kind)
	assert.True(t, s.Properties[3].Optional)

	assert.Equal(t, KindBoolean, s.Properties[4].Schema.Kind)
}

func TestSchemaFor_NotStruct(t *testing.T) {
	_, err := SchemaFor[int]("")
	require.ErrorIs(t, err, errNotStruct)
}

package dopus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type location struct {
	City    string `json:"city"`
	Country string `json:"country,omitempty"`
}

type bounded struct {
	N int `json:"n"`
}

func (b bounded) Validate() error {
	if b.N > 10 {
		return errors.New("n must be at most 10")
	}
	return nil
}

func TestArgs_Primitives(t *testing.T) {
	args := Args{"name": "bob", "count": float64(3), "ratio": 0.5, "ok": true}

	s, err := args.String("name")
	require.NoError(t, err)
	assert.Equal(t, "bob", s)

	n, err := args.Int("count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f, err := args.Float("ratio")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)

	b, err := args.Bool("ok")
	require.NoError(t, err)
	assert.True(t, b)

	assert.True(t, args.Has("name"))
	assert.False(t, args.Has("missing"))
}

func TestArgs_Missing(t *testing.T) {
	_, err := Args{}.Int("a")
	var ae *ArgumentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a", ae.Param)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestArgs_WrongType(t *testing.T) {
	_, err := Args{"a": "not a number"}.Int("a")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestArgs_IntRejectsFraction(t *testing.T) {
	_, err := Args{"a": 2.5}.Int("a")
	var ae *ArgumentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a", ae.Param)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "not an integer")

	_, err = Args{"a": float32(-0.25)}.Int("a")
	require.ErrorIs(t, err, ErrInvalidArgument)

	n, err := Args{"a": float64(-7)}.Int("a")
	require.NoError(t, err)
	assert.Equal(t, -7, n)

	n, err = Args{"a": 4}.Int("a")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestArgs_DecodeStruct(t *testing.T) {
	args := Args{"loc": map[string]any{"city": "Oslo"}}
	var loc location
	require.NoError(t, args.Decode("loc", &loc))
	assert.Equal(t, location{City: "Oslo"}, loc)
}

func TestArgs_DecodeStructMissingField(t *testing.T) {
	args := Args{"loc": map[string]any{"country": "NO"}}
	var loc location
	err := args.Decode("loc", &loc)
	var ae *ArgumentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "loc", ae.Param)
	assert.Contains(t, err.Error(), "city")
}

func TestArgs_DecodeValidatable(t *testing.T) {
	var b bounded
	require.NoError(t, Args{"b": map[string]any{"n": 3}}.Decode("b", &b))
	assert.Equal(t, 3, b.N)

	err := Args{"b": map[string]any{"n": 30}}.Decode("b", &b)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "at most 10")
}

func TestArgs_DecodeInto(t *testing.T) {
	var loc location
	require.NoError(t, Args{"city": "Rome", "country": "IT"}.DecodeInto(&loc))
	assert.Equal(t, location{City: "Rome", Country: "IT"}, loc)

	err := Args{"country": "IT"}.DecodeInto(&loc)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestArgs_CloneAndOnly(t *testing.T) {
	args := Args{"a": 1, "b": 2}
	c := args.Clone()
	c["a"] = 9
	assert.Equal(t, 1, args["a"])

	assert.Equal(t, Args{}, Args(nil).Clone())
	assert.Equal(t, Args{"b": 2}, args.only([]string{"b", "z"}))
}

package dopus

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Validatable is implemented by structured argument types that need business validation.
// Called after the value was decoded from the raw arguments.
type Validatable interface {
	Validate() error
}

// Args is the raw argument object of a tool call, as decoded from the provider response.
type Args map[string]any

var (
	errMissing    = errors.New("missing")
	errNotInteger = errors.New("not an integer")
)

// Has reports whether the model supplied name.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns argument name as a string.
func (a Args) String(name string) (string, error) {
	var s string
	return s, a.Decode(name, &s)
}

// Int returns argument name as an int. JSON numbers arrive as float64; one with a
// fractional part is rejected rather than truncated.
func (a Args) Int(name string) (int, error) {
	var f float64
	switch v := a[name].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	}
	if f != math.Trunc(f) {
		return 0, &ArgumentError{Param: name, Err: fmt.Errorf("%w: %v", errNotInteger, a[name])}
	}
	var n int
	return n, a.Decode(name, &n)
}

// Float returns argument name as a float64.
func (a Args) Float(name string) (float64, error) {
	var f float64
	return f, a.Decode(name, &f)
}

// Bool returns argument name as a bool.
func (a Args) Bool(name string) (bool, error) {
	var b bool
	return b, a.Decode(name, &b)
}

// Decode builds the value of argument name into out (a pointer). Structured values are
// constructed from the raw map using json field names; every field not tagged omitempty
// must be present. Failures are returned as *ArgumentError.
func (a Args) Decode(name string, out any) error {
	v, ok := a[name]
	if !ok {
		return &ArgumentError{Param: name, Err: errMissing}
	}
	if err := decodeValue(v, out); err != nil {
		return &ArgumentError{Param: name, Err: err}
	}
	return nil
}

// DecodeInto builds the whole argument object into out, a pointer to a struct.
func (a Args) DecodeInto(out any) error {
	if err := decodeValue(map[string]any(a), out); err != nil {
		return &ArgumentError{Err: err}
	}
	return nil
}

// Clone returns a shallow copy of a.
func (a Args) Clone() Args {
	if a == nil {
		return Args{}
	}
	return maps.Clone(a)
}

// only keeps the entries whose key is in names.
func (a Args) only(names []string) Args {
	out := make(Args, len(names))
	for _, n := range names {
		if v, ok := a[n]; ok {
			out[n] = v
		}
	}
	return out
}

func decodeValue(in, out any) error {
	if err := checkRequiredFields(in, reflect.TypeOf(out)); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "json",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return err
	}
	return runValidation(out)
}

// checkRequiredFields fails when in is a map and the struct behind typ has a field that
// is not tagged omitempty and is absent from the map.
func checkRequiredFields(in any, typ reflect.Type) error {
	m, ok := in.(map[string]any)
	if !ok {
		return nil
	}
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil
	}
	var missing []string
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || strings.Contains(opts, "omitempty") || f.Type.Kind() == reflect.Pointer {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if _, ok := m[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// runValidation calls Validate on out, or on the value it points to for value receivers.
func runValidation(out any) error {
	if v, ok := out.(Validatable); ok {
		return v.Validate()
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		if v, ok := rv.Elem().Interface().(Validatable); ok {
			return v.Validate()
		}
	}
	return nil
}

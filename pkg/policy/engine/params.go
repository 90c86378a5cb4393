package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedParameter is returned when caller parameters cannot be represented.
var ErrMalformedParameter = errors.New("malformed parameter")

// ValueKind identifies the shape of a parameter value.
type ValueKind int

const (
	KindBool ValueKind = iota + 1
	KindNumber
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Value is a parameter value: a bool, a number or a string.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the value's kind.
func (v Value) Kind() ValueKind { return v.kind }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Interface returns the value as a bool, float64 or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == 0 {
		return nil, fmt.Errorf("%w: zero value", ErrMalformedParameter)
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts a JSON boolean, number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out, err := valueOf(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Parameters maps parameter names to values. A missing key is distinct from
// a false or zero value.
type Parameters map[string]Value

// Lookup returns the value for key and whether it is present.
func (p Parameters) Lookup(key string) (Value, bool) {
	v, ok := p[key]
	return v, ok
}

// ParametersFromMap converts decoded input (JSON, YAML, flags) into Parameters.
// Nested objects, arrays and nulls are rejected with ErrMalformedParameter.
func ParametersFromMap(m map[string]any) (Parameters, error) {
	out := make(Parameters, len(m))
	for k, raw := range m {
		v, err := valueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func valueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return number(x)
	case float32:
		return number(float64(x))
	case int:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedParameter, err)
		}
		return number(f)
	case nil:
		return Value{}, fmt.Errorf("%w: null is not a value", ErrMalformedParameter)
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedParameter, raw)
	}
}

func number(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: non-finite number", ErrMalformedParameter)
	}
	return Number(f), nil
}

// ParseParameter parses the "key=value" command-line form. "true" and "false"
// become bools, numeric text becomes a number and anything else a string.
func ParseParameter(s string) (string, Value, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", Value{}, fmt.Errorf("%w: expected key=value, got %q", ErrMalformedParameter, s)
	}
	raw = strings.TrimSpace(raw)

	switch strings.ToLower(raw) {
	case "true":
		return key, Bool(true), nil
	case "false":
		return key, Bool(false), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if v, err := number(f); err == nil {
			return key, v, nil
		}
	}
	return key, String(raw), nil
}

package docpatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a JSON value that a patch operation writes into the document.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  json.Number
	b    bool
	m    map[string]Value
	seq  []Value
}

// Null returns the JSON null value
func Null() Value { return Value{} }

// String returns a string value
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value from its literal form
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// Int returns an integer value
func Int(i int64) Value { return Number(json.Number(strconv.FormatInt(i, 10))) }

// Float returns a floating point value
func Float(f float64) Value {
	return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Mapping returns a mapping value. The map is copied.
func Mapping(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMapping, m: cp}
}

// Sequence returns a sequence value
func Sequence(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, seq: cp}
}

// Kind reports the variant held by v
func (v Value) Kind() Kind { return v.kind }

// Any converts v into a freshly allocated document tree made of
// map[string]any, []any, string, json.Number, bool and nil.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, child := range v.m {
			out[k] = child.Any()
		}
		return out
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, child := range v.seq {
			out[i] = child.Any()
		}
		return out
	default:
		return nil
	}
}

// String renders v as compact JSON
func (v Value) String() string {
	data, err := marshalCompact(v.Any())
	if err != nil {
		return fmt.Sprintf("<invalid %s>", v.kind)
	}
	return string(data)
}

// FromAny converts a decoded JSON or TOML tree into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case time.Time:
		return String(t.Format(time.RFC3339Nano)), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, child := range t {
			cv, err := FromAny(child)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = cv
		}
		return Value{kind: KindMapping, m: m}, nil
	case []any:
		seq := make([]Value, len(t))
		for i, child := range t {
			cv, err := FromAny(child)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			seq[i] = cv
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case []map[string]any:
		seq := make([]Value, len(t))
		for i, child := range t {
			cv, err := FromAny(child)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			seq[i] = cv
		}
		return Value{kind: KindSequence, seq: seq}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// ParseLiteral interprets s as a JSON literal when it parses as one and
// as a plain string otherwise, so `--set a.b=3` writes a number and
// `--set a.b=hello` writes a string.
func ParseLiteral(s string) Value {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil || dec.More() {
		return String(s)
	}
	v, err := FromAny(x)
	if err != nil {
		return String(s)
	}
	return v
}

func marshalCompact(x any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(x); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

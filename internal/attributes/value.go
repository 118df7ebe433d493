package attributes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Field is one key/value member of an object Value.
type Field struct {
	Key   string
	Value Value
}

// Value is a decoded JSON value. Objects keep their keys in insertion order,
// which encoding/json maps do not.
type Value struct {
	kind   Kind
	text   string // string contents or the number literal
	flag   bool
	fields []Field
	items  []Value
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, text: s} }
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value{}, items...)}
}

// Number builds a number value from a JSON number literal.
func Number(literal string) Value { return Value{kind: KindNumber, text: literal} }

// Object builds an object value. Duplicate keys keep the position of the
// first occurrence and the value of the last one.
func Object(fields ...Field) Value {
	v := Value{kind: KindObject, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		v.set(f.Key, f.Value)
	}
	return v
}

// Strings builds an array of string values.
func Strings(ss []string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return Value{kind: KindArray, items: items}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Items() []Value { return v.items }
func (v Value) Fields() []Field { return v.fields }
func (v Value) Len() int {
	switch v.kind {
	case KindObject:
		return len(v.fields)
	case KindArray:
		return len(v.items)
	}
	return 0
}

// Keys returns object keys in order; nil for non-objects.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, len(v.fields))
	for i, f := range v.fields {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the member stored under key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (v *Value) set(key string, val Value) {
	for i := range v.fields {
		if v.fields[i].Key == key {
			v.fields[i].Value = val
			return
		}
	}
	v.fields = append(v.fields, Field{Key: key, Value: val})
}

// Text renders the value the way it appears in a table cell: null becomes
// empty, containers become compact JSON and scalars their plain form.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.text
	case KindNumber:
		return formatNumber(v.text)
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		var buf bytes.Buffer
		v.encode(&buf, true)
		return buf.String()
	}
}

// MarshalJSON encodes the value compactly with object keys in order. Number
// literals are written as they were parsed.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.encode(&buf, false)
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Interface converts the value to plain Go types (map[string]any, []any,
// string, float64, bool, nil). Key order is lost.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindNumber:
		f, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return v.text
		}
		return f
	case KindBool:
		return v.flag
	case KindObject:
		m := make(map[string]any, len(v.fields))
		for _, f := range v.fields {
			m[f.Key] = f.Value.Interface()
		}
		return m
	case KindArray:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Interface()
		}
		return out
	}
	return nil
}

// encode writes compact JSON. canonical prints numbers in their shortest
// form for cell text.
func (v Value) encode(buf *bytes.Buffer, canonical bool) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		writeString(buf, v.text)
	case KindNumber:
		if canonical {
			buf.WriteString(formatNumber(v.text))
		} else {
			buf.WriteString(v.text)
		}
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.flag))
	case KindObject:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, f.Key)
			buf.WriteByte(':')
			f.Value.encode(buf, canonical)
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			it.encode(buf, canonical)
		}
		buf.WriteByte(']')
	}
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
}

// formatNumber prints a number literal in its shortest decimal form, so 1.0
// and 1 render the same.
func formatNumber(literal string) string {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return literal
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// 1e+21 and 1e-7, without zero padded exponents
		s = strings.Replace(s, "e+0", "e+", 1)
		return strings.Replace(s, "e-0", "e-", 1)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Parse decodes a single JSON value.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Value{kind: KindObject, fields: []Field{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				member, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.set(key, member)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return obj, nil
		case '[':
			arr := Value{kind: KindArray, items: []Value{}}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr.items = append(arr.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return arr, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// FromInterface converts plain Go values (as produced by encoding/json or
// structpb) into a Value. Map keys are taken in sorted order.
func FromInterface(x any) (Value, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return Value{}, err
	}
	return Parse(b)
}

// Package payload models schema-less contact form bodies as an ordered list of
// keys mapped to tagged primitive values.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ErrNotObject is returned when a body is valid JSON but not an object.
var ErrNotObject = errors.New("payload: body must be a JSON object")

// Kind tags the JSON type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a single payload value. Nested arrays and objects are kept as raw JSON.
type Value struct {
	kind Kind
	raw  json.RawMessage
	str  string
	num  float64
	b    bool
}

// Kind reports the JSON type of the value.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the compact JSON encoding of the value.
func (v Value) Raw() json.RawMessage { return v.raw }

// Str returns the string content for KindString values.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Float returns the numeric content for KindInteger and KindFloat values.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindInteger || v.kind == KindFloat
}

// Bool returns the content of KindBoolean values.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBoolean
}

// Text renders the value the way it should appear in a table cell.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindBoolean:
		return strconv.FormatBool(v.b)
	default:
		return string(v.raw)
	}
}

// String returns a value of KindString.
func String(s string) Value {
	raw, _ := json.Marshal(s)
	return Value{kind: KindString, raw: raw, str: s}
}

// Field is one key/value pair of a payload.
type Field struct {
	Key   string
	Value Value
}

// Payload is an insertion-ordered JSON object.
type Payload struct {
	fields []Field
	index  map[string]int
}

// New returns an empty payload.
func New() *Payload {
	return &Payload{index: make(map[string]int)}
}

// Parse decodes a JSON object preserving the order in which keys appear.
// Duplicate keys keep their first position and their last value.
func Parse(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	p := New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("payload: unexpected token %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("payload: value of %q: %w", key, err)
		}
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("payload: value of %q: %w", key, err)
		}
		p.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("payload: trailing data after object")
	}
	return p, nil
}

// FromForm builds a payload from decoded form values. Keys are sorted because
// form decoding does not retain order; repeated keys become string arrays.
func FromForm(values map[string][]string) *Payload {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	p := New()
	for _, key := range keys {
		vals := values[key]
		switch len(vals) {
		case 0:
			p.Set(key, Value{kind: KindNull, raw: json.RawMessage("null")})
		case 1:
			p.Set(key, String(vals[0]))
		default:
			raw, _ := json.Marshal(vals)
			p.Set(key, Value{kind: KindArray, raw: raw})
		}
	}
	return p
}

func decodeValue(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, errors.New("empty value")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Value{}, err
	}
	compact := json.RawMessage(buf.Bytes())

	switch raw[0] {
	case 'n':
		return Value{kind: KindNull, raw: compact}, nil
	case 't', 'f':
		return Value{kind: KindBoolean, raw: compact, b: raw[0] == 't'}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return Value{kind: KindString, raw: compact, str: s}, nil
	case '[':
		return Value{kind: KindArray, raw: compact}, nil
	case '{':
		return Value{kind: KindObject, raw: compact}, nil
	}

	text := string(raw)
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, err
	}
	if _, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Value{kind: KindInteger, raw: compact, num: f}, nil
	}
	if bytes.ContainsAny(raw, ".eE") {
		return Value{kind: KindFloat, raw: compact, num: f}, nil
	}
	// integer literal outside int64 range
	return Value{kind: KindInteger, raw: compact, num: f}, nil
}

// Set stores a value, appending the key when it is new.
func (p *Payload) Set(key string, value Value) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[key]; ok {
		p.fields[i].Value = value
		return
	}
	p.index[key] = len(p.fields)
	p.fields = append(p.fields, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (p *Payload) Get(key string) (Value, bool) {
	if p == nil {
		return Value{}, false
	}
	i, ok := p.index[key]
	if !ok {
		return Value{}, false
	}
	return p.fields[i].Value, true
}

// GetString returns the value under key when it holds a string.
func (p *Payload) GetString(key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	return v.Str()
}

// Len reports the number of keys.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.fields)
}

// Keys returns the keys in insertion order.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.fields))
	for i, f := range p.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the ordered fields.
func (p *Payload) Fields() []Field {
	if p == nil {
		return nil
	}
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// Reorder returns a payload whose keys follow order first; keys missing from
// order keep their relative position after those.
func (p *Payload) Reorder(order []string) *Payload {
	out := New()
	if p == nil {
		return out
	}
	for _, key := range order {
		if v, ok := p.Get(key); ok {
			out.Set(key, v)
		}
	}
	for _, f := range p.fields {
		if _, ok := out.index[f.Key]; !ok {
			out.Set(f.Key, f.Value)
		}
	}
	return out
}

// MarshalJSON encodes the payload as an object with keys in insertion order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if p != nil {
		for i, f := range p.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if len(f.Value.raw) == 0 {
				buf.WriteString("null")
				continue
			}
			buf.Write(f.Value.raw)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// A Member is one key-value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// An Object is an output container that keeps its members in insertion
// order. Values are string, float64, bool, nil, *Object or *Array.
type Object struct {
	members []Member
	index   map[string]int
}

func NewObject() *Object {
	return &Object{index: map[string]int{}}
}

// Set adds or replaces the value at key, keeping the key's first
// position.
func (o *Object) Set(key string, value any) {
	if i, ok := o.index[key]; ok {
		o.members[i].Value = value
		return
	}
	o.index[key] = len(o.members)
	o.members = append(o.members, Member{Key: key, Value: value})
}

// Get returns the value at key.
func (o *Object) Get(key string) (any, bool) {
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.members[i].Value, true
}

// Len returns the number of members.
func (o *Object) Len() int {
	return len(o.members)
}

// Members returns the members in insertion order. The returned slice
// must not be mutated.
func (o *Object) Members() []Member {
	return o.members
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	o.writeTo(&buf)
	return buf.Bytes(), nil
}

func (o *Object) writeTo(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i := range o.members {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		writeStringBody(buf, o.members[i].Key)
		buf.WriteString(`":`)
		writeValue(buf, o.members[i].Value)
	}
	buf.WriteByte('}')
}

// Interface converts the object to plain Go values (map[string]any),
// losing member order.
func (o *Object) Interface() any {
	m := make(map[string]any, len(o.members))
	for _, member := range o.members {
		m[member.Key] = toInterface(member.Value)
	}
	return m
}

func (o *Object) String() string {
	data, _ := o.MarshalJSON()
	return string(data)
}

// An Array is an output container holding its items in source order.
type Array struct {
	items []any
}

func NewArray() *Array {
	return &Array{}
}

func (a *Array) Append(value any) {
	a.items = append(a.items, value)
}

func (a *Array) Len() int {
	return len(a.items)
}

// Items returns the items in order. The returned slice must not be
// mutated.
func (a *Array) Items() []any {
	return a.items
}

func (a *Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	a.writeTo(&buf)
	return buf.Bytes(), nil
}

func (a *Array) writeTo(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, item := range a.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeValue(buf, item)
	}
	buf.WriteByte(']')
}

// Interface converts the array to plain Go values ([]any).
func (a *Array) Interface() any {
	items := make([]any, len(a.items))
	for i, item := range a.items {
		items[i] = toInterface(item)
	}
	return items
}

func (a *Array) String() string {
	data, _ := a.MarshalJSON()
	return string(data)
}

// MarshalValue renders a projected value as JSON using the same string
// conventions as Object and Array, passing source escape sequences
// through verbatim.
func MarshalValue(v any) []byte {
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.Bytes()
}

func toInterface(v any) any {
	switch x := v.(type) {
	case *Object:
		return x.Interface()
	case *Array:
		return x.Interface()
	default:
		return v
	}
}

func writeValue(buf *bytes.Buffer, v any) {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case float64:
		data, _ := json.Marshal(x)
		buf.Write(data)
	case string:
		buf.WriteByte('"')
		writeStringBody(buf, x)
		buf.WriteByte('"')
	case *Object:
		x.writeTo(buf)
	case *Array:
		x.writeTo(buf)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			data, _ = json.Marshal(fmt.Sprint(x))
		}
		buf.Write(data)
	}
}

// writeStringBody writes a string as a JSON string body. Strings coming
// from the tokenizer carry their escape sequences verbatim, so escape
// pairs are passed through untouched while bare quotes and control
// characters are escaped.
func writeStringBody(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 < len(s) {
				buf.WriteByte(c)
				i++
				buf.WriteByte(s[i])
			} else {
				buf.WriteString(`\\`)
			}
		case c == '"':
			buf.WriteString(`\"`)
		case c < 0x20:
			fmt.Fprintf(buf, `\u%04x`, c)
		default:
			buf.WriteByte(c)
		}
	}
}

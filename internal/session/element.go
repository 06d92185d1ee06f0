package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

var (
	ErrNotFound         = errors.New("session: element not found")
	ErrIndexOutOfRange  = errors.New("session: index out of range")
	ErrNotConvertible   = errors.New("session: value not convertible")
	ErrNotArray         = errors.New("session: element is not an array")
	ErrUnexpectedFormat = errors.New("session: unexpected element format")
)

type elementKind int

const (
	kindNull elementKind = iota
	kindValue
	kindSequence
	kindArray
)

// Element is a named node of a message or request. It is a scalar value, a
// sequence of named children (kept in insertion order), or an array of
// unnamed items. A choice is a sequence holding exactly one child.
type Element struct {
	name     string
	kind     elementKind
	value    any
	children []*Element
}

// NewElement returns an empty element called name.
func NewElement(name string) *Element {
	return &Element{name: name}
}

func (e *Element) Name() string { return e.name }

func (e *Element) IsNull() bool     { return e.kind == kindNull }
func (e *Element) IsArray() bool    { return e.kind == kindArray }
func (e *Element) IsSequence() bool { return e.kind == kindSequence }

func (e *Element) child(name string) *Element {
	if e.kind != kindSequence {
		return nil
	}
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (e *Element) HasElement(name string) bool {
	return e.child(name) != nil
}

func (e *Element) GetElement(name string) (*Element, error) {
	if c := e.child(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, e.name, name)
}

// NumElements is the number of children of a sequence.
func (e *Element) NumElements() int {
	if e.kind != kindSequence {
		return 0
	}
	return len(e.children)
}

// ElementAt returns the i-th child of a sequence.
func (e *Element) ElementAt(i int) (*Element, error) {
	if e.kind != kindSequence || i < 0 || i >= len(e.children) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, e.name, i)
	}
	return e.children[i], nil
}

// Elements returns the children of a sequence in order.
func (e *Element) Elements() []*Element {
	if e.kind != kindSequence {
		return nil
	}
	return e.children
}

// NumValues is 1 for a scalar, the item count for an array and 0 otherwise.
func (e *Element) NumValues() int {
	switch e.kind {
	case kindValue:
		return 1
	case kindArray:
		return len(e.children)
	}
	return 0
}

// Values returns the items of an array.
func (e *Element) Values() []*Element {
	if e.kind != kindArray {
		return nil
	}
	return e.children
}

// ValueAsElement returns the i-th item of an array.
func (e *Element) ValueAsElement(i int) (*Element, error) {
	if e.kind != kindArray {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, e.name)
	}
	if i < 0 || i >= len(e.children) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, e.name, i)
	}
	return e.children[i], nil
}

func (e *Element) rawValue(i int) (any, error) {
	switch e.kind {
	case kindValue:
		if i != 0 {
			return nil, fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, e.name, i)
		}
		return e.value, nil
	case kindArray:
		item, err := e.ValueAsElement(i)
		if err != nil {
			return nil, err
		}
		if item.kind != kindValue {
			return nil, fmt.Errorf("%w: %s[%d] is not a scalar", ErrNotConvertible, e.name, i)
		}
		return item.value, nil
	}
	return nil, fmt.Errorf("%w: %s is not a scalar", ErrNotConvertible, e.name)
}

func (e *Element) ValueAsString(i int) (string, error) {
	v, err := e.rawValue(i)
	if err != nil {
		return "", err
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotConvertible, e.name, err)
	}
	return s, nil
}

func (e *Element) ValueAsInt64(i int) (int64, error) {
	v, err := e.rawValue(i)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotConvertible, e.name, err)
	}
	return n, nil
}

func (e *Element) ValueAsFloat64(i int) (float64, error) {
	v, err := e.rawValue(i)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotConvertible, e.name, err)
	}
	return f, nil
}

func (e *Element) ValueAsBool(i int) (bool, error) {
	v, err := e.rawValue(i)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrNotConvertible, e.name, err)
	}
	return b, nil
}

func (e *Element) GetElementAsString(name string) (string, error) {
	c, err := e.GetElement(name)
	if err != nil {
		return "", err
	}
	return c.ValueAsString(0)
}

func (e *Element) GetElementAsInt64(name string) (int64, error) {
	c, err := e.GetElement(name)
	if err != nil {
		return 0, err
	}
	return c.ValueAsInt64(0)
}

func (e *Element) GetElementAsFloat64(name string) (float64, error) {
	c, err := e.GetElement(name)
	if err != nil {
		return 0, err
	}
	return c.ValueAsFloat64(0)
}

func (e *Element) GetElementAsBool(name string) (bool, error) {
	c, err := e.GetElement(name)
	if err != nil {
		return false, err
	}
	return c.ValueAsBool(0)
}

// Sub returns the child sequence called name, creating it if needed.
func (e *Element) Sub(name string) *Element {
	if c := e.child(name); c != nil {
		return c
	}
	e.kind = kindSequence
	c := NewElement(name)
	e.children = append(e.children, c)
	return c
}

// Set stores a scalar child, replacing any previous value.
func (e *Element) Set(name string, value any) *Element {
	c := e.Sub(name)
	c.SetValue(value)
	return e
}

// SetValue turns e into a scalar.
func (e *Element) SetValue(value any) {
	e.kind = kindValue
	e.children = nil
	e.value = normalize(value)
}

// Append adds a scalar item to the array child called name.
func (e *Element) Append(name string, value any) *Element {
	e.Sub(name).AppendValue(value)
	return e
}

// AppendValue adds a scalar item to e, which becomes an array.
func (e *Element) AppendValue(value any) {
	item := NewElement("")
	item.SetValue(value)
	e.appendItem(item)
}

// AppendElement adds an empty sequence item to the array child called name
// and returns it.
func (e *Element) AppendElement(name string) *Element {
	item := NewElement(name)
	item.kind = kindSequence
	e.Sub(name).appendItem(item)
	return item
}

func (e *Element) appendItem(item *Element) {
	if e.kind != kindArray {
		e.kind = kindArray
		e.value = nil
		e.children = nil
	}
	e.children = append(e.children, item)
}

// SetChoice makes e a choice selecting name and returns the selected
// element. Any earlier selection is discarded.
func (e *Element) SetChoice(name string) *Element {
	c := NewElement(name)
	e.kind = kindSequence
	e.value = nil
	e.children = []*Element{c}
	return c
}

// Choice returns the selected alternative of a choice.
func (e *Element) Choice() (*Element, error) {
	if e.kind != kindSequence || len(e.children) != 1 {
		return nil, fmt.Errorf("%w: %s is not a choice", ErrUnexpectedFormat, e.name)
	}
	return e.children[0], nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint8:
		return int64(x)
	case float32:
		return float64(x)
	case CorrelationID:
		return int64(x)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

// MarshalJSON writes sequences as objects with their children in order.
func (e *Element) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Element) writeJSON(buf *bytes.Buffer) error {
	switch e.kind {
	case kindNull:
		buf.WriteString("null")
	case kindValue:
		data, err := json.Marshal(e.value)
		if err != nil {
			return err
		}
		buf.Write(data)
	case kindArray:
		buf.WriteByte('[')
		for i, c := range e.children {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case kindSequence:
		buf.WriteByte('{')
		for i, c := range e.children {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(c.name)
			buf.Write(key)
			buf.WriteByte(':')
			if err := c.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON replaces the contents of e, keeping its name. Object keys
// keep their order; integral numbers decode as int64.
func (e *Element) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
	}
	decoded, err := decodeElement(dec, e.name, tok)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}

func decodeElement(dec *json.Decoder, name string, tok json.Token) (*Element, error) {
	e := NewElement(name)

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			e.kind = kindSequence
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("%w: object key %v", ErrUnexpectedFormat, keyTok)
				}
				valTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
				}
				c, err := decodeElement(dec, key, valTok)
				if err != nil {
					return nil, err
				}
				e.children = append(e.children, c)
			}
			if _, err := dec.Token(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
			}
		case '[':
			e.kind = kindArray
			for dec.More() {
				itemTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
				}
				item, err := decodeElement(dec, name, itemTok)
				if err != nil {
					return nil, err
				}
				if item.kind == kindValue {
					item.name = ""
				}
				e.children = append(e.children, item)
			}
			if _, err := dec.Token(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
			}
		default:
			return nil, fmt.Errorf("%w: delimiter %v", ErrUnexpectedFormat, t)
		}
	case json.Number:
		e.kind = kindValue
		if n, err := t.Int64(); err == nil {
			e.value = n
		} else {
			f, err := t.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: number %s", ErrUnexpectedFormat, t)
			}
			e.value = f
		}
	case string, bool:
		e.kind = kindValue
		e.value = t
	case nil:
		e.kind = kindNull
	default:
		return nil, fmt.Errorf("%w: token %v", ErrUnexpectedFormat, tok)
	}

	return e, nil
}

// String renders the element in the indented "Name = { ... }" layout used
// when printing whole messages.
func (e *Element) String() string {
	var sb strings.Builder
	e.print(&sb, 0)
	return sb.String()
}

func (e *Element) print(sb *strings.Builder, depth int) {
	indent := strings.Repeat("    ", depth)
	switch e.kind {
	case kindNull:
		fmt.Fprintf(sb, "%s%s = {\n%s}\n", indent, e.name, indent)
	case kindValue:
		if e.name == "" {
			fmt.Fprintf(sb, "%s%s\n", indent, formatScalar(e.value))
		} else {
			fmt.Fprintf(sb, "%s%s = %s\n", indent, e.name, formatScalar(e.value))
		}
	case kindSequence:
		fmt.Fprintf(sb, "%s%s = {\n", indent, e.name)
		for _, c := range e.children {
			c.print(sb, depth+1)
		}
		fmt.Fprintf(sb, "%s}\n", indent)
	case kindArray:
		fmt.Fprintf(sb, "%s%s[] = {\n", indent, e.name)
		for _, c := range e.children {
			c.print(sb, depth+1)
		}
		fmt.Fprintf(sb, "%s}\n", indent)
	}
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return cast.ToString(v)
}

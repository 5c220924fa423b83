package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type valueKind uint8

const (
	kindNull valueKind = iota
	kindScalar
	kindBool
	kindList
)

// Value is the tagged union held by a Field: null, a scalar string, a
// boolean, or an ordered list of strings. The zero Value is null.
type Value struct {
	kind   valueKind
	scalar string
	flag   bool
	items  []string
}

// Null returns the absent value.
func Null() Value { return Value{} }

// Scalar returns a scalar string value. Numbers, dates and datetimes are
// carried as their string form.
func Scalar(s string) Value { return Value{kind: kindScalar, scalar: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: kindBool, flag: b} }

// List returns a list value. A nil list is an empty sequence, not null.
func List(items ...string) Value {
	out := make([]string, len(items))
	copy(out, items)
	return Value{kind: kindList, items: out}
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == kindNull }

// IsScalar reports whether the value is a scalar string.
func (v Value) IsScalar() bool { return v.kind == kindScalar }

// IsBool reports whether the value is a boolean.
func (v Value) IsBool() bool { return v.kind == kindBool }

// IsList reports whether the value is a sequence.
func (v Value) IsList() bool { return v.kind == kindList }

// Bool returns the boolean held by v; non-boolean values report false.
func (v Value) Bool() bool { return v.kind == kindBool && v.flag }

// Items returns a copy of the list items, or nil for non-list values.
func (v Value) Items() []string {
	if v.kind != kindList {
		return nil
	}
	out := make([]string, len(v.items))
	copy(out, v.items)
	return out
}

// Len returns the number of list items.
func (v Value) Len() int {
	if v.kind != kindList {
		return 0
	}
	return len(v.items)
}

// String returns the natural string form of v. Null renders as "null" and
// lists as their items joined by ", ".
func (v Value) String() string {
	switch v.kind {
	case kindScalar:
		return v.scalar
	case kindBool:
		return strconv.FormatBool(v.flag)
	case kindList:
		var buf bytes.Buffer
		for i, it := range v.items {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(it)
		}
		return buf.String()
	default:
		return "null"
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	if v.kind == kindList {
		return List(v.items...)
	}
	return v
}

// Equal reports whether v and o hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case kindScalar:
		return v.scalar == o.scalar
	case kindBool:
		return v.flag == o.flag
	case kindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if v.items[i] != o.items[i] {
				return false
			}
		}
	}
	return true
}

// Coerce maps v onto the shape allowed by t:
//   - text, number, date, datetime: scalar or null (booleans become "true"/"false");
//   - boolean: bool or null (scalars are parsed with strconv.ParseBool);
//   - list: sequence or null.
//
// Anything that cannot be represented becomes null.
func (v Value) Coerce(t FieldType) Value {
	switch t {
	case TypeBoolean:
		switch v.kind {
		case kindBool:
			return v
		case kindScalar:
			if b, err := strconv.ParseBool(v.scalar); err == nil {
				return Bool(b)
			}
		}
		return Null()
	case TypeList:
		if v.kind == kindList {
			return v.Clone()
		}
		return Null()
	default:
		switch v.kind {
		case kindScalar:
			return v
		case kindBool:
			return Scalar(strconv.FormatBool(v.flag))
		}
		return Null()
	}
}

// MarshalJSON encodes v as null, a string, a boolean or an array of strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindScalar:
		return json.Marshal(v.scalar)
	case kindBool:
		return json.Marshal(v.flag)
	case kindList:
		items := v.items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null, strings, booleans, numbers (kept as their
// literal text) and arrays of scalars.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case string:
		*v = Scalar(x)
	case bool:
		*v = Bool(x)
	case json.Number:
		*v = Scalar(x.String())
	case []any:
		items := make([]string, 0, len(x))
		for _, it := range x {
			s, err := itemString(it)
			if err != nil {
				return err
			}
			items = append(items, s)
		}
		*v = List(items...)
	default:
		return fmt.Errorf("unsupported field value %s", data)
	}
	return nil
}

func itemString(it any) (string, error) {
	switch x := it.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case json.Number:
		return x.String(), nil
	default:
		return "", fmt.Errorf("unsupported list item of type %T", it)
	}
}

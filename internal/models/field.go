// Package models defines the domain types for postwriter.
package models

import (
	"encoding/json"
	"fmt"
)

// FieldType determines how a frontmatter field is edited and serialized.
type FieldType string

// Supported field types.
const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeList     FieldType = "list"
)

// FieldTypes lists every supported type in display order.
var FieldTypes = []FieldType{TypeText, TypeNumber, TypeBoolean, TypeDate, TypeDateTime, TypeList}

// ParseFieldType validates s and returns the matching FieldType.
func ParseFieldType(s string) (FieldType, error) {
	for _, t := range FieldTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

// Valid reports whether t is one of the supported types.
func (t FieldType) Valid() bool {
	_, err := ParseFieldType(string(t))
	return err == nil
}

// Field is one frontmatter entry.
type Field struct {
	ID    int64     `json:"id"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
	Value Value     `json:"value"`
	Order int       `json:"order"`
}

// UnmarshalJSON decodes a field and coerces its value to the declared type.
// A missing or empty type defaults to text.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    int64  `json:"id"`
		Label string `json:"label"`
		Type  string `json:"type"`
		Value Value  `json:"value"`
		Order int    `json:"order"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t := TypeText
	if raw.Type != "" {
		parsed, err := ParseFieldType(raw.Type)
		if err != nil {
			return err
		}
		t = parsed
	}
	*f = Field{
		ID:    raw.ID,
		Label: raw.Label,
		Type:  t,
		Value: raw.Value.Coerce(t),
		Order: raw.Order,
	}
	return nil
}

// Clone returns a deep copy of f.
func (f Field) Clone() Field {
	f.Value = f.Value.Clone()
	return f
}

// SnapshotVersion is the current persisted record version.
const SnapshotVersion = 1

// Snapshot is the durable form of a document: its fields, body text and the
// visibility flag of the properties panel.
type Snapshot struct {
	Version      int     `json:"version"`
	Fields       []Field `json:"fields"`
	Body         string  `json:"body"`
	FieldsHidden bool    `json:"fieldsHidden"`
}

// NewSnapshot returns an empty snapshot at the current version.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: SnapshotVersion, Fields: []Field{}}
}

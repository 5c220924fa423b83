package api

import (
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/postwriter/internal/models"
)

// DocumentResponse is the full document with its current revision.
type DocumentResponse struct {
	Fields       []models.Field `json:"fields" validate:"required"`
	Body         string         `json:"body" validate:"required"`
	FieldsHidden bool           `json:"fieldsHidden" validate:"required"`
	Revision     string         `json:"revision" example:"9f86d08..." validate:"required"`
}

// FieldResponse is one field with the document revision after the change.
type FieldResponse struct {
	Field    models.Field `json:"field" validate:"required"`
	Revision string       `json:"revision" validate:"required"`
}

// ImportResponse reports how many fields replaced the document's fields.
type ImportResponse struct {
	Imported int              `json:"imported" example:"3" validate:"required"`
	Document DocumentResponse `json:"document" validate:"required"`
}

// PreviewResponse carries the body rendered as HTML.
type PreviewResponse struct {
	HTML     string `json:"html" example:"<h1>Hello</h1>" validate:"required"`
	Revision string `json:"revision" validate:"required"`
}

// UpdateBodyRequest is the request body for replacing the markdown body.
type UpdateBodyRequest struct {
	Body string `json:"body" example:"# Hello\nWorld"`
}

// VisibilityRequest sets the visibility flag of the properties panel.
type VisibilityRequest struct {
	Hidden *bool `json:"hidden" example:"true" validate:"required"`
}

// Validate checks that hidden is present.
func (r VisibilityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Hidden, validation.NotNil),
	)
}

// UpdateFieldRequest replaces any subset of a field's attributes. A present
// "value": null clears the value.
type UpdateFieldRequest struct {
	Label *string         `json:"label,omitempty" example:"title"`
	Type  *string         `json:"type,omitempty" example:"text"`
	Value json.RawMessage `json:"value,omitempty" swaggertype:"object"`
}

// Validate checks the type name against the supported types.
func (r UpdateFieldRequest) Validate() error {
	types := make([]any, len(models.FieldTypes))
	for i, t := range models.FieldTypes {
		types[i] = string(t)
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.NilOrNotEmpty, validation.In(types...)),
	)
}

// empty reports whether the request changes nothing.
func (r UpdateFieldRequest) empty() bool {
	return r.Label == nil && r.Type == nil && len(r.Value) == 0
}

// decodeValue returns the requested value, or nil when none was sent.
func (r UpdateFieldRequest) decodeValue() (*models.Value, error) {
	if len(r.Value) == 0 {
		return nil, nil
	}
	var v models.Value
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return nil, errors.New("value must be null, a string, a number, a boolean or an array of strings")
	}
	return &v, nil
}

// ListItemRequest sets the text of one list item.
type ListItemRequest struct {
	Text string `json:"text" example:"golang"`
}

// MoveFieldRequest reorders one field. A null target is a drop outside any
// slot and changes nothing.
type MoveFieldRequest struct {
	Source int64  `json:"source" example:"1" validate:"required"`
	Target *int64 `json:"target" example:"3"`
}

// Validate checks that a source id was sent.
func (r MoveFieldRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required, validation.Min(int64(1))),
	)
}

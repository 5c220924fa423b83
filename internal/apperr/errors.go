package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidType     = errors.New("invalid field type")
	ErrMalformedImport = errors.New("malformed import")
	ErrImportShape     = errors.New("unexpected import format")
)

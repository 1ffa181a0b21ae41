package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoReport         = errors.New("no integrity report available")
	ErrUnsupportedField = errors.New("field cannot be repaired through this path")
)

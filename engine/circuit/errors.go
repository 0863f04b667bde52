package circuit

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUnknownKind   = errors.New("unknown component kind")
	ErrInvalidLayout = errors.New("invalid layout")
)

// LayoutError reports a problem at a specific location in a layout.
type LayoutError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("layout: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

// Unwrap exposes both ErrInvalidLayout and the underlying cause to errors.Is.
func (e *LayoutError) Unwrap() []error { return []error{ErrInvalidLayout, e.Wrapped} }

func newLayoutError(field, value string, wrapped error) *LayoutError {
	return &LayoutError{Field: field, Value: value, Wrapped: wrapped}
}

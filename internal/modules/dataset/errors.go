package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when an import contains a header but no data rows,
// or no content at all.
var ErrEmptyInput = errors.New("file is empty or contains no data rows")

// MissingColumnsError reports required columns absent from an import header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// BadValue is a single non-coercible value in a declared numeric column.
type BadValue struct {
	Row   int    // 1-based data row number
	Value string // raw cell content
}

// NonNumericColumnError reports values in a declared numeric column that
// cannot be coerced to a number. At most three examples are carried; Omitted
// counts the rest.
type NonNumericColumnError struct {
	Column   string
	Examples []BadValue
	Omitted  int
}

func (e *NonNumericColumnError) Error() string {
	parts := make([]string, len(e.Examples))
	for i, bv := range e.Examples {
		parts[i] = fmt.Sprintf("row %d: %q", bv.Row, bv.Value)
	}
	msg := fmt.Sprintf("column %q contains non-numeric values: %s", e.Column, strings.Join(parts, "; "))
	if e.Omitted > 0 {
		msg += fmt.Sprintf(" (and %d more)", e.Omitted)
	}
	return msg
}

// MalformedInputError reports input that could not be parsed as CSV at all.
type MalformedInputError struct {
	Err error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("could not parse input as CSV: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

package formula

import (
	"fmt"
	"strings"
)

// UnknownIdentifierError reports a variable reference that resolves to no
// numeric column, alias, or derived series. Available carries the names the
// formula could have used.
type UnknownIdentifierError struct {
	Name      string
	Available []string
}

// maxListedIdentifiers caps the names spelled out in the error message; wide
// passthrough tables can carry hundreds of derived variables.
const maxListedIdentifiers = 40

func (e *UnknownIdentifierError) Error() string {
	listed := e.Available
	suffix := ""
	if len(listed) > maxListedIdentifiers {
		suffix = fmt.Sprintf(" (and %d more)", len(listed)-maxListedIdentifiers)
		listed = listed[:maxListedIdentifiers]
	}
	return fmt.Sprintf("column '%s' not found or not numeric. Available variables are: %s%s",
		e.Name, strings.Join(listed, ", "), suffix)
}

// SyntaxError reports a formula that could not be parsed. Pos is the byte
// offset of the offending token in the source.
type SyntaxError struct {
	Msg string
	Pos int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid formula syntax: %s (at position %d)", e.Msg, e.Pos)
}

// EvalError reports a formula that parsed but could not be evaluated, such as
// a type mismatch or a non-boolean result.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("error applying formula: %s", e.Msg)
}

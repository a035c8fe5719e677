package popvars

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Position is a location in template source. Line and Column are 1-based;
// Column counts runes.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

func positionAt(src string, offset int) Position {
	if offset > len(src) {
		offset = len(src)
	}
	pos := Position{Offset: offset, Line: 1, Column: 1}
	for i := 0; i < offset; {
		r, size := utf8.DecodeRuneInString(src[i:])
		if r == '\n' {
			pos.Line++
			pos.Column = 1
		} else {
			pos.Column++
		}
		i += size
	}
	return pos
}

// SyntaxError is a compile failure at a position in the template.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg) }

// Resolution failures, matched with errors.Is.
var (
	ErrMissingField = errors.New("missing field")
	ErrUnknownTable = errors.New("unknown table")
	ErrNoMatch      = errors.New("no matching record")
	ErrMissingID    = errors.New("table has no $id field")
	ErrBadValue     = errors.New("field value does not parse as literal type")
)

// ResolutionError is a failure to resolve a reference while rendering.
type ResolutionError struct {
	Kind  error
	Table string
	Field string
	Key   string
	// Want describes the expected value type for ErrBadValue.
	Want string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ErrMissingField:
		return fmt.Sprintf("failed lookup: field `%s` did not exist in context", e.Field)
	case ErrUnknownTable:
		return fmt.Sprintf("failed lookup: no table named `%s`", e.Table)
	case ErrNoMatch:
		return fmt.Sprintf("failed lookup: expected to find a %s with $id=%s", e.Table, e.Key)
	case ErrMissingID:
		if e.Err != nil {
			return e.Err.Error()
		}
		return fmt.Sprintf("invalid table `%s` has no $id field", e.Table)
	case ErrBadValue:
		return fmt.Sprintf("expected `%s` field value %q to be %s", e.Field, e.Key, e.Want)
	}
	return fmt.Sprintf("resolution failed: %v", e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// RowError annotates a failure with the 1-based driving record it happened in.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

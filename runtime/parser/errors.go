package parser

import (
	"fmt"

	"github.com/sfenos/neba/runtime/lexer"
)

// ParseErrorKind classifies parse errors.
type ParseErrorKind int

const (
	ErrUnexpectedToken ParseErrorKind = iota
	ErrUnexpectedEOF
	ErrInvalidAssignTarget
	ErrMissingIndent
	ErrMissingDedent
	ErrInvalidPattern
)

// ParseError is a recoverable syntax error. The parser records it,
// resynchronises on the next newline or dedent, and keeps going.
type ParseError struct {
	Kind     ParseErrorKind
	Expected string
	Found    lexer.TokenType
	Span     lexer.Span
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrUnexpectedToken:
		return fmt.Sprintf("[ParseError] Expected %s but found %s at line %d, column %d", e.Expected, e.Found, e.Span.Line, e.Span.Column)
	case ErrUnexpectedEOF:
		return fmt.Sprintf("[ParseError] Expected %s but reached end of file at line %d", e.Expected, e.Span.Line)
	case ErrInvalidAssignTarget:
		return fmt.Sprintf("[ParseError] Invalid assignment target at line %d, column %d", e.Span.Line, e.Span.Column)
	case ErrMissingIndent:
		return fmt.Sprintf("[ParseError] Expected indented block at line %d", e.Span.Line)
	case ErrMissingDedent:
		return fmt.Sprintf("[ParseError] Missing dedent at line %d", e.Span.Line)
	case ErrInvalidPattern:
		return fmt.Sprintf("[ParseError] Invalid pattern in match arm at line %d, column %d", e.Span.Line, e.Span.Column)
	default:
		return fmt.Sprintf("[ParseError] at line %d, column %d", e.Span.Line, e.Span.Column)
	}
}

package types

import (
	"fmt"

	"github.com/sfenos/neba/runtime/lexer"
)

// Severity splits diagnostics into errors and warnings.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Diagnostic is one finding from the checker. It never blocks execution.
type Diagnostic struct {
	Severity Severity
	Message  string
	Span     lexer.Span
}

func (d Diagnostic) String() string {
	sev := "error"
	if d.Severity == SeverityWarning {
		sev = "warning"
	}
	return fmt.Sprintf("[%s] %d:%d: %s", sev, d.Span.Line, d.Span.Column, d.Message)
}

func errorf(span lexer.Span, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Span: span}
}

// ── Common diagnostics ────────────────────────────────────────────────────

func typeMismatch(expected, got Type, span lexer.Span) Diagnostic {
	return errorf(span, "type mismatch: expected '%s', got '%s'", expected, got)
}

func binaryOp(op string, left, right Type, span lexer.Span) Diagnostic {
	return errorf(span, "operator '%s' cannot be applied to '%s' and '%s'", op, left, right)
}

func notCallable(t Type, span lexer.Span) Diagnostic {
	return errorf(span, "'%s' is not callable", t)
}

func arityMismatch(name string, expected, got int, span lexer.Span) Diagnostic {
	return errorf(span, "'%s' expects %d argument(s), got %d", name, expected, got)
}

func undefined(name string, span lexer.Span) Diagnostic {
	return errorf(span, "undefined variable '%s'", name)
}

func notIterable(t Type, span lexer.Span) Diagnostic {
	return errorf(span, "'%s' is not iterable", t)
}

func assignImmutable(name string, span lexer.Span) Diagnostic {
	return errorf(span, "cannot assign to immutable variable '%s'", name)
}

func returnMismatch(expected, got Type, span lexer.Span) Diagnostic {
	return errorf(span, "return type mismatch: function declares '%s', got '%s'", expected, got)
}

func unknownField(typeName, field string, span lexer.Span) Diagnostic {
	return errorf(span, "'%s' has no field '%s'", typeName, field)
}

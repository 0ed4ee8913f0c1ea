package calc

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which rule an evaluation failed on.
type Kind string

const (
	KindInvalidCharacter      Kind = "InvalidCharacter"
	KindUnbalancedParentheses Kind = "UnbalancedParentheses"
	KindExpressionTooLong     Kind = "ExpressionTooLong"
	KindNestingTooDeep        Kind = "NestingTooDeep"
	KindTooManyFunctionCalls  Kind = "TooManyFunctionCalls"
	KindComplexityTooHigh     Kind = "ComplexityTooHigh"
	KindUnsupportedFunction   Kind = "UnsupportedFunction"
	KindDangerousPattern      Kind = "DangerousPattern"
	KindArityMismatch         Kind = "ArityMismatch"
	KindDomainError           Kind = "DomainError"
	KindDivisionByZero        Kind = "DivisionByZero"
	KindNotANumber            Kind = "NotANumber"
	KindOverflow              Kind = "Overflow"
	KindTimeout               Kind = "Timeout"
	KindSyntaxError           Kind = "SyntaxError"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrInvalidCharacter      = &Error{Kind: KindInvalidCharacter}
	ErrUnbalancedParentheses = &Error{Kind: KindUnbalancedParentheses}
	ErrExpressionTooLong     = &Error{Kind: KindExpressionTooLong}
	ErrNestingTooDeep        = &Error{Kind: KindNestingTooDeep}
	ErrTooManyFunctionCalls  = &Error{Kind: KindTooManyFunctionCalls}
	ErrComplexityTooHigh     = &Error{Kind: KindComplexityTooHigh}
	ErrUnsupportedFunction   = &Error{Kind: KindUnsupportedFunction}
	ErrDangerousPattern      = &Error{Kind: KindDangerousPattern}
	ErrArityMismatch         = &Error{Kind: KindArityMismatch}
	ErrDomain                = &Error{Kind: KindDomainError}
	ErrDivisionByZero        = &Error{Kind: KindDivisionByZero}
	ErrNotANumber            = &Error{Kind: KindNotANumber}
	ErrOverflow              = &Error{Kind: KindOverflow}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrSyntax                = &Error{Kind: KindSyntaxError}
)

// Error is the single error type returned by the evaluation pipeline.
// Subject holds the offending substring for guard failures; the
// function-related fields are set for DomainError and ArityMismatch.
type Error struct {
	Kind    Kind
	Message string
	Subject string

	Function   string
	Input      float64
	Constraint string
	MinArity   int
	MaxArity   int
	Actual     int

	err error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether retrying with a larger budget could change
// the outcome. Expressions are deterministic, so only Timeout qualifies.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout
}

// KindOf returns the Kind of err, or "" when err is not an evaluation error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsGuardFailure reports whether the error came from a static guard
// (before any evaluation took place).
func IsGuardFailure(err error) bool {
	switch KindOf(err) {
	case KindInvalidCharacter, KindUnbalancedParentheses, KindExpressionTooLong,
		KindNestingTooDeep, KindTooManyFunctionCalls, KindComplexityTooHigh,
		KindUnsupportedFunction, KindDangerousPattern, KindArityMismatch:
		return true
	}
	return false
}

func newError(kind Kind, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

func invalidCharacterError(chars []rune) *Error {
	quoted := make([]string, len(chars))
	for i, c := range chars {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	subject := string(chars)
	return newError(KindInvalidCharacter, subject,
		"expression contains invalid characters: %s", strings.Join(quoted, ", "))
}

func unsupportedFunctionError(name string, supported []string) *Error {
	return newError(KindUnsupportedFunction, name,
		"unsupported function %q; supported functions: %s", name, strings.Join(supported, ", "))
}

func arityError(spec FunctionSpec, actual int) *Error {
	e := newError(KindArityMismatch, spec.Name,
		"function %q expects %s, got %d", spec.Name, spec.arityText(), actual)
	e.Function = spec.Name
	e.MinArity = spec.MinArity
	e.MaxArity = spec.MaxArity
	e.Actual = actual
	return e
}

// DomainError reports an argument outside a function's mathematical domain.
func DomainError(function string, input float64, constraint string) *Error {
	e := newError(KindDomainError, function,
		"math domain error in %s(%v): %s", function, input, constraint)
	e.Function = function
	e.Input = input
	e.Constraint = constraint
	return e
}

func divisionByZeroError() *Error {
	return newError(KindDivisionByZero, "/", "division by zero")
}

func syntaxError(subject string, cause error) *Error {
	e := newError(KindSyntaxError, subject, "invalid mathematical expression")
	if cause != nil {
		e.Message = fmt.Sprintf("invalid mathematical expression: %v", cause)
		e.err = cause
	}
	return e
}

package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an oida error.
type ErrorKind string

// Error kinds raised by the parser and the evaluator.
const (
	KindSyntaxFailure     ErrorKind = "SyntaxFailure"
	KindUnknownIdentifier ErrorKind = "UnknownIdentifier"
	KindTypeMismatch      ErrorKind = "TypeMismatch"
	KindArityMismatch     ErrorKind = "ArityMismatch"
	KindArithmeticFailure ErrorKind = "ArithmeticFailure"
	KindUnknownOperator   ErrorKind = "UnknownOperator"
	KindUnknownNodeKind   ErrorKind = "UnknownNodeKind"
	KindIndexOutOfRange   ErrorKind = "IndexOutOfRange"
	KindRecursionLimit    ErrorKind = "RecursionLimit"
	KindStepLimit         ErrorKind = "StepLimit"
	KindFetchFailure      ErrorKind = "FetchFailure"
)

// Error is an oida runtime or syntax error.
type Error struct {
	Kind    ErrorKind
	Message string
	// Code carries the HTTP status for fetch failures, zero otherwise.
	Code int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ToValue converts the error into an associative array with message, kind
// and code entries. Used by the hosting surfaces to report failures.
func (e *Error) ToValue() Value {
	m := NewOrderedMap()
	m.Set("message", NewString(e.Message))
	m.Set("kind", NewString(string(e.Kind)))
	m.Set("code", NewInt(int64(e.Code)))
	return NewMap(m)
}

// Details describes err as a plain map with message, kind and code entries
// for JSON and protobuf payloads. Errors that are not oida errors have an
// empty kind.
func Details(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		d := e.ToValue().ToGoValue().(map[string]interface{})
		d["message"] = err.Error()
		return d
	}
	return map[string]interface{}{"message": err.Error(), "kind": "", "code": int64(0)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is not an oida error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Common error constructors.

// NewSyntaxError creates a SyntaxFailure.
func NewSyntaxError(format string, args ...any) *Error {
	return &Error{Kind: KindSyntaxFailure, Message: fmt.Sprintf(format, args...)}
}

// NewUnknownIdentifierError reports a name that is neither a variable nor a function.
func NewUnknownIdentifierError(name string) *Error {
	return &Error{Kind: KindUnknownIdentifier, Message: fmt.Sprintf("Variable '%s' is ned definiert", name)}
}

// NewUnknownFunctionError reports a call to an undefined function.
func NewUnknownFunctionError(name string) *Error {
	return &Error{Kind: KindUnknownIdentifier, Message: fmt.Sprintf("Funktion '%s' is ned definiert", name)}
}

// NewUnknownPropertyError reports an unknown property method.
func NewUnknownPropertyError(name string) *Error {
	return &Error{Kind: KindUnknownIdentifier, Message: fmt.Sprintf("Unbekannte Eigenschaft '%s'", name)}
}

// NewTypeError creates a TypeMismatch.
func NewTypeError(format string, args ...any) *Error {
	return &Error{Kind: KindTypeMismatch, Message: fmt.Sprintf(format, args...)}
}

// NewArityError creates an ArityMismatch for a function call.
func NewArityError(name string, want, got int) *Error {
	return &Error{
		Kind:    KindArityMismatch,
		Message: fmt.Sprintf("Funktion '%s' erwartet %d Argumente, kriagt hat's %d", name, want, got),
	}
}

// NewZeroDivisionError creates an ArithmeticFailure for a zero divisor.
func NewZeroDivisionError() *Error {
	return &Error{Kind: KindArithmeticFailure, Message: "Division durch null"}
}

// NewUnknownOperatorError creates an UnknownOperator.
func NewUnknownOperatorError(op string) *Error {
	return &Error{Kind: KindUnknownOperator, Message: fmt.Sprintf("Unbekannter Operator '%s'", op)}
}

// NewUnknownNodeError creates an UnknownNodeKind.
func NewUnknownNodeError(kind string) *Error {
	return &Error{Kind: KindUnknownNodeKind, Message: fmt.Sprintf("Unbekannter Knoten-Typ '%s'", kind)}
}

// NewIndexError creates an IndexOutOfRange.
func NewIndexError(format string, args ...any) *Error {
	return &Error{Kind: KindIndexOutOfRange, Message: fmt.Sprintf(format, args...)}
}

// NewRecursionError creates a RecursionLimit for call stack overflow.
func NewRecursionError(max int) *Error {
	return &Error{
		Kind:    KindRecursionLimit,
		Message: fmt.Sprintf("Rekursion z'tief (max %d)", max),
	}
}

// NewStepLimitError creates a StepLimit.
func NewStepLimitError(max int) *Error {
	return &Error{Kind: KindStepLimit, Message: fmt.Sprintf("Schrittlimit erreicht (max %d)", max)}
}

// NewFetchError creates a FetchFailure. Code is the HTTP status, or zero for
// transport failures.
func NewFetchError(code int, format string, args ...any) *Error {
	return &Error{Kind: KindFetchFailure, Message: fmt.Sprintf(format, args...), Code: code}
}

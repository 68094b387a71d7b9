package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrSchema            = errors.New("schema error")
	ErrArity             = errors.New("arity error")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrNotFound          = errors.New("not found")
	ErrInternalInvariant = errors.New("internal invariant violated")
)

// Error is an engine error of a given kind.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Is makes errors.Is(err, ErrX) hold for an *Error of kind ErrX.
func (e *Error) Is(target error) bool { return e.Kind == target }

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

func newError(kind error, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ErrSchemaError is an error of kind ErrSchema: a recipe or row that does not fit its schema.
type ErrSchemaError = error

// NewSchemaError creates an ErrSchema error.
func NewSchemaError(message string) ErrSchemaError {
	return newError(ErrSchema, message, nil)
}

// NewSchemaErrorf is NewSchemaError with a format string.
func NewSchemaErrorf(format string, args ...any) ErrSchemaError {
	return newError(ErrSchema, fmt.Sprintf(format, args...), nil)
}

// ErrArityError is an error of kind ErrArity: a row with the wrong number of values.
type ErrArityError = error

// NewArityError creates an ErrArity error for a row of got values where want were expected.
func NewArityError(want, got int) ErrArityError {
	return newError(ErrArity, fmt.Sprintf("expected %d values, got %d", want, got), nil)
}

// ErrTypeMismatchError is an error of kind ErrTypeMismatch.
type ErrTypeMismatchError = error

// NewTypeMismatchError creates an ErrTypeMismatch error.
func NewTypeMismatchError(message string) ErrTypeMismatchError {
	return newError(ErrTypeMismatch, message, nil)
}

// ErrDuplicateKeyError is an error of kind ErrDuplicateKey.
type ErrDuplicateKeyError = error

// NewDuplicateKeyError reports an insert of a primary key the table already holds.
func NewDuplicateKeyError(table string, key DataType) ErrDuplicateKeyError {
	return newError(ErrDuplicateKey, fmt.Sprintf("table %q already holds key %s", table, key), nil)
}

// ErrNotFoundError is an error of kind ErrNotFound: an unknown table, view or row.
type ErrNotFoundError = error

// NewNotFoundError creates an ErrNotFound error.
func NewNotFoundError(message string) ErrNotFoundError {
	return newError(ErrNotFound, message, nil)
}

// ErrInternalInvariantError is an error of kind ErrInternalInvariant: the engine state is
// inconsistent.
type ErrInternalInvariantError = error

// NewInternalInvariantError creates an ErrInternalInvariant error wrapping an optional cause.
func NewInternalInvariantError(message string, cause error) ErrInternalInvariantError {
	return newError(ErrInternalInvariant, message, cause)
}

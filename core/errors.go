package core

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrTxConflict reports a transient write conflict. Transactors retry the whole unit of work on it.
var ErrTxConflict = errors.New("transaction conflict")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindValidation
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// AppError is a business rule violation with a stable machine-readable Code.
// Two AppErrors match with errors.Is when their codes are equal, regardless of Details.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]interface{}
	// SQLState is the P0xxx state some clients match on instead of Code. Empty for most errors.
	SQLState string
}

func NewAppError(kind ErrorKind, code, msg string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: msg}
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e carrying the given details.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithSQLState returns a copy of e tagged with the given P0xxx state.
func (e *AppError) WithSQLState(state string) *AppError {
	cp := *e
	cp.SQLState = state
	return &cp
}

// Withf returns a copy of e with a formatted message.
func (e *AppError) Withf(format string, args ...interface{}) *AppError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// AsAppError extracts the AppError in err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// IsBusinessError reports whether err is a deterministic outcome (an AppError or a ValidationError)
// or a cancellation, as opposed to an infrastructure failure.
func IsBusinessError(err error) bool {
	if _, ok := AsAppError(err); ok {
		return true
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

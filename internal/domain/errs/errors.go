package errs

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	ErrConnection          = errors.New("connection error")
	ErrRequestTimeout      = errors.New("request timeout")
	ErrAuth                = errors.New("auth error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRiskLimitExceeded   = errors.New("risk limit exceeded")
	ErrOrderExecution      = errors.New("order execution failure")
	ErrSessionStateCorrupt = errors.New("session state corrupt")
	ErrCancelled           = errors.New("request cancelled")
)

// Error attaches an operation and an optional cause to one of the kinds above.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// New builds a typed error. err may be nil.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a typed error with a formatted cause.
func Newf(kind error, op, format string, a ...interface{}) *Error {
	return New(kind, op, fmt.Errorf(format, a...))
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// IsFatal reports whether the error must end the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrRiskLimitExceeded)
}

// IsTransient reports whether the error is recovered locally by retry or backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrRequestTimeout)
}

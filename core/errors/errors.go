// Package errors defines the failure kinds shared by the native modules.
//
// Every operation failure is an *Error that carries the module name, the
// module's numeric code and one of the kind sentinels below, so callers can
// match either the exact failure (errors.Is(err, booking.ErrNotFound)) or the
// kind (errors.Is(err, errors.ErrNotFound)).
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrUnauthorized        = stderrors.New("unauthorized")
	ErrInvalidAmount       = stderrors.New("invalid amount")
	ErrInsufficientBalance = stderrors.New("insufficient balance")
	ErrInvalidInput        = stderrors.New("invalid input")
	ErrInvalidRating       = stderrors.New("invalid rating")
	ErrInvalidState        = stderrors.New("invalid state")
	ErrNotFound            = stderrors.New("not found")
)

var kinds = []error{
	ErrUnauthorized,
	ErrInvalidAmount,
	ErrInsufficientBalance,
	ErrInvalidInput,
	ErrInvalidRating,
	ErrInvalidState,
	ErrNotFound,
}

// Error is a typed operation failure.
type Error struct {
	Module string
	Code   uint32
	Kind   error
	msg    string
}

// New constructs a coded failure for module. kind must be one of the package
// sentinels.
func New(module string, code uint32, kind error, msg string) *Error {
	return &Error{Module: module, Code: code, Kind: kind, msg: msg}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Module, e.msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// CodeOf returns the numeric code of the first *Error in err's chain.
func CodeOf(err error) (uint32, bool) {
	var coded *Error
	if stderrors.As(err, &coded) && coded != nil {
		return coded.Code, true
	}
	return 0, false
}

// KindOf returns the kind sentinel wrapped by err, or nil when err is not an
// operation failure (for example a storage fault).
func KindOf(err error) error {
	for _, kind := range kinds {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

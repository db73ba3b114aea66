// Package ccerr defines the typed error vocabulary that every store-facing
// operation in this module returns against, so callers can distinguish
// failure kinds with errors.Is/errors.As instead of string matching.
package ccerr

import (
	"errors"
	"fmt"
)

// Code identifies one of the fixed error kinds the store exposes to callers.
type Code uint8

const (
	_ Code = iota
	NotFound
	IntegrityError
	ChainError
	InvalidBlob
	InvalidMove
	DuplicateGameId
	CatalogError
	IOError
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not found"
	case IntegrityError:
		return "integrity error"
	case ChainError:
		return "chain error"
	case InvalidBlob:
		return "invalid blob"
	case InvalidMove:
		return "invalid move"
	case DuplicateGameId:
		return "duplicate game id"
	case CatalogError:
		return "catalog error"
	case IOError:
		return "I/O error"
	default:
		return "unknown error"
	}
}

// Error wraps an underlying cause with one of the fixed Codes, so that
// errors.Is(err, ccerr.NotFound) works regardless of the wrapping chain.
type Error struct {
	Code Code
	Op   string // operation that failed, e.g. "blobstore.Get"
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code, so
// errors.Is(err, ccerr.New(ccerr.NotFound, "", nil)) matches any *Error
// carrying that code regardless of Op or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an *Error for op with the given code, optionally wrapping cause.
func New(code Code, op string, cause error) error {
	return &Error{Code: code, Op: op, Err: cause}
}

// Newf is New with a formatted cause.
func Newf(code Code, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether the first *Error found in err's chain (via errors.As)
// carries the given code. A *Error nested inside another *Error is not
// consulted.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

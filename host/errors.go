package host

import (
	"errors"
	"net/http"
)

// Error kinds reported by Host implementations.
var (
	ErrRefExists     = errors.New("reference already exists")
	ErrStaleRevision = errors.New("revision token is stale")
	ErrUnauthorized  = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrTransport     = errors.New("transport failure")
)

// Error is a failed remote operation. Kind is one of the
// package sentinel errors, or nil when the failure could
// not be classified.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to
// errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}

	return []error{e.Kind, e.Err}
}

// NewError wraps err as a failure of op with the given
// kind.
func NewError(op string, kind error, err error) *Error {
	if err == nil {
		err = kind
	}

	return &Error{Op: op, Kind: kind, Err: err}
}

// KindForStatus maps the HTTP status of a failed call to
// an error kind. A zero status means no response was
// received at all.
func KindForStatus(status int) error {
	switch {
	case status == 0:
		return ErrTransport
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= http.StatusInternalServerError:
		return ErrTransport
	default:
		return nil
	}
}

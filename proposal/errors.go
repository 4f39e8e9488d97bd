package proposal

import (
	"errors"

	"github.com/byte4ever/usulan/host"
)

// Kind classifies a failed submission.
type Kind string

// Failure kinds.
const (
	KindValidation    Kind = "validation"
	KindRefConflict   Kind = "ref-conflict"
	KindWriteConflict Kind = "write-conflict"
	KindTransport     Kind = "transport-failure"
	KindAuthorization Kind = "authorization-failure"
	KindInternal      Kind = "internal"
)

// Error is a failed remote step of a submission.
type Error struct {
	Kind Kind
	// Step is the host operation that failed.
	Step string
	// Branch is the proposal branch, empty when the
	// failure happened before it was named.
	Branch string
	Err    error
}

// Error returns the underlying failure message.
func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err. Errors that did
// not come out of Submit are internal.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		pe *Error
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &pe):
		return pe.Kind
	default:
		return KindInternal
	}
}

// kindFor maps a host failure onto a submission kind.
func kindFor(err error) Kind {
	switch {
	case errors.Is(err, host.ErrRefExists):
		return KindRefConflict
	case errors.Is(err, host.ErrStaleRevision):
		return KindWriteConflict
	case errors.Is(err, host.ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, host.ErrTransport),
		errors.Is(err, host.ErrRateLimited):
		return KindTransport
	default:
		return KindInternal
	}
}

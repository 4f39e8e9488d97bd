package proposal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Validation failure reasons.
var (
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrMalformedBody    = errors.New("malformed request body")
	ErrMissingField     = errors.New("missing required field")
)

// Request is a proposed dictionary entry. Field order
// matches the entries stored in the dataset.
type Request struct {
	Kata   string `json:"kata"`
	Bahasa string `json:"bahasa"`
	Arti   string `json:"arti"`
}

// ValidationError rejects a request before any remote
// call is made.
type ValidationError struct {
	// Reason is one of the package validation errors.
	Reason error
	// Fields lists the missing fields for
	// ErrMissingField.
	Fields []string
	// Err is the underlying decode failure, if any.
	Err error
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Fields) > 0:
		return fmt.Sprintf(
			"%s: %s", e.Reason, strings.Join(e.Fields, ", "),
		)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Reason, e.Err)
	default:
		return e.Reason.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Message is the text shown to the submitter.
func (e *ValidationError) Message() string {
	switch {
	case errors.Is(e.Reason, ErrMethodNotAllowed):
		return "Method Not Allowed"
	case errors.Is(e.Reason, ErrMalformedBody):
		return "Format data tidak valid."
	default:
		return "Semua field wajib diisi."
	}
}

// DecodeRequest checks the HTTP method, parses body as a
// JSON object, and validates the result.
func DecodeRequest(method string, body []byte) (Request, error) {
	if method != http.MethodPost {
		return Request{}, &ValidationError{
			Reason: ErrMethodNotAllowed,
		}
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, &ValidationError{
			Reason: ErrMalformedBody,
			Err:    err,
		}
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}

	return req, nil
}

// Validate reports every field that is empty once
// surrounding whitespace is removed.
func (r Request) Validate() error {
	var missing []string

	for _, f := range []struct{ name, value string }{
		{"kata", r.Kata},
		{"bahasa", r.Bahasa},
		{"arti", r.Arti},
	} {
		if strings.TrimFunc(f.value, isSpace) == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return &ValidationError{
			Reason: ErrMissingField,
			Fields: missing,
		}
	}

	return nil
}

package server

import (
	"errors"
	"net/http"

	"github.com/byte4ever/usulan/proposal"
)

// Messages returned to submitters.
const (
	MsgMethodNotAllowed = "Method Not Allowed"
	MsgNotFound         = "Not Found"
	MsgInternal         = "Terjadi kesalahan internal di server."
	MsgRefConflict      = "Branch usulan sudah ada, silakan kirim ulang."
	MsgWriteConflict    = "Database sedang diperbarui, silakan kirim ulang."
	MsgAuthorization    = "Server tidak memiliki akses ke repositori."
	MsgTransport        = "Layanan repositori tidak dapat dihubungi."
)

type successResponse struct {
	Message string `json:"message"`
	PRURL   string `json:"pr_url"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// failure is the HTTP rendition of a submission error.
type failure struct {
	status int
	body   errorResponse
}

// describe maps err onto a status and response body.
func (s *Server) describe(err error) failure {
	var ve *proposal.ValidationError
	if errors.As(err, &ve) {
		switch {
		case errors.Is(ve.Reason, proposal.ErrMethodNotAllowed):
			return failure{
				status: http.StatusMethodNotAllowed,
				body:   errorResponse{Message: ve.Message()},
			}
		case errors.Is(ve.Reason, proposal.ErrMalformedBody) &&
			s.cfg.LegacyErrors:
			// The legacy handler failed parsing inside
			// its catch-all.
			return s.internal(err)
		default:
			return failure{
				status: http.StatusBadRequest,
				body:   errorResponse{Message: ve.Message()},
			}
		}
	}

	if s.cfg.LegacyErrors {
		return s.internal(err)
	}

	kind := proposal.KindOf(err)

	f := failure{body: errorResponse{Error: s.detail(kind, err)}}

	switch kind {
	case proposal.KindRefConflict:
		f.status = http.StatusConflict
		f.body.Message = MsgRefConflict
	case proposal.KindWriteConflict:
		f.status = http.StatusConflict
		f.body.Message = MsgWriteConflict
	case proposal.KindAuthorization:
		f.status = http.StatusBadGateway
		f.body.Message = MsgAuthorization
	case proposal.KindTransport:
		f.status = http.StatusBadGateway
		f.body.Message = MsgTransport
	default:
		f.status = http.StatusInternalServerError
		f.body.Message = MsgInternal
	}

	return f
}

func (s *Server) internal(err error) failure {
	return failure{
		status: http.StatusInternalServerError,
		body: errorResponse{
			Message: MsgInternal,
			Error:   s.detail(proposal.KindInternal, err),
		},
	}
}

// detail is the error field content: the raw message,
// or only the kind when details are hidden.
func (s *Server) detail(kind proposal.Kind, err error) string {
	if s.cfg.ExposeErrorDetail {
		return err.Error()
	}

	return string(kind)
}

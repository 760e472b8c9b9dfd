package handler

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/core/service"
)

// ErrResponse renders every failed request.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	Success    bool   `json:"success"`
	StatusText string `json:"message"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "invalid request",
		ErrorText:      err.Error(),
	}
}

// classify maps a service error onto a status code and a short message.
func classify(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrPurchaseLimit):
		return http.StatusBadRequest, "purchase limit exceeded"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "concurrent modification"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid state transition"
	case errors.Is(err, domain.ErrInvalidReservation):
		return http.StatusConflict, "reservation no longer held"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrDealNotActive):
		return http.StatusForbidden, "deal not active"
	case errors.Is(err, service.ErrLedgerUnavailable), errors.Is(err, service.ErrLedgerNotSeeded):
		return http.StatusServiceUnavailable, "temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func ErrFromService(err error) render.Renderer {
	status, message := classify(err)
	resp := &ErrResponse{Err: err, HTTPStatusCode: status, StatusText: message}
	if status < http.StatusInternalServerError {
		resp.ErrorText = err.Error()
	}
	return resp
}

func Render(w http.ResponseWriter, r *http.Request, rnd render.Renderer) {
	if err := render.Render(w, r, rnd); err != nil {
		log.Warn().Err(err).Msg("failed to render")
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("uri", r.RequestURI).Msg("request failed")
	}
	Render(w, r, ErrFromService(err))
}

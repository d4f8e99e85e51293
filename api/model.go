package api

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/rs/zerolog/log"
)

// ErrResponse renderer type for handling all sorts of errors.
type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText string `json:"status"`          // user-level status message
	AppCode    int64  `json:"code,omitempty"`  // application-specific error code
	ErrorText  string `json:"error,omitempty"` // application-level error message, for debugging

	Conflict    *ConflictResponse `json:"conflict,omitempty"`
	AvailableAt *time.Time        `json:"availableAt,omitempty"`
}

// ConflictResponse is the booking that already holds the requested unit.
type ConflictResponse struct {
	TransactionID uint64    `json:"transactionId"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrConflict(err error) *ErrResponse {
	resp := &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusConflict,
		StatusText:     "Unit is not free for the requested window.",
		ErrorText:      err.Error(),
	}

	var conflict *rental.ConflictError
	if errors.As(err, &conflict) {
		resp.Conflict = &ConflictResponse{TransactionID: conflict.TransactionID, Start: conflict.Start, End: conflict.End}
	}
	var returned *rental.RecentlyReturnedError
	if errors.As(err, &returned) {
		at := returned.AvailableAt
		resp.AvailableAt = &at
	}
	return resp
}

func ErrUnprocessable(err error) *ErrResponse {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnprocessableEntity,
		StatusText:     "Request cannot be applied in the current state.",
		ErrorText:      err.Error(),
	}
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}
var ErrInternalServer = &ErrResponse{
	Err:            nil,
	HTTPStatusCode: http.StatusInternalServerError,
	StatusText:     "Internal server error.",
	ErrorText:      "An internal server error has occurred.",
}

// RenderError maps a service error onto its response. Anything that is not a known client error is logged and
// hidden behind a 500.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		Render(w, r, ErrNotFound)
	case errors.Is(err, rental.ErrConflict), errors.Is(err, rental.ErrRecentlyReturned):
		Render(w, r, ErrConflict(err))
	case errors.Is(err, rental.ErrAlreadyCompleted), errors.Is(err, rental.ErrNotDeletable),
		errors.Is(err, rental.ErrIllegalTransition), errors.Is(err, rental.ErrUnitUnavailable):
		Render(w, r, ErrUnprocessable(err))
	case rental.IsClientError(err):
		Render(w, r, ErrInvalidRequest(err))
	default:
		log.Error().Err(err).Str("uri", r.RequestURI).Msg("request failed")
		Render(w, r, ErrInternalServer)
	}
}

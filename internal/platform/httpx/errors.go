// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors mapped onto problem responses.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("resource not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpstream        = errors.New("upstream unavailable")
	ErrUpstreamTimeout = errors.New("upstream timed out")
)

// DetailError attaches a user-facing detail to a sentinel.
type DetailError struct {
	Err    error
	Detail string
}

func (e *DetailError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *DetailError) Unwrap() error { return e.Err }

// WithDetail wraps err so RespondError shows detail instead of the sentinel text.
func WithDetail(err error, detail string) error {
	return &DetailError{Err: err, Detail: detail}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	detail := err.Error()
	var de *DetailError
	if errors.As(err, &de) && de.Detail != "" {
		detail = de.Detail
	}
	switch {
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", detail)
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", detail)
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", detail)
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", detail)
	case errors.Is(err, ErrUpstreamTimeout):
		Problem(w, http.StatusGatewayTimeout, "Backend Timeout", detail)
	case errors.Is(err, ErrUpstream):
		Problem(w, http.StatusBadGateway, "Backend Unavailable", detail)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

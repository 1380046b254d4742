// Package httpapi exposes the vault over HTTP/JSON. It is a thin
// transport: request decoding, token checks, and response envelopes
// live here, every rule lives in the services layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zecrypt/vault/internal/common"
)

// envelope is the uniform response shape. Count/Page/Limit are only
// present on paginated list responses.
type envelope struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	Count      *int   `json:"count,omitempty"`
	Page       *int   `json:"page,omitempty"`
	Limit      *int   `json:"limit,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, e envelope) {
	e.StatusCode = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Message: message, Data: data})
}

func respondPage(w http.ResponseWriter, message string, data any, count, page, limit int) {
	writeJSON(w, http.StatusOK, envelope{
		Message: message,
		Data:    data,
		Count:   &count,
		Page:    &page,
		Limit:   &limit,
	})
}

// respondError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is an internal error and its detail stays out of the
// response body.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		respond(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, common.ErrConflict):
		respond(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, common.ErrAlreadyEnrolled):
		respond(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, common.ErrNotFound):
		respond(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, common.ErrCodeInvalid),
		errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		respond(w, http.StatusUnauthorized, err.Error(), nil)
	default:
		respond(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return common.ErrValidation
	}
	return nil
}

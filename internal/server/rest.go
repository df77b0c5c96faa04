package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/saga-it/qyburn/internal/workflow"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write response")
	}
}

// decodeJSON reads the request body into v. Fields absent from the body keep
// their current value, which is how PATCH merges into a stored entity.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return store.Invalid("body", err.Error())
	}
	return nil
}

// statusFor maps store and workflow errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case store.IsNotFound(err):
		return http.StatusNotFound
	case store.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrRequestReviewed),
		errors.Is(err, store.ErrRequestPending),
		errors.Is(err, store.ErrGroupAlreadyExists),
		errors.Is(err, store.ErrAlreadyAssigned),
		errors.Is(err, store.ErrNoSeatsAvailable):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	msg := err.Error()
	switch status {
	case http.StatusNotFound:
		msg = "Not found"
	case http.StatusInternalServerError:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		msg = "Internal server error"
	}

	writeJSON(w, r, status, errorResponse{Error: msg})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/andy/billsink/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// respondWithJSON is a helper to write JSON responses.
func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondWithStatus(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, errorBody{Error: errorDetail{Kind: kindName(status), Message: message}})
}

// respondWithError maps a service error onto its HTTP status.
func respondWithError(w http.ResponseWriter, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		status, kind = http.StatusNotFound, "not_found"
	case domain.ErrValidation:
		status, kind = http.StatusUnprocessableEntity, "validation"
	case domain.ErrInvalidTransition:
		status, kind = http.StatusConflict, "invalid_transition"
	case domain.ErrImmutable:
		status, kind = http.StatusConflict, "immutable"
	case domain.ErrConflict:
		status, kind = http.StatusConflict, "conflict"
	case domain.ErrConcurrency:
		status, kind = http.StatusConflict, "concurrency"
	case domain.ErrDependency:
		status, kind = http.StatusBadGateway, "dependency"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		message = "internal error"
	}
	respondWithJSON(w, status, errorBody{Error: errorDetail{
		Kind:    kind,
		Message: message,
		Field:   domain.FieldOf(err),
	}})
}

func kindName(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadRequest:
		return "bad_request"
	}
	return "error"
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return domain.Validation("body", "malformed JSON")
		}
		return domain.Validation("body", err.Error())
	}
	return nil
}

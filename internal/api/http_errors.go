package api

import (
	"errors"
	"net/http"

	"github.com/cascade-labs/cascade/internal/core"
	"github.com/cascade-labs/cascade/internal/logging"
)

// errorBody is the wire shape of error responses.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusFor(err error) (int, string) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return http.StatusInternalServerError, ""
	}
	switch {
	case domErr.Code == core.CodeNotFound:
		return http.StatusNotFound, domErr.Code
	case domErr.Category == core.ErrCatValidation:
		return http.StatusUnprocessableEntity, domErr.Code
	case domErr.Category == core.ErrCatPersistence, domErr.Category == core.ErrCatState:
		return http.StatusServiceUnavailable, domErr.Code
	default:
		return http.StatusInternalServerError, domErr.Code
	}
}

func respondError(w http.ResponseWriter, logger *logging.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err.Error())
	}
	respondJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

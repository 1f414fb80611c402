// backend/src/handlers/response.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/security/validation"
	"github.com/username/standingbank/backend/src/services"
)

const maxRequestBodyBytes = 1 << 20

func sendJSON(w http.ResponseWriter, payload any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Error("Failed to encode JSON response", "error", err)
	}
}

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// decodeJSON reads a single JSON object into dst and runs its validate tags.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return models.NewValidationError("body", "invalid JSON: %v", err)
	}
	return validation.ValidateStruct(dst)
}

// writeServiceError maps domain errors onto HTTP status codes. Unexpected
// errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrAccountInactive),
		errors.Is(err, models.ErrCurrencyMismatch),
		errors.Is(err, models.ErrInsufficientHoldings):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrTerminalState),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConcurrentUpdate):
		status = http.StatusConflict
	case errors.Is(err, services.ErrQuoteUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorFromContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			sendJSONError(w, "internal server error", status)
			return
		}
	}
	sendJSONError(w, err.Error(), status)
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, models.NewValidationError("limit", "must be a positive integer")
	}
	return limit, nil
}

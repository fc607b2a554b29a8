package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/models"
	"flipit-overrides-api/internal/overrides"
	"flipit-overrides-api/internal/services"
)

// writeJSONResponse is a helper function to write JSON responses
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse is a helper function to write error responses
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// writeServiceError maps session, controller and backend errors to HTTP
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var saveErr *overrides.SaveError
	if errors.As(err, &saveErr) {
		status, code := backendStatus(saveErr.Err)
		writeErrorResponse(w, status, code, saveErr.Message, nil)
		return
	}

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		writeErrorResponse(w, http.StatusNotFound, "session_not_found", "Edit session not found or expired", nil)
	case errors.Is(err, services.ErrInvalidListingID):
		writeErrorResponse(w, http.StatusBadRequest, "invalid_listing_id", "Listing id must be a UUID", nil)
	case errors.Is(err, client.ErrUnknownPlatform):
		writeErrorResponse(w, http.StatusBadRequest, "invalid_platform", err.Error(), nil)
	case errors.Is(err, overrides.ErrPlatformDisabled),
		errors.Is(err, overrides.ErrSchemaNotReady),
		errors.Is(err, overrides.ErrNoCategory):
		writeErrorResponse(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, overrides.ErrUnknownField), errors.Is(err, overrides.ErrInvalidValue):
		writeErrorResponse(w, http.StatusBadRequest, "invalid_value", err.Error(), nil)
	default:
		status, code := backendStatus(err)
		if status == http.StatusBadGateway {
			slog.Error("Backend request failed", "path", r.URL.Path, "error", err)
		}
		writeErrorResponse(w, status, code, err.Error(), nil)
	}
}

// backendStatus classifies a FlipIt backend failure
func backendStatus(err error) (int, string) {
	switch {
	case errors.Is(err, client.ErrUnauthorized), errors.Is(err, client.ErrMissingCredentials):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, client.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusBadGateway, "backend_error"
	}
}

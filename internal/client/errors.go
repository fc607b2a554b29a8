package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the bearer token was missing, invalid or expired
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means the listing or category does not exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyCategory is returned when an attribute lookup has no category id
	ErrEmptyCategory = errors.New("category id is required")
	// ErrUnknownPlatform is returned for platforms outside the supported set
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrMissingCredentials is returned when a call is made without a token
	ErrMissingCredentials = errors.New("missing credentials")
)

// APIError is a non-2xx answer from the FlipIt backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend request failed with status %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match auth and not-found failures with errors.Is
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// StatusCode extracts the backend status from err, or 0 for transport errors
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

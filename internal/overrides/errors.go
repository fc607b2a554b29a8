package overrides

import (
	"errors"
	"fmt"

	"flipit-overrides-api/internal/client"
)

var (
	// ErrPlatformDisabled is returned when editing a card that is toggled off
	ErrPlatformDisabled = errors.New("platform override is disabled")
	// ErrSchemaNotReady is returned when values are set before a schema loaded
	ErrSchemaNotReady = errors.New("attribute schema is not loaded")
	// ErrUnknownField is returned for keys outside the loaded schema
	ErrUnknownField = errors.New("unknown attribute field")
	// ErrInvalidValue is returned for values that are not scalars or lists of scalars
	ErrInvalidValue = errors.New("invalid attribute value")
	// ErrNoCategory is returned by Retry when no category id is set
	ErrNoCategory = errors.New("no category id to fetch")
)

// fetchErrorMessage turns a schema lookup failure into the inline card message
func fetchErrorMessage(platform string, categoryID string, err error) string {
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, client.ErrNotFound):
		return fmt.Sprintf("Category %s was not found on %s.", categoryID, platform)
	default:
		return "Failed to load attributes for this category. Check the category id and try again."
	}
}

package overrides

import (
	"context"
	"errors"
	"log/slog"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/models"
)

// SaveOutcome classifies a save attempt
type SaveOutcome string

const (
	SaveSucceeded    SaveOutcome = "saved"
	SaveUnauthorized SaveOutcome = "unauthorized"
	SaveNotFound     SaveOutcome = "not_found"
	SaveFailed       SaveOutcome = "failed"
)

// ItemUpdater PATCHes a listing on the backend
type ItemUpdater interface {
	UpdateItem(ctx context.Context, creds client.Credentials, listingID string, update models.UpdateListingRequest) (*models.Listing, error)
}

// SaveObserver is notified about every save attempt
type SaveObserver interface {
	SaveCompleted(outcome SaveOutcome)
}

// SaveError is a failed save with one message fit to show the seller
type SaveError struct {
	Message string
	Err     error
}

func (e *SaveError) Error() string {
	return e.Message
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Persister writes the complete override set of a listing in one PATCH
type Persister struct {
	updater  ItemUpdater
	observer SaveObserver
}

// NewPersister creates a persister. observer may be nil.
func NewPersister(updater ItemUpdater, observer SaveObserver) *Persister {
	return &Persister{updater: updater, observer: observer}
}

// SaveOverrides sends the whole set. Platforms that are disabled or have no
// category are left out so the backend falls back to the listing defaults.
func (p *Persister) SaveOverrides(ctx context.Context, creds client.Credentials, listingID string, set models.ListingOverrideSet) (*models.Listing, error) {
	return p.SavePayload(ctx, creds, listingID, set.ToWire())
}

// SavePayload sends an already built platform_listing_overrides object
func (p *Persister) SavePayload(ctx context.Context, creds client.Credentials, listingID string, payload map[string]map[string]any) (*models.Listing, error) {
	if payload == nil {
		payload = map[string]map[string]any{}
	}

	listing, err := p.updater.UpdateItem(ctx, creds, listingID, models.UpdateListingRequest{
		PlatformListingOverrides: payload,
	})
	outcome := classifySave(err)
	if p.observer != nil {
		p.observer.SaveCompleted(outcome)
	}
	if err != nil {
		slog.Error("Failed to save platform overrides", "listing_id", listingID, "outcome", outcome, "error", err)
		return nil, &SaveError{Message: saveErrorMessage(outcome), Err: err}
	}

	slog.Info("Platform overrides saved", "listing_id", listingID, "platforms", len(payload))
	return listing, nil
}

func classifySave(err error) SaveOutcome {
	switch {
	case err == nil:
		return SaveSucceeded
	case errors.Is(err, client.ErrUnauthorized), errors.Is(err, client.ErrMissingCredentials):
		return SaveUnauthorized
	case errors.Is(err, client.ErrNotFound):
		return SaveNotFound
	default:
		return SaveFailed
	}
}

func saveErrorMessage(outcome SaveOutcome) string {
	switch outcome {
	case SaveUnauthorized:
		return "Your session has expired. Please sign in again to save your changes."
	case SaveNotFound:
		return "This listing no longer exists."
	default:
		return "Failed to save platform overrides. Please try again."
	}
}

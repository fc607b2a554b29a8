package overrides

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/models"
)

// ListingLoader reads a listing from the backend
type ListingLoader interface {
	GetItem(ctx context.Context, creds client.Credentials, listingID string) (*models.Listing, error)
}

// SessionConfig wires the collaborators of an edit session
type SessionConfig struct {
	Loader           ListingLoader
	Fetcher          AttributeFetcher
	Persister        *Persister
	Clock            Clock
	Debounce         time.Duration
	AttributeOptions client.AttributeOptions
	Observer         FetchObserver
}

// EditSession is one seller editing the platform overrides of one listing.
// It owns the aggregate override set and is the only component that saves it.
type EditSession struct {
	id        string
	listingID string
	title     string
	createdAt time.Time
	owner     client.Credentials

	store       *Store
	controllers map[models.Platform]*CardController
	persister   *Persister

	saveMu sync.Mutex
}

// PlatformView is the state and rendered form of one platform card
type PlatformView struct {
	CardSnapshot
	Form FormView `json:"form"`
}

// SessionView is the full state of an edit session
type SessionView struct {
	ID             string            `json:"id"`
	ListingID      string            `json:"listingId"`
	Title          string            `json:"title,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	Platforms      []PlatformView    `json:"platforms"`
	DirtyPlatforms []models.Platform `json:"dirtyPlatforms"`
}

// OpenSession loads the listing so the full persisted set is present before
// any platform is edited, then seeds one controller per platform.
func OpenSession(ctx context.Context, creds client.Credentials, listingID string, cfg SessionConfig) (*EditSession, error) {
	listing, err := cfg.Loader.GetItem(ctx, creds, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	s := &EditSession{
		id:          uuid.NewString(),
		listingID:   listingID,
		title:       listing.Title,
		createdAt:   clock.Now(),
		owner:       creds,
		store:       NewStore(listing.PlatformListingOverrides),
		controllers: make(map[models.Platform]*CardController, len(models.AllPlatforms)),
		persister:   cfg.Persister,
	}

	for _, platform := range models.AllPlatforms {
		s.controllers[platform] = NewCardController(ControllerConfig{
			Platform:         platform,
			Fetcher:          cfg.Fetcher,
			Clock:            clock,
			Debounce:         cfg.Debounce,
			AttributeOptions: cfg.AttributeOptions,
			OnChange:         s.store.Apply,
			Observer:         cfg.Observer,
		})
	}
	for _, platform := range models.AllPlatforms {
		s.controllers[platform].LoadSaved(creds, s.store.Get(platform))
	}

	slog.Info("Opened override edit session", "session_id", s.id, "listing_id", listingID)
	return s, nil
}

// ID returns the session id
func (s *EditSession) ID() string {
	return s.id
}

// ListingID returns the id of the listing being edited
func (s *EditSession) ListingID() string {
	return s.listingID
}

// OwnedBy reports whether creds are the credentials the session was opened with
func (s *EditSession) OwnedBy(creds client.Credentials) bool {
	return creds.Token != "" && subtle.ConstantTimeCompare([]byte(creds.Token), []byte(s.owner.Token)) == 1
}

// Controller returns the card controller of a platform
func (s *EditSession) Controller(platform models.Platform) (*CardController, error) {
	c, ok := s.controllers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", client.ErrUnknownPlatform, platform)
	}
	return c, nil
}

// SetEnabled toggles the override of a platform
func (s *EditSession) SetEnabled(platform models.Platform, enabled bool) error {
	c, err := s.Controller(platform)
	if err != nil {
		return err
	}
	c.SetEnabled(enabled)
	return nil
}

// SetCategory edits the category override of a platform
func (s *EditSession) SetCategory(creds client.Credentials, platform models.Platform, categoryID string) error {
	c, err := s.Controller(platform)
	if err != nil {
		return err
	}
	return c.SetCategory(creds, categoryID)
}

// SetValue edits one attribute value of a platform
func (s *EditSession) SetValue(platform models.Platform, key string, value any) error {
	c, err := s.Controller(platform)
	if err != nil {
		return err
	}
	return c.SetValue(key, value)
}

// SetOptionalExpanded shows or hides a platform's optional fields
func (s *EditSession) SetOptionalExpanded(platform models.Platform, expanded bool) error {
	c, err := s.Controller(platform)
	if err != nil {
		return err
	}
	return c.SetOptionalExpanded(expanded)
}

// Retry re-fetches a platform's schema
func (s *EditSession) Retry(creds client.Credentials, platform models.Platform) error {
	c, err := s.Controller(platform)
	if err != nil {
		return err
	}
	return c.Retry(creds)
}

// Platform returns one platform card
func (s *EditSession) Platform(platform models.Platform) (PlatformView, error) {
	c, err := s.Controller(platform)
	if err != nil {
		return PlatformView{}, err
	}
	return PlatformView{CardSnapshot: c.Snapshot(), Form: c.Form()}, nil
}

// Overrides returns a copy of the in-memory override set
func (s *EditSession) Overrides() models.ListingOverrideSet {
	return s.store.Snapshot()
}

// View returns every platform card in display order
func (s *EditSession) View() SessionView {
	view := SessionView{
		ID:             s.id,
		ListingID:      s.listingID,
		Title:          s.title,
		CreatedAt:      s.createdAt,
		Platforms:      make([]PlatformView, 0, len(models.AllPlatforms)),
		DirtyPlatforms: s.store.Dirty(),
	}
	if view.DirtyPlatforms == nil {
		view.DirtyPlatforms = []models.Platform{}
	}
	for _, platform := range models.AllPlatforms {
		c := s.controllers[platform]
		view.Platforms = append(view.Platforms, PlatformView{CardSnapshot: c.Snapshot(), Form: c.Form()})
	}
	return view
}

// Save persists the complete override set. On failure the in-memory state
// is left as is so the seller can retry.
func (s *EditSession) Save(ctx context.Context, creds client.Credentials) (SessionView, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	payload := s.store.Payload()
	listing, err := s.persister.SavePayload(ctx, creds, s.listingID, payload)
	if err != nil {
		return SessionView{}, err
	}

	saved := payload
	if listing != nil && listing.PlatformListingOverrides != nil {
		saved = listing.PlatformListingOverrides
	}
	s.store.MarkSaved(saved)
	return s.View(), nil
}

// Close stops every controller. Unsaved edits are discarded.
func (s *EditSession) Close() {
	for _, c := range s.controllers {
		c.Close()
	}
	slog.Debug("Closed override edit session", "session_id", s.id, "listing_id", s.listingID)
}

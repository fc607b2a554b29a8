package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flipit-overrides-api/internal/cache"
	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/overrides"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("edit session not found")
	// ErrInvalidListingID is returned when a listing id is not a UUID
	ErrInvalidListingID = errors.New("invalid listing id")
)

// Backend is the part of the FlipIt backend an edit session needs
type Backend interface {
	overrides.ListingLoader
	overrides.AttributeFetcher
	overrides.ItemUpdater
}

// SessionServiceConfig configures the session registry
type SessionServiceConfig struct {
	TTL              time.Duration
	CleanupInterval  time.Duration
	Debounce         time.Duration
	AttributeOptions client.AttributeOptions
	Clock            overrides.Clock
	FetchObserver    overrides.FetchObserver
	SaveObserver     overrides.SaveObserver
}

// SessionService keeps listing edit sessions in memory. Sessions not touched
// for the TTL expire and are closed, discarding unsaved edits.
type SessionService struct {
	backend   Backend
	persister *overrides.Persister
	sessions  *cache.TTLCache[*overrides.EditSession]
	cfg       SessionServiceConfig
}

// NewSessionService creates a new session service instance
func NewSessionService(backend Backend, cfg SessionServiceConfig) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	return &SessionService{
		backend:   backend,
		persister: overrides.NewPersister(backend, cfg.SaveObserver),
		sessions: cache.NewTTLCache[*overrides.EditSession](cfg.TTL, cfg.CleanupInterval, func(id string, session *overrides.EditSession) {
			slog.Debug("Edit session evicted", "session_id", id)
			session.Close()
		}),
		cfg: cfg,
	}
}

// Open loads a listing and starts an edit session for it
func (s *SessionService) Open(ctx context.Context, creds client.Credentials, listingID string) (*overrides.EditSession, error) {
	if _, err := uuid.Parse(listingID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidListingID, listingID)
	}

	session, err := overrides.OpenSession(ctx, creds, listingID, overrides.SessionConfig{
		Loader:           s.backend,
		Fetcher:          s.backend,
		Persister:        s.persister,
		Clock:            s.cfg.Clock,
		Debounce:         s.cfg.Debounce,
		AttributeOptions: s.cfg.AttributeOptions,
		Observer:         s.cfg.FetchObserver,
	})
	if err != nil {
		return nil, err
	}

	s.sessions.Set(session.ID(), session)
	return session, nil
}

// Get returns a live session opened with creds and refreshes its TTL. A
// session owned by other credentials is reported as not found.
func (s *SessionService) Get(sessionID string, creds client.Credentials) (*overrides.EditSession, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if !session.OwnedBy(creds) {
		slog.Warn("Edit session requested with foreign credentials", "session_id", sessionID)
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// Close discards a session opened with creds and its unsaved edits
func (s *SessionService) Close(sessionID string, creds client.Credentials) error {
	if _, err := s.Get(sessionID, creds); err != nil {
		return err
	}
	if !s.sessions.Delete(sessionID) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	slog.Info("Edit session discarded", "session_id", sessionID)
	return nil
}

// ActiveSessions returns the number of live sessions
func (s *SessionService) ActiveSessions() int {
	return s.sessions.ActiveSize()
}

// Stats returns registry statistics for the health endpoint
func (s *SessionService) Stats() map[string]interface{} {
	return s.sessions.GetStats()
}

// Shutdown closes every session and stops the cleanup loop
func (s *SessionService) Shutdown() {
	s.sessions.Stop()
	s.sessions.Clear()
}

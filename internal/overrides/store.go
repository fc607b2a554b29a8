package overrides

import (
	"reflect"
	"sync"

	"flipit-overrides-api/internal/models"
)

// Store is the aggregate override state of one listing edit session.
// Controllers report changes through Apply; only the session persists it.
type Store struct {
	mu       sync.RWMutex
	current  models.ListingOverrideSet
	baseline models.ListingOverrideSet
	// entries for platforms this service cannot edit, sent back untouched
	passthrough map[string]map[string]any
}

// NewStore seeds the store from the listing's persisted overrides
func NewStore(wire map[string]map[string]any) *Store {
	set, unknown := models.OverrideSetFromWire(wire)
	return &Store{
		current:     set.Clone(),
		baseline:    set,
		passthrough: unknown,
	}
}

// Get returns a copy of the platform's override
func (s *Store) Get(platform models.Platform) models.PlatformOverride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[platform].Clone()
}

// Apply records the platform's latest override
func (s *Store) Apply(platform models.Platform, override models.PlatformOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[platform] = override.Clone()
}

// Snapshot returns a deep copy of the full override set
func (s *Store) Snapshot() models.ListingOverrideSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Payload builds the complete platform_listing_overrides object for a save
func (s *Store) Payload() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wire := s.current.ToWire()
	for name, entry := range s.passthrough {
		if _, exists := wire[name]; !exists {
			wire[name] = entry
		}
	}
	return wire
}

// MarkSaved adopts the persisted overrides as the new baseline
func (s *Store) MarkSaved(wire map[string]map[string]any) {
	set, unknown := models.OverrideSetFromWire(wire)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = set
	s.passthrough = unknown
}

// Dirty lists the platforms whose effective override differs from the last
// persisted state, in stable order.
func (s *Store) Dirty() []models.Platform {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.current.ToWire()
	baseline := s.baseline.ToWire()

	var dirty []models.Platform
	for _, platform := range models.AllPlatforms {
		name := string(platform)
		if !reflect.DeepEqual(normalizeEntry(current[name]), normalizeEntry(baseline[name])) {
			dirty = append(dirty, platform)
		}
	}
	return dirty
}

// normalizeEntry compares values by their string form so 12345 and "12345"
// read back from JSON count as equal.
func normalizeEntry(entry map[string]any) map[string][]string {
	if len(entry) == 0 {
		return nil
	}
	out := make(map[string][]string, len(entry))
	for k, v := range entry {
		if list, ok := v.([]any); ok {
			items := make([]string, len(list))
			for i, item := range list {
				items[i] = models.ValueString(item)
			}
			out[k] = items
			continue
		}
		out[k] = []string{models.ValueString(v)}
	}
	return out
}

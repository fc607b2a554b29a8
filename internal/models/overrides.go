package models

import (
	"log/slog"
	"strings"
)

// CategoryKey is the reserved key holding the category override inside a
// platform's persisted override map.
const CategoryKey = "category_id"

// PlatformOverride holds the platform-specific category and attribute values
// that supersede the listing defaults at publish time.
type PlatformOverride struct {
	CategoryID      string         `json:"categoryId,omitempty"`
	AttributeValues map[string]any `json:"attributeValues,omitempty"`
}

// IsCustomized reports whether the platform carries a category override.
// Without a category the platform falls back to the listing defaults.
func (o PlatformOverride) IsCustomized() bool {
	return strings.TrimSpace(o.CategoryID) != ""
}

// Clone returns a deep copy of the override
func (o PlatformOverride) Clone() PlatformOverride {
	clone := PlatformOverride{CategoryID: o.CategoryID}
	if o.AttributeValues != nil {
		clone.AttributeValues = make(map[string]any, len(o.AttributeValues))
		for k, v := range o.AttributeValues {
			if list, ok := v.([]any); ok {
				v = append([]any(nil), list...)
			}
			clone.AttributeValues[k] = v
		}
	}
	return clone
}

// ListingOverrideSet maps each platform to its override for one listing
type ListingOverrideSet map[Platform]PlatformOverride

// Clone returns a deep copy of the set
func (s ListingOverrideSet) Clone() ListingOverrideSet {
	clone := make(ListingOverrideSet, len(s))
	for p, o := range s {
		clone[p] = o.Clone()
	}
	return clone
}

// ToWire converts the set into the backend's platform_listing_overrides
// layout. Platforms without a category override are omitted so the backend
// falls back to the listing defaults for them.
func (s ListingOverrideSet) ToWire() map[string]map[string]any {
	wire := make(map[string]map[string]any, len(s))
	for platform, override := range s {
		if !override.IsCustomized() {
			continue
		}
		entry := make(map[string]any, len(override.AttributeValues)+1)
		for k, v := range override.AttributeValues {
			if k == CategoryKey {
				continue
			}
			entry[k] = v
		}
		entry[CategoryKey] = override.CategoryID
		wire[string(platform)] = entry
	}
	return wire
}

// OverrideSetFromWire parses the backend layout. Only canonical platform keys
// are parsed; any other key, including a differently cased platform name, is
// returned separately so a save can send it back untouched.
func OverrideSetFromWire(wire map[string]map[string]any) (ListingOverrideSet, map[string]map[string]any) {
	set := make(ListingOverrideSet, len(wire))
	var unknown map[string]map[string]any
	for name, entry := range wire {
		platform := Platform(name)
		if !platform.IsValid() {
			slog.Debug("Keeping overrides for unknown platform as-is", "platform", name)
			if unknown == nil {
				unknown = make(map[string]map[string]any)
			}
			unknown[name] = entry
			continue
		}

		override := PlatformOverride{AttributeValues: make(map[string]any)}
		for k, v := range entry {
			if k == CategoryKey {
				override.CategoryID = strings.TrimSpace(ValueString(v))
				continue
			}
			override.AttributeValues[k] = v
		}
		set[platform] = override
	}
	return set, unknown
}

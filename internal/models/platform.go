package models

import (
	"fmt"
	"strings"
)

// Platform identifies a marketplace a listing can be published or synced to
type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformVinted   Platform = "vinted"
	PlatformOLX      Platform = "olx"
	PlatformEbay     Platform = "ebay"
)

// AllPlatforms lists every supported marketplace in display order
var AllPlatforms = []Platform{PlatformFacebook, PlatformVinted, PlatformOLX, PlatformEbay}

// ParsePlatform converts a path or JSON value into a Platform
func ParsePlatform(value string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(value)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown platform: %q", value)
	}
	return p, nil
}

// IsValid reports whether p is one of the supported marketplaces
func (p Platform) IsValid() bool {
	switch p {
	case PlatformFacebook, PlatformVinted, PlatformOLX, PlatformEbay:
		return true
	}
	return false
}

// HasAttributeSchema reports whether the backend serves a per-category
// attribute schema for this platform. Other platforms have no dynamic fields.
func (p Platform) HasAttributeSchema() bool {
	return p == PlatformOLX || p == PlatformEbay
}

func (p Platform) String() string {
	return string(p)
}

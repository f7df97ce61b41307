// Package room defines the core types for monitored livestream rooms.
package room

import (
	"fmt"
	"strconv"
)

// Platform identifies the upstream livestream platform a room belongs to.
type Platform string

const (
	// PlatformBilibili is the bilibili live platform
	PlatformBilibili Platform = "bilibili"

	// PlatformDouyu is the douyu live platform
	PlatformDouyu Platform = "douyu"

	// PlatformHuya is the huya live platform
	PlatformHuya Platform = "huya"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformBilibili, PlatformDouyu, PlatformHuya:
		return true
	}
	return false
}

// ReportsViewerCount reports whether the platform's heat signal is a raw
// viewer count rather than an opaque popularity score. Display strings append
// a unit suffix only for raw viewer counts.
func (p Platform) ReportsViewerCount() bool {
	return p == PlatformHuya
}

// Descriptor identifies one monitored room and its priority class. It is
// immutable for the duration of a refresh cycle; the roster that produces
// descriptors is managed outside the refresh engine.
type Descriptor struct {
	Platform Platform `yaml:"platform" json:"platform"`
	ID       string   `yaml:"id" json:"id"`
	Favorite bool     `yaml:"favorite,omitempty" json:"favorite,omitempty"`
}

// Key returns the deterministic cache key for the descriptor.
func (d Descriptor) Key() string {
	return Key(d.Platform, d.ID)
}

// Key builds the composite cache key for a platform and room ID.
func Key(platform Platform, id string) string {
	return fmt.Sprintf("%s-%s", platform, id)
}

// Status is a normalized room status record produced by a platform adapter.
// The refresh engine consumes these fields without interpreting any
// platform-specific raw payload.
type Status struct {
	IsLive   bool
	IsReplay bool
	Title    string
	Owner    string
	Cover    string
	Avatar   string
	Heat     int64
}

// Live reports effective liveness: a replay or loop broadcast is never
// treated as live.
func (s *Status) Live() bool {
	return s.IsLive && !s.IsReplay
}

// FormatHeat renders a heat value compactly for display: values below 1000
// verbatim, thousands as "12.3k", millions as "4.5m".
func FormatHeat(heat int64) string {
	switch {
	case heat < 1000:
		return strconv.FormatInt(heat, 10)
	case heat < 1000000:
		return trimTrailingZero(float64(heat)/1000) + "k"
	default:
		return trimTrailingZero(float64(heat)/1000000) + "m"
	}
}

func trimTrailingZero(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if len(s) > 2 && s[len(s)-2:] == ".0" {
		return s[:len(s)-2]
	}
	return s
}

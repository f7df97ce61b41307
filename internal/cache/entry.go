// Package cache provides the per-room status cache: keyed storage, the
// merge/preservation policy applied to fetch results, and change detection
// between consecutive observations.
package cache

import (
	"time"

	"github.com/roomwatch/roomwatch/internal/room"
)

// Viewer display strings composed by the merge policy.
const (
	// OfflineText is shown for rooms that are not effectively live
	OfflineText = "offline"

	// OnlineText is shown for live rooms with no usable heat signal
	OnlineText = "online"
)

// Entry is the last-known view of one monitored room. Entries are created on
// the first fetch outcome for a key and mutated in place on every subsequent
// outcome; the engine never deletes them.
type Entry struct {
	// Identity
	Platform room.Platform `json:"platform"`
	ID       string        `json:"id"`

	// Presentation
	Title      string `json:"title,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Cover      string `json:"cover,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	IsLive     bool   `json:"isLive"`
	Heat       int64  `json:"heat,omitempty"`
	ViewerText string `json:"viewerText,omitempty"`

	// Bookkeeping
	IsError          bool      `json:"isError,omitempty"`
	Stale            bool      `json:"stale,omitempty"`
	Loading          bool      `json:"loading,omitempty"`
	LastAvatarUpdate time.Time `json:"lastAvatarUpdate,omitempty"`
	HasChanges       bool      `json:"-"`
	Changes          []string  `json:"-"`
}

// Key returns the entry's cache key.
func (e *Entry) Key() string {
	return room.Key(e.Platform, e.ID)
}

// viewerText composes the human display string for a room's viewer state.
func viewerText(platform room.Platform, live bool, heat int64) string {
	if !live {
		return OfflineText
	}
	if heat <= 0 {
		return OnlineText
	}
	text := OnlineText + " · " + room.FormatHeat(heat)
	if platform.ReportsViewerCount() {
		text += " viewers"
	}
	return text
}

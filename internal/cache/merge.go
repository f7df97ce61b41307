package cache

import (
	"time"

	"github.com/roomwatch/roomwatch/internal/room"
)

// mergeStatus builds the next entry for a room from its previous entry and a
// freshly fetched status, applying the preservation rules:
//
//   - heat is sticky downward: a raw value of 0 never overwrites a
//     previously observed positive value
//   - title/owner/cover/avatar are sticky: an offline, non-replay fetch may
//     not blank them out; a live room's title and owner are always refreshed
//   - the avatar is accepted only when non-empty and different from the
//     previous one, and only then is its freshness timestamp advanced
//
// prev may be nil (first observation). The returned entry is freshly
// allocated; neither input is mutated.
func mergeStatus(d room.Descriptor, prev *Entry, st *room.Status, now time.Time) *Entry {
	live := st.Live()

	heat := st.Heat
	if heat == 0 && prev != nil && prev.Heat > 0 {
		// Transient reporting gap, not a real drop.
		heat = prev.Heat
	}

	next := &Entry{
		Platform:   d.Platform,
		ID:         d.ID,
		Title:      st.Title,
		Owner:      st.Owner,
		Cover:      st.Cover,
		IsLive:     live,
		Heat:       heat,
		ViewerText: viewerText(d.Platform, live, heat),
	}

	if prev != nil {
		if !live && !st.IsReplay {
			// Offline rooms keep showing their last known metadata
			// rather than going blank.
			if next.Title == "" {
				next.Title = prev.Title
			}
			if next.Owner == "" {
				next.Owner = prev.Owner
			}
			if next.Cover == "" {
				next.Cover = prev.Cover
			}
		}

		next.Avatar = prev.Avatar
		next.LastAvatarUpdate = prev.LastAvatarUpdate
	}

	if st.Avatar != "" && st.Avatar != next.Avatar {
		next.Avatar = st.Avatar
		next.LastAvatarUpdate = now
	}

	return next
}

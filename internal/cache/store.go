package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/roomwatch/roomwatch/internal/room"
)

// CommitFunc is invoked with a copy of an entry after every committed cache
// mutation. It is the persistence hook: implementations may buffer or
// debounce writes but must guarantee eventual durability.
type CommitFunc func(key string, entry Entry)

// Option is a function that configures the store
type Option func(*Store)

// WithCommitHook sets the function notified on every committed mutation.
func WithCommitHook(fn CommitFunc) Option {
	return func(s *Store) {
		s.onCommit = fn
	}
}

// Store is the keyed mapping from room key to its current cache entry. It
// owns the merge/preservation policy: sticky presentation fields, the
// sticky-downward heat rule, and avatar freshness tracking.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	onCommit CommitFunc
}

// NewStore creates an empty cache store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the entry for key, if present.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns copies of all entries, ordered by key.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.entries[k])
	}
	return out
}

// SnapshotKeys returns copies of the entries that exist among the given
// keys, in the order given. Missing keys are skipped.
func (s *Store) SnapshotKeys(keys []string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Seed loads previously persisted entries into the store. Seeded entries are
// marked stale until their first fetch this run and do not trigger the
// commit hook. Existing entries are not overwritten.
func (s *Store) Seed(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		key := e.Key()
		if _, ok := s.entries[key]; ok {
			continue
		}
		e.Stale = true
		e.Loading = false
		e.HasChanges = false
		e.Changes = nil
		seeded := e
		s.entries[key] = &seeded
	}
}

// MarkLoading flags existing entries for the given keys as loading. Entries
// not yet in the cache are left alone; their first fetch creates them. The
// loading flag is transient and does not trigger the commit hook.
func (s *Store) MarkLoading(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			e.Loading = true
		}
	}
}

// ApplyFailure records a failed fetch for the room. If a previous entry
// exists it is kept verbatim and marked stale; otherwise a minimal error
// entry is stored. Returns a copy of the committed entry.
func (s *Store) ApplyFailure(d room.Descriptor) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.Key()
	if prev, ok := s.entries[key]; ok {
		// Previous data is still shown, just possibly outdated.
		prev.Stale = true
		prev.IsError = false
		prev.Loading = false
		prev.HasChanges = false
		prev.Changes = nil
		s.commitLocked(key, prev)
		return *prev
	}

	e := &Entry{
		Platform: d.Platform,
		ID:       d.ID,
		IsError:  true,
		Loading:  false,
	}
	s.entries[key] = e
	s.commitLocked(key, e)
	return *e
}

// ApplyStatus merges a fetched status into the cache for the room, applying
// the preservation rules, runs change detection against the previous entry,
// and commits the result. Returns a copy of the committed entry.
func (s *Store) ApplyStatus(d room.Descriptor, st *room.Status, now time.Time) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.Key()
	prev := s.entries[key]
	next := mergeStatus(d, prev, st, now)

	diff := Compare(prev, next)
	next.HasChanges = diff.Changed
	next.Changes = diff.Fields

	s.entries[key] = next
	s.commitLocked(key, next)
	return *next
}

// UpdateAvatar applies an independently fetched avatar to the entry's avatar
// sub-field only, last-write-wins. It is used by the detached fallback
// enrichment and tolerates the entry having been superseded meanwhile.
func (s *Store) UpdateAvatar(key, avatar string, now time.Time) {
	if avatar == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.Avatar == avatar {
		return
	}
	e.Avatar = avatar
	e.LastAvatarUpdate = now
	s.commitLocked(key, e)
}

func (s *Store) commitLocked(key string, e *Entry) {
	if s.onCommit != nil {
		s.onCommit(key, *e)
	}
}

// Package store persists committed cache entries so last-known room state
// survives restarts. Writes are buffered and flushed on an interval; Flush
// provides the synchronous drain used on application teardown.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/roomwatch/roomwatch/internal/cache"
)

// DefaultFlushInterval is the default debounce interval for buffered writes.
const DefaultFlushInterval = 5 * time.Second

// RoomStore is the persistence contract consumed by the cache commit hook.
type RoomStore interface {
	// Save buffers one committed entry for eventual durability.
	Save(key string, entry cache.Entry)

	// Load returns all persisted entries.
	Load() ([]cache.Entry, error)

	// Flush synchronously writes all buffered entries.
	Flush() error

	// Close flushes and releases the underlying database.
	Close() error
}

// LevelDBStore is a RoomStore backed by a local LevelDB database.
type LevelDBStore struct {
	db *leveldb.DB

	mu      sync.Mutex
	pending map[string]cache.Entry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Open opens (or creates) the LevelDB database at path and starts the
// background flusher. A flushInterval of 0 uses DefaultFlushInterval.
func Open(path string, flushInterval time.Duration) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open room store at %s: %w", path, err)
	}
	if flushInterval == 0 {
		flushInterval = DefaultFlushInterval
	}

	s := &LevelDBStore{
		db:      db,
		pending: make(map[string]cache.Entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.flushLoop(flushInterval)
	return s, nil
}

// Save buffers the entry; durability follows on the next flush.
func (s *LevelDBStore) Save(key string, entry cache.Entry) {
	s.mu.Lock()
	s.pending[key] = entry
	s.mu.Unlock()
}

// Load returns all persisted entries. Corrupt records are skipped with a log
// line rather than failing the whole load.
func (s *LevelDBStore) Load() ([]cache.Entry, error) {
	var entries []cache.Entry

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		var e cache.Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			slog.Warn("Skipping corrupt room store record",
				"key", string(iter.Key()),
				"error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate room store: %w", err)
	}
	return entries, nil
}

// Flush writes all buffered entries in one batch.
func (s *LevelDBStore) Flush() error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	pending := s.pending
	s.pending = make(map[string]cache.Entry)
	s.mu.Unlock()

	batch := new(leveldb.Batch)
	for key, entry := range pending {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry %s: %w", key, err)
		}
		batch.Put([]byte(key), data)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write room store batch: %w", err)
	}
	return nil
}

// Close stops the flusher, drains buffered writes, and closes the database.
func (s *LevelDBStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh

	flushErr := s.Flush()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close room store: %w", err)
	}
	return flushErr
}

func (s *LevelDBStore) flushLoop(interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				slog.Error("Room store flush failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Noop is a RoomStore that discards everything. Used when persistence is
// disabled.
type Noop struct{}

// Save discards the entry.
func (Noop) Save(string, cache.Entry) {}

// Load returns no entries.
func (Noop) Load() ([]cache.Entry, error) { return nil, nil }

// Flush does nothing.
func (Noop) Flush() error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }

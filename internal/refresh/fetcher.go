package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/roomwatch/roomwatch/internal/cache"
	"github.com/roomwatch/roomwatch/internal/platforms"
	"github.com/roomwatch/roomwatch/internal/room"
	"github.com/roomwatch/roomwatch/internal/telemetry"
)

// avatarFallbackTimeout bounds the detached avatar enrichment fetch, which
// outlives its cycle.
const avatarFallbackTimeout = 15 * time.Second

// Fetcher performs the per-room fetch-and-merge operation.
type Fetcher struct {
	adapters  platforms.Registry
	cache     *cache.Store
	avatarTTL time.Duration
	metrics   *telemetry.RefreshMetrics
}

// NewFetcher creates a fetcher. metrics may be nil.
func NewFetcher(adapters platforms.Registry, store *cache.Store, avatarTTL time.Duration, metrics *telemetry.RefreshMetrics) *Fetcher {
	return &Fetcher{
		adapters:  adapters,
		cache:     store,
		avatarTTL: avatarTTL,
		metrics:   metrics,
	}
}

// FetchRoom waits the given jitter delay, fetches the room's status, merges
// the outcome into the cache, and reports whether the committed entry
// changed. Fetch failures are absorbed here: previous data is kept and
// flagged stale, and the next cycle is the retry mechanism.
func (f *Fetcher) FetchRoom(ctx context.Context, d room.Descriptor, delay time.Duration) bool {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			f.cache.ApplyFailure(d)
			return false
		}
	}

	key := d.Key()
	prev, hasPrev := f.cache.Get(key)
	needsAvatar := !hasPrev || prev.Avatar == "" ||
		time.Since(prev.LastAvatarUpdate) >= f.avatarTTL

	adapter, ok := f.adapters.For(d.Platform)
	if !ok {
		slog.Warn("No adapter for platform", "platform", d.Platform, "room", key)
		f.cache.ApplyFailure(d)
		return false
	}

	st, err := adapter.Fetch(ctx, d.ID, needsAvatar)
	if err != nil {
		slog.Warn("Room fetch failed",
			"room", key,
			"error", err)
		f.metrics.RecordFetchFailure(ctx, string(d.Platform))
		f.cache.ApplyFailure(d)
		return false
	}

	entry := f.cache.ApplyStatus(d, st, time.Now())

	if entry.Avatar == "" {
		if src, ok := adapter.(platforms.AvatarSource); ok {
			// Detached enrichment: does not block this item's completion
			// and tolerates the entry being superseded before it lands.
			go f.backfillAvatar(src, d)
		}
	}

	return entry.HasChanges
}

func (f *Fetcher) backfillAvatar(src platforms.AvatarSource, d room.Descriptor) {
	ctx, cancel := context.WithTimeout(context.Background(), avatarFallbackTimeout)
	defer cancel()

	avatar, err := src.FetchAvatar(ctx, d.ID)
	if err != nil {
		slog.Debug("Avatar fallback fetch failed",
			"room", d.Key(),
			"error", err)
		return
	}
	f.cache.UpdateAvatar(d.Key(), avatar, time.Now())
}

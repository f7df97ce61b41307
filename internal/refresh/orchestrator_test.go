package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomwatch/roomwatch/internal/cache"
	"github.com/roomwatch/roomwatch/internal/notify"
	"github.com/roomwatch/roomwatch/internal/platforms"
	"github.com/roomwatch/roomwatch/internal/room"
)

// fakeAdapter delegates fetches to a function, recording call order.
type fakeAdapter struct {
	platform room.Platform
	fetch    func(ctx context.Context, id string, withAvatar bool) (*room.Status, error)

	mu    sync.Mutex
	calls []string
}

func (a *fakeAdapter) Platform() room.Platform { return a.platform }

func (a *fakeAdapter) Fetch(ctx context.Context, id string, withAvatar bool) (*room.Status, error) {
	a.mu.Lock()
	a.calls = append(a.calls, id)
	a.mu.Unlock()
	if a.fetch == nil {
		return &room.Status{}, nil
	}
	return a.fetch(ctx, id, withAvatar)
}

func (a *fakeAdapter) callOrder() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

func testConfig() Config {
	return Config{
		Cooldown:  10 * time.Second,
		AvatarTTL: 6 * time.Hour,
		Sizing:    DefaultSizing(),
	}
}

func newTestOrchestrator(t *testing.T, roster []room.Descriptor, adapter *fakeAdapter, cfg Config, opts ...Option) (*Orchestrator, *cache.Store) {
	t.Helper()
	store := cache.NewStore()
	registry := platforms.Registry{adapter.platform: adapter}
	fetcher := NewFetcher(registry, store, cfg.AvatarTTL, nil)
	o := New(func() []room.Descriptor { return roster }, fetcher, store, cfg, opts...)
	return o, store
}

func TestRefreshAll_EndToEnd(t *testing.T) {
	t.Parallel()

	// 3 favorites + 2 non-favorites, ceiling 2, batch 1: admission order is
	// the favorites first, and every completion produces a notification.
	roster := []room.Descriptor{
		{Platform: room.PlatformBilibili, ID: "n1"},
		{Platform: room.PlatformBilibili, ID: "f1", Favorite: true},
		{Platform: room.PlatformBilibili, ID: "n2"},
		{Platform: room.PlatformBilibili, ID: "f2", Favorite: true},
		{Platform: room.PlatformBilibili, ID: "f3", Favorite: true},
	}
	adapter := &fakeAdapter{platform: room.PlatformBilibili}

	cfg := testConfig()
	// Ceiling of 1 keeps admission order observable through call order.
	cfg.Sizing = Sizing{
		SmallRoster: 100, SmallCeiling: 1,
		MediumRoster: 200, MediumCeiling: 1, LargeCeiling: 1,
		BatchThreshold: 100, SmallBatch: 1, LargeBatch: 1,
	}

	var mu sync.Mutex
	var renders []int
	o, store := newTestOrchestrator(t, roster, adapter, cfg,
		WithRenderHook(func(completed, total int) {
			assert.Equal(t, 5, total)
			mu.Lock()
			renders = append(renders, completed)
			mu.Unlock()
		}))

	require.NoError(t, o.RefreshAll(context.Background(), Options{}))

	assert.Equal(t, []string{"f1", "f2", "f3", "n1", "n2"}, adapter.callOrder())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, renders)
	assert.Equal(t, 5, store.Len())
	assert.False(t, o.Running())
}

func TestRefreshAll_RejectsWhileRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	adapter := &fakeAdapter{
		platform: room.PlatformBilibili,
		fetch: func(context.Context, string, bool) (*room.Status, error) {
			once.Do(func() { close(started) })
			<-release
			return &room.Status{}, nil
		},
	}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	o, _ := newTestOrchestrator(t, roster, adapter, testConfig())

	done := make(chan error, 1)
	go func() {
		done <- o.RefreshAll(context.Background(), Options{Silent: true})
	}()
	<-started

	err := o.RefreshAll(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrAlreadyRefreshing)

	// Overlapping auto trigger drops quietly.
	assert.NoError(t, o.RefreshAll(context.Background(), Options{Auto: true}))

	close(release)
	require.NoError(t, <-done)
}

func TestRefreshAll_Cooldown(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{platform: room.PlatformBilibili}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	o, _ := newTestOrchestrator(t, roster, adapter, testConfig())

	require.NoError(t, o.RefreshAll(context.Background(), Options{}))

	err := o.RefreshAll(context.Background(), Options{})
	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Positive(t, cooldown.RemainingSeconds())

	// Exactly one admitted cycle: one fetch happened.
	assert.Len(t, adapter.callOrder(), 1)
}

func TestRefreshAll_CooldownSkippedForAutoAndSilent(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{platform: room.PlatformBilibili}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	o, _ := newTestOrchestrator(t, roster, adapter, testConfig())

	require.NoError(t, o.RefreshAll(context.Background(), Options{}))
	require.NoError(t, o.RefreshAll(context.Background(), Options{Auto: true}))
	require.NoError(t, o.RefreshAll(context.Background(), Options{Silent: true}))

	assert.Len(t, adapter.callOrder(), 3)
}

func TestRefreshAll_ManualResetsAutoTimer(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{platform: room.PlatformBilibili}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	cfg := testConfig()
	cfg.Cooldown = 0
	o, _ := newTestOrchestrator(t, roster, adapter, cfg)

	resets := 0
	o.SetTimerResetHook(func() { resets++ })

	require.NoError(t, o.RefreshAll(context.Background(), Options{Auto: true}))
	assert.Zero(t, resets, "auto trigger must not reset its own timer")

	require.NoError(t, o.RefreshAll(context.Background(), Options{}))
	assert.Equal(t, 1, resets)
}

func TestAdmit_JitterOnlyOnInitialLoad(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{platform: room.PlatformBilibili}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	cfg := testConfig()
	cfg.Cooldown = 0

	endCycle := func(o *Orchestrator) {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}

	t.Run("manual_first_cycle_carries_no_jitter", func(t *testing.T) {
		t.Parallel()
		o, _ := newTestOrchestrator(t, roster, adapter, cfg)

		admitted, jitter, err := o.admit(Options{}, time.Now())
		require.NoError(t, err)
		require.True(t, admitted)
		assert.False(t, jitter, "manual refresh must never receive cold-start jitter")
		endCycle(o)

		// The initial load still gets its jitter even after a manual
		// refresh raced it.
		admitted, jitter, err = o.admit(Options{Silent: true}, time.Now())
		require.NoError(t, err)
		require.True(t, admitted)
		assert.True(t, jitter, "the silent initial load carries the jitter")
	})

	t.Run("initial_load_consumes_jitter_once", func(t *testing.T) {
		t.Parallel()
		o, _ := newTestOrchestrator(t, roster, adapter, cfg)

		_, jitter, err := o.admit(Options{Silent: true}, time.Now())
		require.NoError(t, err)
		assert.True(t, jitter)
		endCycle(o)

		for _, opts := range []Options{{Silent: true}, {Auto: true}, {}} {
			_, jitter, err := o.admit(opts, time.Now())
			require.NoError(t, err)
			assert.False(t, jitter, "only the first silent cycle is jittered")
			endCycle(o)
		}
	})
}

func TestTaskDelays(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{platform: room.PlatformBilibili}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	cfg := testConfig()
	cfg.JitterMax = 3 * time.Second
	o, _ := newTestOrchestrator(t, roster, adapter, cfg)

	for _, d := range o.taskDelays(50, false) {
		assert.Zero(t, d, "ordinary cycles run without per-task delay")
	}

	var positive int
	for _, d := range o.taskDelays(50, true) {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, cfg.JitterMax)
		if d > 0 {
			positive++
		}
	}
	assert.Positive(t, positive, "cold-start delays should spread the fetches")
}

func TestRefreshAll_FailureKeepsPreviousEntry(t *testing.T) {
	t.Parallel()

	var failing bool
	adapter := &fakeAdapter{
		platform: room.PlatformBilibili,
		fetch: func(context.Context, string, bool) (*room.Status, error) {
			if failing {
				return nil, errors.New("upstream exploded")
			}
			return &room.Status{IsLive: true, Title: "Foo"}, nil
		},
	}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	o, store := newTestOrchestrator(t, roster, adapter, testConfig())

	require.NoError(t, o.RefreshAll(context.Background(), Options{Silent: true}))
	failing = true
	require.NoError(t, o.RefreshAll(context.Background(), Options{Auto: true}))

	e, ok := store.Get("bilibili-1")
	require.True(t, ok)
	assert.Equal(t, "Foo", e.Title)
	assert.True(t, e.Stale)
	assert.False(t, e.IsError)
}

func TestRefreshAll_FailureWithoutPreviousEntry(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		platform: room.PlatformBilibili,
		fetch: func(context.Context, string, bool) (*room.Status, error) {
			return nil, errors.New("upstream exploded")
		},
	}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	o, store := newTestOrchestrator(t, roster, adapter, testConfig())

	require.NoError(t, o.RefreshAll(context.Background(), Options{Silent: true}))

	e, ok := store.Get("bilibili-1")
	require.True(t, ok)
	assert.True(t, e.IsError)
	assert.False(t, e.Loading)
	assert.Empty(t, e.Title)
}

func TestRefreshAll_HeatStickyAcrossCycles(t *testing.T) {
	t.Parallel()

	heat := int64(500)
	adapter := &fakeAdapter{
		platform: room.PlatformBilibili,
		fetch: func(context.Context, string, bool) (*room.Status, error) {
			return &room.Status{IsLive: true, Heat: heat}, nil
		},
	}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}
	o, store := newTestOrchestrator(t, roster, adapter, testConfig())

	require.NoError(t, o.RefreshAll(context.Background(), Options{Silent: true}))
	heat = 0
	require.NoError(t, o.RefreshAll(context.Background(), Options{Auto: true}))

	e, _ := store.Get("bilibili-1")
	assert.Equal(t, int64(500), e.Heat)
	assert.Equal(t, "online · 500", e.ViewerText)
}

func TestRefreshAll_NotifierReceivesBeforeAfter(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		platform: room.PlatformBilibili,
		fetch: func(context.Context, string, bool) (*room.Status, error) {
			return &room.Status{IsLive: true, Title: "Live now"}, nil
		},
	}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}

	var summaries []notify.CycleSummary
	n := notifierFunc(func(_ context.Context, s notify.CycleSummary) {
		summaries = append(summaries, s)
	})
	o, _ := newTestOrchestrator(t, roster, adapter, testConfig(), WithNotifier(n))

	require.NoError(t, o.RefreshAll(context.Background(), Options{Silent: true}))

	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.NotEmpty(t, s.CycleID)
	assert.Empty(t, s.Before, "no cache entries before the first cycle")
	require.Len(t, s.After, 1)
	assert.True(t, s.After[0].IsLive)
	assert.Equal(t, 1, s.Changed)
	assert.Zero(t, s.Unchanged)
}

func TestRefreshAll_CycleLevelFailureStillCleansUp(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{platform: room.PlatformBilibili}
	roster := []room.Descriptor{{Platform: room.PlatformBilibili, ID: "1"}}

	n := notifierFunc(func(context.Context, notify.CycleSummary) {
		panic("notifier blew up")
	})
	o, _ := newTestOrchestrator(t, roster, adapter, testConfig(), WithNotifier(n))

	err := o.RefreshAll(context.Background(), Options{Silent: true})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifier blew up")
	assert.False(t, o.Running(), "running flag must reset on cycle failure")
	assert.False(t, o.Progress().Running)
}

func TestRefreshAll_ProgressTracksCompletions(t *testing.T) {
	t.Parallel()

	roster := make([]room.Descriptor, 4)
	for i := range roster {
		roster[i] = room.Descriptor{Platform: room.PlatformBilibili, ID: fmt.Sprintf("%d", i)}
	}
	adapter := &fakeAdapter{platform: room.PlatformBilibili}
	o, _ := newTestOrchestrator(t, roster, adapter, testConfig())

	require.NoError(t, o.RefreshAll(context.Background(), Options{Silent: true}))

	p := o.Progress()
	assert.Equal(t, 4, p.Completed)
	assert.Equal(t, 4, p.Total)
	assert.False(t, p.Running)
}

func TestOrderRoster(t *testing.T) {
	t.Parallel()

	roster := []room.Descriptor{
		{ID: "a"},
		{ID: "b", Favorite: true},
		{ID: "c"},
		{ID: "d", Favorite: true},
	}

	ordered := orderRoster(roster)

	ids := make([]string, len(ordered))
	for i, d := range ordered {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	// Input untouched.
	assert.Equal(t, "a", roster[0].ID)
}

type notifierFunc func(context.Context, notify.CycleSummary)

func (f notifierFunc) CycleCompleted(ctx context.Context, s notify.CycleSummary) { f(ctx, s) }

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomwatch/roomwatch/internal/cache"
	"github.com/roomwatch/roomwatch/internal/room"
)

func entry(platform room.Platform, id string, live bool) cache.Entry {
	return cache.Entry{Platform: platform, ID: id, IsLive: live, Owner: "owner-" + id}
}

func TestTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		before   []cache.Entry
		after    []cache.Entry
		expected []Transition
	}{
		{
			name:   "went live",
			before: []cache.Entry{entry(room.PlatformBilibili, "1", false)},
			after:  []cache.Entry{entry(room.PlatformBilibili, "1", true)},
			expected: []Transition{
				{Key: "bilibili-1", Owner: "owner-1", WentLive: true},
			},
		},
		{
			name:   "went offline",
			before: []cache.Entry{entry(room.PlatformDouyu, "2", true)},
			after:  []cache.Entry{entry(room.PlatformDouyu, "2", false)},
			expected: []Transition{
				{Key: "douyu-2", Owner: "owner-2", WentLive: false},
			},
		},
		{
			name:     "no change",
			before:   []cache.Entry{entry(room.PlatformHuya, "3", true)},
			after:    []cache.Entry{entry(room.PlatformHuya, "3", true)},
			expected: nil,
		},
		{
			name:   "first observation live counts",
			before: nil,
			after:  []cache.Entry{entry(room.PlatformHuya, "4", true)},
			expected: []Transition{
				{Key: "huya-4", Owner: "owner-4", WentLive: true},
			},
		},
		{
			name:     "first observation offline does not",
			before:   nil,
			after:    []cache.Entry{entry(room.PlatformHuya, "5", false)},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := CycleSummary{Before: tt.before, After: tt.after}
			assert.Equal(t, tt.expected, s.Transitions())
		})
	}
}

func TestCycleSummaryJSON_ElapsedInMilliseconds(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(CycleSummary{
		CycleID: "cycle-9",
		Elapsed: 1500 * time.Millisecond,
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, float64(1500), payload["elapsedMs"])
}

func TestWebhookNotifier_Delivers(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	n.CycleCompleted(context.Background(), CycleSummary{
		CycleID: "cycle-1",
		Before:  []cache.Entry{entry(room.PlatformBilibili, "1", false)},
		After:   []cache.Entry{entry(room.PlatformBilibili, "1", true)},
		Changed: 1,
	})

	require.Equal(t, int64(1), received.Load())

	var payload struct {
		CycleID     string       `json:"cycleId"`
		Transitions []Transition `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "cycle-1", payload.CycleID)
	require.Len(t, payload.Transitions, 1)
	assert.True(t, payload.Transitions[0].WentLive)
}

func TestWebhookNotifier_SkipsQuietCycles(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	n.CycleCompleted(context.Background(), CycleSummary{CycleID: "cycle-2"})

	assert.Zero(t, received.Load())
}

func TestWebhookNotifier_RetriesOnFailure(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	n.CycleCompleted(context.Background(), CycleSummary{
		After: []cache.Entry{entry(room.PlatformDouyu, "9", true)},
	})

	assert.Equal(t, int64(2), attempts.Load())
}

func TestMulti(t *testing.T) {
	t.Parallel()

	var calls int
	fn := notifierFunc(func(context.Context, CycleSummary) { calls++ })

	Multi{fn, fn, fn}.CycleCompleted(context.Background(), CycleSummary{})

	assert.Equal(t, 3, calls)
}

type notifierFunc func(context.Context, CycleSummary)

func (f notifierFunc) CycleCompleted(ctx context.Context, s CycleSummary) { f(ctx, s) }

// Package stats tracks per-cycle refresh progress for observers.
package stats

import (
	"encoding/json"
	"sync"
	"time"
)

// Progress is a point-in-time view of a refresh cycle.
type Progress struct {
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"-"`
	Running   bool          `json:"running"`
}

// MarshalJSON emits the elapsed time in whole milliseconds.
func (p Progress) MarshalJSON() ([]byte, error) {
	type alias Progress
	return json.Marshal(struct {
		alias
		ElapsedMS int64 `json:"elapsedMs"`
	}{alias(p), p.Elapsed.Milliseconds()})
}

// Observer receives progress updates on every task completion and at cycle
// start and end. It is purely advisory.
type Observer func(Progress)

// Tracker accumulates completed/total/elapsed counters for one cycle at a
// time. All methods are safe for concurrent use. The observer is optional;
// a Tracker with no observer still serves Current for polling consumers.
type Tracker struct {
	mu        sync.Mutex
	startedAt time.Time
	completed int
	total     int
	running   bool
	observer  Observer
}

// NewTracker creates a tracker with an optional observer (may be nil).
func NewTracker(observer Observer) *Tracker {
	return &Tracker{observer: observer}
}

// Begin resets the counters for a new cycle of the given size.
func (t *Tracker) Begin(total int, startedAt time.Time) {
	t.mu.Lock()
	t.startedAt = startedAt
	t.completed = 0
	t.total = total
	t.running = true
	p := t.progressLocked(startedAt)
	obs := t.observer
	t.mu.Unlock()

	if obs != nil {
		obs(p)
	}
}

// Record notes one task completion.
func (t *Tracker) Record(completed int) {
	t.mu.Lock()
	t.completed = completed
	p := t.progressLocked(time.Now())
	obs := t.observer
	t.mu.Unlock()

	if obs != nil {
		obs(p)
	}
}

// End marks the cycle finished and clears the progress display.
func (t *Tracker) End() {
	t.mu.Lock()
	t.running = false
	p := t.progressLocked(time.Now())
	obs := t.observer
	t.mu.Unlock()

	if obs != nil {
		obs(p)
	}
}

// Current returns the latest progress snapshot.
func (t *Tracker) Current() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked(time.Now())
}

func (t *Tracker) progressLocked(now time.Time) Progress {
	var elapsed time.Duration
	if !t.startedAt.IsZero() {
		elapsed = now.Sub(t.startedAt)
	}
	return Progress{
		Completed: t.completed,
		Total:     t.total,
		Elapsed:   elapsed,
		Running:   t.running,
	}
}

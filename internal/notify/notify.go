// Package notify delivers cycle-completion notifications. The refresh engine
// only reports that a cycle completed and what it observed; deciding what to
// tell a user is the receiver's concern.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/roomwatch/roomwatch/internal/cache"
)

// CycleSummary carries the full before/after roster state of one refresh
// cycle so receivers can diff live/offline transitions.
type CycleSummary struct {
	CycleID   string        `json:"cycleId"`
	Before    []cache.Entry `json:"before"`
	After     []cache.Entry `json:"after"`
	Changed   int           `json:"changed"`
	Unchanged int           `json:"unchanged"`
	Elapsed   time.Duration `json:"-"`
}

// MarshalJSON emits the elapsed time in whole milliseconds, the unit
// webhook receivers expect.
func (s CycleSummary) MarshalJSON() ([]byte, error) {
	type alias CycleSummary
	return json.Marshal(struct {
		alias
		ElapsedMS int64 `json:"elapsedMs"`
	}{alias(s), s.Elapsed.Milliseconds()})
}

// Notifier receives one notification per completed refresh cycle.
type Notifier interface {
	CycleCompleted(ctx context.Context, summary CycleSummary)
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// CycleCompleted notifies every member.
func (m Multi) CycleCompleted(ctx context.Context, summary CycleSummary) {
	for _, n := range m {
		n.CycleCompleted(ctx, summary)
	}
}

// Transition describes one room's liveness change across a cycle.
type Transition struct {
	Key      string `json:"key"`
	Title    string `json:"title,omitempty"`
	Owner    string `json:"owner,omitempty"`
	WentLive bool   `json:"wentLive"`
}

// Transitions computes the live/offline transitions between the summary's
// before and after states. Rooms first observed this cycle count as a
// transition only when they arrived live.
func (s CycleSummary) Transitions() []Transition {
	before := make(map[string]cache.Entry, len(s.Before))
	for _, e := range s.Before {
		before[e.Key()] = e
	}

	var out []Transition
	for _, after := range s.After {
		key := after.Key()
		prev, seen := before[key]
		switch {
		case after.IsLive && (!seen || !prev.IsLive):
			out = append(out, Transition{Key: key, Title: after.Title, Owner: after.Owner, WentLive: true})
		case !after.IsLive && seen && prev.IsLive:
			out = append(out, Transition{Key: key, Title: after.Title, Owner: after.Owner, WentLive: false})
		}
	}
	return out
}

package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes live/offline transitions to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a notifier that logs transitions.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// CycleCompleted logs every liveness transition observed by the cycle.
func (*LogNotifier) CycleCompleted(_ context.Context, summary CycleSummary) {
	for _, tr := range summary.Transitions() {
		if tr.WentLive {
			slog.Info("Room went live",
				"cycle_id", summary.CycleID,
				"room", tr.Key,
				"owner", tr.Owner,
				"title", tr.Title)
		} else {
			slog.Info("Room went offline",
				"cycle_id", summary.CycleID,
				"room", tr.Key,
				"owner", tr.Owner)
		}
	}
}

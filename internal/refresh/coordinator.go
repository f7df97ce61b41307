package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roomwatch/roomwatch/internal/stats"
)

// Coordinator drives the periodic auto-refresh schedule. It performs the
// silent initial load at startup, triggers an auto cycle every interval, and
// restarts its countdown when a manual refresh is admitted.
type Coordinator struct {
	orchestrator *Orchestrator
	interval     time.Duration

	resetCh    chan struct{}
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// NewCoordinator creates a coordinator and registers itself as the
// orchestrator's timer owner.
func NewCoordinator(o *Orchestrator, interval time.Duration) *Coordinator {
	c := &Coordinator{
		orchestrator: o,
		interval:     interval,
		resetCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	o.SetTimerResetHook(c.ResetTimer)
	return c
}

// Start performs the initial silent load and then runs the auto-refresh
// loop. Blocks until the context is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	slog.Info("Starting refresh coordinator", "interval", c.interval)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.Info("Refresh coordinator shutting down")
	}()

	// Initial load: silent, with cold-start jitter spreading the fetches.
	if err := c.orchestrator.RefreshAll(loopCtx, Options{Silent: true}); err != nil {
		slog.Error("Initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.orchestrator.RefreshAll(loopCtx, Options{Auto: true}); err != nil {
				slog.Error("Auto refresh failed", "error", err)
			}
		case <-c.resetCh:
			// Manual refresh admitted: restart the countdown in full.
			ticker.Reset(c.interval)
		case <-loopCtx.Done():
			slog.Info("Refresh coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator.
func (c *Coordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping refresh coordinator")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// ResetTimer requests that the auto-refresh countdown restart at its full
// interval. Never blocks; a pending reset coalesces with new ones.
func (c *Coordinator) ResetTimer() {
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

// Progress reports the state of the most recent cycle.
func (c *Coordinator) Progress() stats.Progress {
	return c.orchestrator.Progress()
}

// RefreshNow triggers a manual refresh cycle, subject to admission control.
func (c *Coordinator) RefreshNow(ctx context.Context) error {
	err := c.orchestrator.RefreshAll(ctx, Options{})
	var cooldown *CooldownError
	switch {
	case errors.Is(err, ErrAlreadyRefreshing):
		slog.Info("Manual refresh rejected: already refreshing")
	case errors.As(err, &cooldown):
		slog.Info("Manual refresh rejected: cooling down",
			"retry_after_seconds", cooldown.RemainingSeconds())
	}
	return err
}

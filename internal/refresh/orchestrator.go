package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roomwatch/roomwatch/internal/cache"
	"github.com/roomwatch/roomwatch/internal/notify"
	"github.com/roomwatch/roomwatch/internal/pool"
	"github.com/roomwatch/roomwatch/internal/room"
	"github.com/roomwatch/roomwatch/internal/stats"
	"github.com/roomwatch/roomwatch/internal/telemetry"
)

// RosterFunc returns a consistent snapshot of the monitored rooms. It is
// read exactly once at the start of each cycle.
type RosterFunc func() []room.Descriptor

// Options classifies a refresh trigger.
type Options struct {
	// Silent marks the initial application load. Admission control is
	// skipped and cold-start jitter applies.
	Silent bool

	// Auto marks a cycle triggered by the periodic timer. Admission
	// control is skipped; an overlapping auto cycle is dropped quietly.
	Auto bool
}

// Config holds the orchestrator's timing policy.
type Config struct {
	// Cooldown is the minimum interval between manually admitted cycles.
	Cooldown time.Duration

	// JitterMax is the upper bound of the random per-task delay applied on
	// the cold-start cycle.
	JitterMax time.Duration

	// AvatarTTL is the staleness interval after which an avatar refresh is
	// requested from the adapter.
	AvatarTTL time.Duration

	// Sizing selects concurrency ceiling and batch size per roster size.
	Sizing Sizing
}

// Option is a function that configures the orchestrator
type Option func(*Orchestrator)

// WithNotifier sets the cycle-completion notification hook.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithMetrics sets the refresh metrics instruments.
func WithMetrics(m *telemetry.RefreshMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithStatsObserver sets the progress observer.
func WithStatsObserver(obs stats.Observer) Option {
	return func(o *Orchestrator) {
		o.tracker = stats.NewTracker(obs)
	}
}

// WithRenderHook sets the batch-render callback invoked every batch-size
// completions and on the final completion of each cycle.
func WithRenderHook(fn func(completed, total int)) Option {
	return func(o *Orchestrator) {
		o.renderHook = fn
	}
}

// Orchestrator owns the lifecycle of refresh cycles: admission control,
// priority ordering, dynamic sizing, and guaranteed cleanup.
type Orchestrator struct {
	roster     RosterFunc
	fetcher    *Fetcher
	cache      *cache.Store
	cfg        Config
	tracker    *stats.Tracker
	notifier   notify.Notifier
	metrics    *telemetry.RefreshMetrics
	renderHook func(completed, total int)
	timerReset func()

	mu        sync.Mutex
	running   bool
	lastStart time.Time
	coldStart bool
}

// New creates an orchestrator over the given roster, fetcher and cache.
func New(roster RosterFunc, fetcher *Fetcher, store *cache.Store, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		roster:    roster,
		fetcher:   fetcher,
		cache:     store,
		cfg:       cfg,
		coldStart: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracker == nil {
		o.tracker = stats.NewTracker(nil)
	}
	return o
}

// SetTimerResetHook registers the function invoked when a manual refresh is
// admitted, so the periodic auto-refresh timer restarts its countdown.
// Called once during wiring, before any cycle runs.
func (o *Orchestrator) SetTimerResetHook(fn func()) {
	o.timerReset = fn
}

// Progress returns the current cycle progress.
func (o *Orchestrator) Progress() stats.Progress {
	return o.tracker.Current()
}

// Running reports whether a cycle is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// RefreshAll runs one refresh cycle over the whole roster. Manual calls
// (neither silent nor auto) are subject to admission control and may be
// rejected with ErrAlreadyRefreshing or a CooldownError; rejected calls
// change no state. Per-item fetch failures are absorbed inside the cycle;
// an unexpected cycle-level failure is returned once, after cleanup.
func (o *Orchestrator) RefreshAll(ctx context.Context, opts Options) error {
	start := time.Now()
	admitted, jitter, err := o.admit(opts, start)
	if err != nil || !admitted {
		return err
	}
	return o.runCycle(ctx, opts, start, jitter)
}

// admit performs admission control and, on admission, marks the cycle
// running. jitter reports whether this is the initial application load;
// ordinary manual and auto refreshes never carry jitter.
func (o *Orchestrator) admit(opts Options, start time.Time) (admitted, jitter bool, err error) {
	manual := !opts.Silent && !opts.Auto

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		if manual {
			return false, false, ErrAlreadyRefreshing
		}
		// Overlapping silent/auto cycle: drop without an advisory.
		return false, false, nil
	}

	if manual && !o.lastStart.IsZero() {
		if elapsed := start.Sub(o.lastStart); elapsed < o.cfg.Cooldown {
			return false, false, &CooldownError{Remaining: o.cfg.Cooldown - elapsed}
		}
	}

	o.running = true
	o.lastStart = start
	if opts.Silent && o.coldStart {
		jitter = true
		o.coldStart = false
	}

	if manual && o.timerReset != nil {
		// Manual intent takes priority over the schedule.
		o.timerReset()
	}
	return true, jitter, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, opts Options, start time.Time, jitter bool) (err error) {
	cycleID := uuid.NewString()[:8]

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh cycle %s failed: %v", cycleID, r)
			slog.Error("Refresh cycle failed unexpectedly",
				"cycle_id", cycleID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
		// Unconditional cleanup: the running flag and progress display are
		// reset no matter how the cycle ended.
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		o.tracker.End()
	}()

	roster := orderRoster(o.roster())
	total := len(roster)
	ceiling := o.cfg.Sizing.CeilingFor(total)
	batchSize := o.cfg.Sizing.BatchFor(total)

	slog.Info("Starting refresh cycle",
		"cycle_id", cycleID,
		"rooms", total,
		"ceiling", ceiling,
		"batch_size", batchSize,
		"auto", opts.Auto,
		"silent", opts.Silent)

	keys := make([]string, total)
	for i, d := range roster {
		keys[i] = d.Key()
	}
	before := o.cache.SnapshotKeys(keys)
	o.cache.MarkLoading(keys)
	o.tracker.Begin(total, start)

	delays := o.taskDelays(total, jitter)

	var mu sync.Mutex
	var changed int
	task := func(ctx context.Context, index int) {
		if o.fetcher.FetchRoom(ctx, roster[index], delays[index]) {
			mu.Lock()
			changed++
			mu.Unlock()
		}
	}

	pool.Run(ctx, total, ceiling, batchSize, task, pool.Callbacks{
		OnProgress: func(completed, _ int) {
			o.tracker.Record(completed)
		},
		OnBatch: o.renderHook,
	})

	after := o.cache.SnapshotKeys(keys)
	live := 0
	for _, e := range after {
		if e.IsLive {
			live++
		}
	}
	elapsed := time.Since(start)

	slog.Info("Refresh cycle completed",
		"cycle_id", cycleID,
		"rooms", total,
		"changed", changed,
		"unchanged", total-changed,
		"live", live,
		"elapsed", elapsed)

	o.metrics.RecordCycleDuration(ctx, elapsed, opts.Auto)
	o.metrics.RecordRoomsLive(ctx, int64(live))

	if o.notifier != nil {
		o.notifier.CycleCompleted(ctx, notify.CycleSummary{
			CycleID:   cycleID,
			Before:    before,
			After:     after,
			Changed:   changed,
			Unchanged: total - changed,
			Elapsed:   elapsed,
		})
	}
	return nil
}

// taskDelays computes per-task jitter delays. Jitter applies only on the
// cold-start cycle, to avoid every monitored room hitting its upstream the
// instant the application boots.
func (o *Orchestrator) taskDelays(total int, coldStart bool) []time.Duration {
	delays := make([]time.Duration, total)
	if !coldStart || o.cfg.JitterMax <= 0 {
		return delays
	}
	for i := range delays {
		delays[i] = rand.N(o.cfg.JitterMax)
	}
	return delays
}

// orderRoster returns the roster sorted favorites-first, otherwise stable.
func orderRoster(roster []room.Descriptor) []room.Descriptor {
	ordered := make([]room.Descriptor, len(roster))
	copy(ordered, roster)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Favorite && !ordered[j].Favorite
	})
	return ordered
}

package device

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// OfflineNotifier is called once per device that the reaper transitions to
// offline. Implementations must not block; broadcast fan-out downstream is
// already best-effort.
type OfflineNotifier func(d Device)

// Reaper detects silent disconnects.
//
// Devices that crash or lose power never say goodbye; the broker's LWT only
// covers the core's own session. The reaper scans the registry on a fixed
// interval and marks online devices offline once their last heartbeat is
// older than the threshold.
//
// A device is marked offline exactly once per silence period: the sweep is
// idempotent and a device that resumes reporting goes back online through
// the normal heartbeat path.
type Reaper struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration

	clock  clockwork.Clock
	logger Logger
	notify OfflineNotifier
	logs   LogRepository

	stop chan struct{}
	done chan struct{}
}

// NewReaper creates a reaper scanning every interval for devices silent
// longer than threshold. Typical settings: 60s interval, 90s threshold.
func NewReaper(registry *Registry, interval, threshold time.Duration) *Reaper {
	return &Reaper{
		registry:  registry,
		interval:  interval,
		threshold: threshold,
		clock:     clockwork.NewRealClock(),
		logger:    noopLogger{},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the reaper.
func (r *Reaper) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the wall clock. For tests.
func (r *Reaper) SetClock(clock clockwork.Clock) {
	r.clock = clock
}

// SetNotifier sets the callback invoked for each offline transition.
func (r *Reaper) SetNotifier(notify OfflineNotifier) {
	r.notify = notify
}

// SetLogStore enables device_logs records for offline transitions.
func (r *Reaper) SetLogStore(logs LogRepository) {
	r.logs = logs
}

// Start launches the reaper loop in a new goroutine.
// The loop runs until Stop is called or the context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop halts the reaper and waits for the loop to exit.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("heartbeat reaper started",
		"interval", r.interval.String(),
		"threshold", r.threshold.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.Chan():
			r.Sweep(ctx)
		}
	}
}

// Sweep performs a single scan, marking stale devices offline.
// Exported so tests and admin tooling can trigger a scan directly.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := r.clock.Now().Add(-r.threshold)

	for _, d := range r.registry.StaleOnline(cutoff) {
		changed, err := r.registry.MarkOffline(ctx, d.ID)
		if err != nil {
			r.logger.Error("marking device offline", "id", d.ID, "error", err)
			continue
		}
		if !changed {
			continue
		}

		r.logger.Warn("device silent past threshold, marked offline",
			"id", d.ID,
			"last_heartbeat", d.LastHeartbeat,
		)

		if r.logs != nil {
			entry := &Log{
				DeviceID:  d.ID,
				Level:     LogLevelWarn,
				Event:     "offline",
				Detail:    "heartbeat timeout",
				CreatedAt: r.clock.Now().UTC(),
			}
			if err := r.logs.AppendLog(ctx, entry); err != nil {
				r.logger.Error("appending device log", "id", d.ID, "error", err)
			}
		}

		if r.notify != nil {
			d.Status = StatusOffline
			r.notify(d)
		}
	}
}

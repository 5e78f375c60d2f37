package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs sync on a fixed interval so recordings flow into memories
// without anyone hitting the trigger endpoint.
type Scheduler struct {
	coordinator *Coordinator
	interval    time.Duration
	window      time.Duration
}

// NewScheduler creates a scheduler for the coordinator.
func NewScheduler(coordinator *Coordinator, interval, window time.Duration) *Scheduler {
	return &Scheduler{coordinator: coordinator, interval: interval, window: window}
}

// Start blocks running sync every interval until ctx is cancelled. Runs are
// sequential: a slow run delays the next tick instead of stacking runs.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("sync scheduler started", "interval", s.interval, "window", s.window)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.coordinator.RunBlocking(ctx, s.window, TriggerScheduled)
		}
	}
}

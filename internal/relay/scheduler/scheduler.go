// Package scheduler implements Relay's schedule sweep: a single loop that
// wakes periodically and dispatches pipelines whose schedule cadence is due.
package scheduler

import (
	"context"
	"time"

	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/internal/relay/store"
)

const tickInterval = 60 * time.Second

var cadenceDuration = map[string]time.Duration{
	"hourly": time.Hour,
	"daily":  24 * time.Hour,
	"weekly": 7 * 24 * time.Hour,
	// A cron expression parser is out of scope;
	// "custom" cadence runs on the same cadence as "daily".
	"custom": 24 * time.Hour,
}

// Runner dispatches a due pipeline for execution. It is the scheduler's
// only dependency on the pipeline engine, kept narrow so tests can stub it.
type Runner interface {
	Execute(ctx context.Context, pipelineID string) (store.PipelineRun, error)
}

// Scheduler periodically dispatches due pipelines.
type Scheduler struct {
	store  store.Store
	runner Runner
	logger *logging.Logger
	stopCh chan struct{}
}

// New builds a Scheduler. Call Start to begin the tick loop and Stop to end
// it; Start blocks until the passed context is cancelled or Stop is called.
func New(st store.Store, runner Runner, logger *logging.Logger) *Scheduler {
	return &Scheduler{store: st, runner: runner, logger: logger, stopCh: make(chan struct{})}
}

// Stop ends the scheduler's tick loop. Safe to call once.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// Start runs the 60s sweep loop until ctx is cancelled or Stop is called.
// Each dispatched run happens in its own goroutine so a slow pipeline never
// delays the next tick.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep reads every pipeline once and dispatches the ones whose schedule is
// due. Triggered pipelines run in the background; sweep itself never blocks
// on a run's completion.
func (s *Scheduler) sweep(ctx context.Context) {
	pipelines, err := s.store.ListPipelines(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(ctx, "scheduler: list pipelines failed", err, nil)
		}
		return
	}

	now := time.Now().UTC()
	for _, p := range pipelines {
		if !p.Schedule.Enabled {
			continue
		}
		if !isDue(p.Schedule, now) {
			continue
		}
		s.dispatch(ctx, p, now)
	}
}

// isDue reports whether a pipeline's cadence has elapsed since its last
// scheduled fire. A pipeline that has never run is always due.
func isDue(sched store.Schedule, now time.Time) bool {
	if sched.LastScheduledRun == nil {
		return true
	}
	cadence, ok := cadenceDuration[sched.Cadence]
	if !ok {
		cadence = cadenceDuration["daily"]
	}
	return now.Sub(*sched.LastScheduledRun) >= cadence
}

// dispatch triggers pipeline p in the background. The last_scheduled_run
// timestamp is only advanced once dispatch itself (not the run) succeeds;
// if the store update fails, the next tick retries automatically.
func (s *Scheduler) dispatch(ctx context.Context, p store.Pipeline, now time.Time) {
	_, err := s.store.UpdatePipeline(ctx, p.ID, map[string]interface{}{
		"last_scheduled_run": now,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error(ctx, "scheduler: dispatch failed, will retry next tick", err, map[string]interface{}{
				"pipeline_id": p.ID,
			})
		}
		return
	}

	go func() {
		runCtx := context.Background()
		if _, err := s.runner.Execute(runCtx, p.ID); err != nil && s.logger != nil {
			s.logger.Error(runCtx, "scheduler: triggered run failed to start", err, map[string]interface{}{
				"pipeline_id": p.ID,
			})
		}
	}()
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/recurrence"
	"github.com/content-scheduler/internal/storage"
)

// Pause suspends automatic triggering. The schedule keeps accepting manual
// runs while paused.
func (e *Engine) Pause(ctx context.Context, scheduleID uint) error {
	schedule, err := e.repo.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("schedule %d not found: %w", scheduleID, err)
	}
	if err := e.repo.SetSchedulePaused(ctx, scheduleID, true); err != nil {
		return err
	}
	if err := e.repo.SetScheduleRunTimes(ctx, scheduleID, schedule.LastRunAt, nil); err != nil {
		return err
	}
	e.log.Info().Uint("schedule_id", scheduleID).Msg("Schedule paused")
	return nil
}

// Resume re-enables automatic triggering and recomputes the next run from now.
func (e *Engine) Resume(ctx context.Context, scheduleID uint) error {
	schedule, err := e.repo.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("schedule %d not found: %w", scheduleID, err)
	}
	if err := e.repo.SetSchedulePaused(ctx, scheduleID, false); err != nil {
		return err
	}
	schedule.IsPaused = false
	next, err := recurrence.NextRun(schedule, e.now(), e.loc)
	if err != nil {
		return fmt.Errorf("failed to compute next run: %w", err)
	}
	if err := e.repo.SetScheduleRunTimes(ctx, scheduleID, schedule.LastRunAt, next); err != nil {
		return err
	}
	e.log.Info().Uint("schedule_id", scheduleID).Msg("Schedule resumed")
	return nil
}

// RecoverStaleRuns fails out RUNNING logs left behind by a crash and releases
// any dynamic topics they still hold, so no topic stays SCHEDULED after the
// run that claimed it is gone. Called once at daemon start.
func (e *Engine) RecoverStaleRuns(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.runTimeout)
	stale, err := e.repo.StaleRunningLogs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale runs: %w", err)
	}

	recovered := 0
	for _, run := range stale {
		end := e.now()
		run.Status = models.ExecutionStatusFailed
		run.ErrorMessage = "run interrupted before completion"
		run.ExecutionMs = end.Sub(run.CreatedAt).Milliseconds()
		run.CompletedAt = &end

		// The claim may already have been committed or released by the
		// interrupted run, so the release is best-effort rather than part of
		// the finalizing transaction.
		if run.DynamicTopicID != nil {
			if err := e.repo.ReleaseDynamicTopic(ctx, *run.DynamicTopicID); err != nil &&
				!errors.Is(err, storage.ErrTopicUnavailable) {
				e.log.Error().Err(err).Uint("run_id", run.ID).Msg("Failed to release topic for stale run")
			}
		}
		if err := e.repo.FinishRun(ctx, storage.RunCompletion{Log: run}); err != nil {
			e.log.Error().Err(err).Uint("run_id", run.ID).Msg("Failed to recover stale run")
			continue
		}
		recovered++
		e.log.Warn().
			Uint("schedule_id", run.ScheduleID).
			Uint("run_id", run.ID).
			Msg("Recovered stale run")
	}
	return recovered, nil
}

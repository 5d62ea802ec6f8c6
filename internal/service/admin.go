// Package service exposes the administrative surface consumed by the HTTP
// API and the CLI: CRUD on schedules and topics, log queries, pause/resume
// and manual runs. Thin facades over the repository and the engine.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/content-scheduler/internal/engine"
	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/recurrence"
	"github.com/content-scheduler/internal/storage"
	"github.com/content-scheduler/pkg/logger"
)

// Admin is the administrative facade.
type Admin struct {
	repo   storage.Repository
	engine *engine.Engine
	loc    *time.Location
	log    *logger.Logger
}

// NewAdmin creates the administrative facade.
func NewAdmin(repo storage.Repository, eng *engine.Engine, loc *time.Location, log *logger.Logger) *Admin {
	return &Admin{
		repo:   repo,
		engine: eng,
		loc:    loc,
		log:    log.WithComponent("admin"),
	}
}

// Schedules

// CreateSchedule validates and stores a new schedule with its first trigger
// instant precomputed.
func (a *Admin) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	applyScheduleDefaults(schedule)
	if err := schedule.Validate(); err != nil {
		return err
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().In(a.loc)
	}
	next, err := recurrence.NextRun(schedule, time.Now(), a.loc)
	if err != nil {
		return err
	}
	schedule.NextRunAt = next
	if err := a.repo.CreateSchedule(ctx, schedule); err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	a.log.Info().Uint("schedule_id", schedule.ID).Str("name", schedule.Name).Msg("Schedule created")
	return nil
}

func (a *Admin) GetSchedule(ctx context.Context, id uint) (*models.Schedule, error) {
	return a.repo.GetScheduleByID(ctx, id)
}

func (a *Admin) ListSchedules(ctx context.Context, activeOnly bool) ([]*models.Schedule, error) {
	return a.repo.ListSchedules(ctx, activeOnly)
}

// UpdateSchedule persists descriptive edits and refreshes the next trigger
// instant, since the recurrence parameters may have changed.
func (a *Admin) UpdateSchedule(ctx context.Context, schedule *models.Schedule) error {
	applyScheduleDefaults(schedule)
	if err := schedule.Validate(); err != nil {
		return err
	}
	current, err := a.repo.GetScheduleByID(ctx, schedule.ID)
	if err != nil {
		return err
	}
	if err := a.repo.UpdateSchedule(ctx, schedule); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	schedule.IsPaused = current.IsPaused
	schedule.CreatedAt = current.CreatedAt
	next, err := recurrence.NextRun(schedule, time.Now(), a.loc)
	if err != nil {
		return err
	}
	return a.repo.SetScheduleRunTimes(ctx, schedule.ID, current.LastRunAt, next)
}

func (a *Admin) DeleteSchedule(ctx context.Context, id uint) error {
	if err := a.repo.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	a.log.Info().Uint("schedule_id", id).Msg("Schedule deleted with topics and logs")
	return nil
}

// Pause suppresses automatic triggers; manual runs stay available.
func (a *Admin) Pause(ctx context.Context, id uint) error {
	return a.engine.Pause(ctx, id)
}

// Resume re-enables automatic triggers from now.
func (a *Admin) Resume(ctx context.Context, id uint) error {
	return a.engine.Resume(ctx, id)
}

// RunNow triggers a manual execution. The run writes a log entry but never
// touches the schedule's cadence. Returns storage.ErrRunInProgress if an
// execution is already in flight.
func (a *Admin) RunNow(ctx context.Context, id uint) (*models.ExecutionLog, error) {
	return a.engine.Run(ctx, id, models.TriggerManual)
}

// Fixed topics

func (a *Admin) CreateFixedTopic(ctx context.Context, topic *models.FixedTopic) error {
	if topic.ScheduleID == 0 {
		return fmt.Errorf("fixed topic requires a schedule")
	}
	if err := validateFixedTopic(topic); err != nil {
		return err
	}
	return a.repo.CreateFixedTopic(ctx, topic)
}

func (a *Admin) ListFixedTopics(ctx context.Context, scheduleID uint) ([]*models.FixedTopic, error) {
	return a.repo.ListFixedTopics(ctx, scheduleID)
}

// UpdateFixedTopic edits a topic identified by its ID; the topic's schedule
// binding never changes, so no schedule reference is required in the payload.
func (a *Admin) UpdateFixedTopic(ctx context.Context, topic *models.FixedTopic) error {
	if err := validateFixedTopic(topic); err != nil {
		return err
	}
	return a.repo.UpdateFixedTopic(ctx, topic)
}

func (a *Admin) DeleteFixedTopic(ctx context.Context, id uint) error {
	return a.repo.DeleteFixedTopic(ctx, id)
}

// Dynamic topics

func (a *Admin) CreateDynamicTopic(ctx context.Context, topic *models.DynamicTopic) error {
	if topic.ScheduleID == 0 {
		return fmt.Errorf("dynamic topic requires a schedule")
	}
	if err := validateDynamicTopic(topic); err != nil {
		return err
	}
	return a.repo.CreateDynamicTopic(ctx, topic)
}

func (a *Admin) ListDynamicTopics(ctx context.Context, scheduleID uint, filter storage.TopicFilter) ([]*models.DynamicTopic, error) {
	return a.repo.ListDynamicTopics(ctx, scheduleID, filter)
}

// UpdateDynamicTopic edits descriptive fields only; the topic's status column
// belongs to the engine.
func (a *Admin) UpdateDynamicTopic(ctx context.Context, topic *models.DynamicTopic) error {
	if err := validateDynamicTopic(topic); err != nil {
		return err
	}
	return a.repo.UpdateDynamicTopic(ctx, topic)
}

// RetireDynamicTopic administratively removes a pending topic from rotation.
func (a *Admin) RetireDynamicTopic(ctx context.Context, id uint) error {
	return a.repo.RetireDynamicTopic(ctx, id)
}

func (a *Admin) DeleteDynamicTopic(ctx context.Context, id uint) error {
	return a.repo.DeleteDynamicTopic(ctx, id)
}

// Logs and posts

func (a *Admin) ListLogs(ctx context.Context, scheduleID uint, filter storage.LogFilter) ([]*models.ExecutionLog, error) {
	return a.repo.ListLogs(ctx, scheduleID, filter)
}

func (a *Admin) GetScheduleStats(ctx context.Context, scheduleID uint) (*models.ScheduleStats, error) {
	return a.repo.GetScheduleStats(ctx, scheduleID)
}

func (a *Admin) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return a.repo.GetPostByID(ctx, id)
}

func (a *Admin) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*models.Post, error) {
	return a.repo.ListPosts(ctx, filter)
}

// Validation

// applyScheduleDefaults fills optional fields a caller may omit, so partial
// JSON payloads and CLI flags produce a complete schedule.
func applyScheduleDefaults(schedule *models.Schedule) {
	if schedule.Language == "" {
		schedule.Language = "en"
	}
	if schedule.Tone == "" {
		schedule.Tone = "informative"
	}
	if schedule.ArticleLength == "" {
		schedule.ArticleLength = models.ArticleLengthMedium
	}
	if schedule.DefaultVisibility == "" {
		schedule.DefaultVisibility = models.VisibilityPublic
	}
}

func validateFixedTopic(topic *models.FixedTopic) error {
	if topic.Topic == "" {
		return fmt.Errorf("fixed topic text is required")
	}
	if topic.DayOfWeek < 0 || topic.DayOfWeek > 6 {
		return fmt.Errorf("day of week %d out of range 0-6", topic.DayOfWeek)
	}
	return nil
}

func validateDynamicTopic(topic *models.DynamicTopic) error {
	if topic.Topic == "" {
		return fmt.Errorf("dynamic topic text is required")
	}
	if topic.UseAfterDate != nil && topic.UseBeforeDate != nil &&
		topic.UseBeforeDate.Before(*topic.UseAfterDate) {
		return fmt.Errorf("use_before_date precedes use_after_date")
	}
	return nil
}

package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Schedule{},
		&models.FixedTopic{},
		&models.DynamicTopic{},
		&models.ExecutionLog{},
		&models.Post{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Schedule operations

func (r *Repository) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *Repository) GetScheduleByID(ctx context.Context, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := r.db.WithContext(ctx).
		Preload("FixedTopics").
		Preload("DynamicTopics").
		First(&schedule, id).Error; err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *Repository) ListSchedules(ctx context.Context, activeOnly bool) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	query := r.db.WithContext(ctx).Order("id ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// UpdateSchedule persists descriptive fields only. Run bookkeeping
// (last_run_at, next_run_at) is written exclusively through the execution
// store, so an admin edit can never clobber an in-flight run's state.
func (r *Repository) UpdateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return r.db.WithContext(ctx).Model(schedule).
		Select("name", "is_active", "frequency", "days_of_week", "publish_time",
			"language", "tone", "article_length", "auto_publish",
			"default_category_id", "default_visibility").
		Updates(schedule).Error
}

func (r *Repository) SetSchedulePaused(ctx context.Context, id uint, paused bool) error {
	res := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Update("is_paused", paused)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule and everything it owns. Topics, logs and
// posts never outlive their schedule.
func (r *Repository) DeleteSchedule(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("schedule_id = ?", id).Delete(&models.FixedTopic{}).Error; err != nil {
			return err
		}
		if err := tx.Where("schedule_id = ?", id).Delete(&models.DynamicTopic{}).Error; err != nil {
			return err
		}
		if err := tx.Where("schedule_id = ?", id).Delete(&models.ExecutionLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("schedule_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Schedule{}, id).Error
	})
}

// Fixed topic operations

func (r *Repository) CreateFixedTopic(ctx context.Context, topic *models.FixedTopic) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.FixedTopic{}).
			Where("schedule_id = ? AND day_of_week = ?", topic.ScheduleID, topic.DayOfWeek).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.ErrFixedDayTaken
		}
		return tx.Create(topic).Error
	})
}

func (r *Repository) ListFixedTopics(ctx context.Context, scheduleID uint) ([]*models.FixedTopic, error) {
	var topics []*models.FixedTopic
	if err := r.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("day_of_week ASC").
		Find(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

func (r *Repository) UpdateFixedTopic(ctx context.Context, topic *models.FixedTopic) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The collision check runs against the topic's persisted schedule;
		// the caller's struct may carry a stale or absent ScheduleID.
		var current models.FixedTopic
		if err := tx.First(&current, topic.ID).Error; err != nil {
			return err
		}
		topic.ScheduleID = current.ScheduleID

		var count int64
		if err := tx.Model(&models.FixedTopic{}).
			Where("schedule_id = ? AND day_of_week = ? AND id <> ?",
				current.ScheduleID, topic.DayOfWeek, topic.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.ErrFixedDayTaken
		}
		return tx.Model(topic).
			Select("day_of_week", "topic", "description", "category_id",
				"keywords", "suggested_subtopics").
			Updates(topic).Error
	})
}

func (r *Repository) DeleteFixedTopic(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.FixedTopic{}, id).Error
}

// Dynamic topic operations

func (r *Repository) CreateDynamicTopic(ctx context.Context, topic *models.DynamicTopic) error {
	if topic.Status == "" {
		topic.Status = models.DynamicTopicStatusPending
	}
	return r.db.WithContext(ctx).Create(topic).Error
}

func (r *Repository) ListDynamicTopics(ctx context.Context, scheduleID uint, filter storage.TopicFilter) ([]*models.DynamicTopic, error) {
	var topics []*models.DynamicTopic
	query := r.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("priority DESC, id ASC")

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

// UpdateDynamicTopic persists descriptive fields only; status transitions go
// through the claim/release/finish paths.
func (r *Repository) UpdateDynamicTopic(ctx context.Context, topic *models.DynamicTopic) error {
	return r.db.WithContext(ctx).Model(topic).
		Select("topic", "description", "category_id", "keywords", "priority",
			"use_after_date", "use_before_date").
		Updates(topic).Error
}

// RetireDynamicTopic administratively moves a pending topic to skipped.
func (r *Repository) RetireDynamicTopic(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.DynamicTopic{}).
		Where("id = ? AND status = ?", id, models.DynamicTopicStatusPending).
		Update("status", models.DynamicTopicStatusSkipped)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrTopicUnavailable
	}
	return nil
}

func (r *Repository) DeleteDynamicTopic(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.DynamicTopic{}, id).Error
}

// Post operations

func (r *Repository) GetPostByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *Repository) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*models.Post, error) {
	var posts []*models.Post
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC")

	if filter.ScheduleID != nil {
		query = query.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// Execution log queries

func (r *Repository) ListLogs(ctx context.Context, scheduleID uint, filter storage.LogFilter) ([]*models.ExecutionLog, error) {
	var logs []*models.ExecutionLog
	query := r.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("created_at DESC, id DESC")

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// GetScheduleStats aggregates over execution log rows at query time.
func (r *Repository) GetScheduleStats(ctx context.Context, scheduleID uint) (*models.ScheduleStats, error) {
	stats := &models.ScheduleStats{}

	if err := r.db.WithContext(ctx).Model(&models.ExecutionLog{}).
		Where("schedule_id = ?", scheduleID).
		Count(&stats.TotalRuns).Error; err != nil {
		return nil, err
	}
	counts := map[models.ExecutionStatus]*int64{
		models.ExecutionStatusSuccess: &stats.Succeeded,
		models.ExecutionStatusFailed:  &stats.Failed,
		models.ExecutionStatusSkipped: &stats.Skipped,
	}
	for status, dst := range counts {
		if err := r.db.WithContext(ctx).Model(&models.ExecutionLog{}).
			Where("schedule_id = ? AND status = ?", scheduleID, status).
			Count(dst).Error; err != nil {
			return nil, err
		}
	}
	attempted := stats.Succeeded + stats.Failed
	if attempted > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(attempted)
	}

	var last models.ExecutionLog
	err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND status IN ?", scheduleID, []models.ExecutionStatus{
			models.ExecutionStatusSuccess,
			models.ExecutionStatusFailed,
			models.ExecutionStatusSkipped,
		}).
		Order("created_at DESC, id DESC").
		First(&last).Error
	if err == nil {
		t := last.CreatedAt
		stats.LastRunAt = &t
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return stats, nil
}

// Execution store

func (r *Repository) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND is_paused = ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
			true, false, now).
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// BeginRun performs the idempotency guard and log insert in one transaction.
// SQLite serializes writers, so the count-then-insert pair cannot interleave
// with a concurrent BeginRun for the same schedule.
func (r *Repository) BeginRun(ctx context.Context, scheduleID uint, trigger models.TriggerKind) (*models.ExecutionLog, error) {
	log := &models.ExecutionLog{
		ScheduleID: scheduleID,
		Status:     models.ExecutionStatusRunning,
		Trigger:    trigger,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ExecutionLog{}).
			Where("schedule_id = ? AND status = ?", scheduleID, models.ExecutionStatusRunning).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.ErrRunInProgress
		}
		return tx.Create(log).Error
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// FinishRun commits the terminal state of a run atomically. A crash between
// any two of these writes cannot leave the log, the topic and the schedule
// disagreeing about what happened.
func (r *Repository) FinishRun(ctx context.Context, completion storage.RunCompletion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if completion.Post != nil {
			if err := tx.Create(completion.Post).Error; err != nil {
				return err
			}
			completion.Log.PostID = &completion.Post.ID
			completion.Log.PostTitle = completion.Post.Title
		}

		if err := tx.Save(completion.Log).Error; err != nil {
			return err
		}

		if completion.TopicID != nil {
			res := tx.Model(&models.DynamicTopic{}).
				Where("id = ? AND status = ?", *completion.TopicID, models.DynamicTopicStatusScheduled).
				Update("status", completion.TopicStatus)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("dynamic topic %d was not in scheduled state", *completion.TopicID)
			}
		}

		if completion.TouchSchedule {
			if err := tx.Model(&models.Schedule{}).
				Where("id = ?", completion.Log.ScheduleID).
				Updates(map[string]interface{}{
					"last_run_at": completion.LastRunAt,
					"next_run_at": completion.NextRunAt,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) MarkRunTopic(ctx context.Context, logID uint, topicType models.TopicType, topicUsed string) error {
	res := r.db.WithContext(ctx).Model(&models.ExecutionLog{}).
		Where("id = ? AND status = ?", logID, models.ExecutionStatusRunning).
		Updates(map[string]interface{}{
			"topic_type": topicType,
			"topic_used": topicUsed,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) GetFixedTopicForDay(ctx context.Context, scheduleID uint, dayOfWeek int) (*models.FixedTopic, error) {
	var topic models.FixedTopic
	err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND day_of_week = ?", scheduleID, dayOfWeek).
		First(&topic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *Repository) CandidateDynamicTopics(ctx context.Context, scheduleID uint, day time.Time) ([]*models.DynamicTopic, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	var topics []*models.DynamicTopic
	if err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND status = ?", scheduleID, models.DynamicTopicStatusPending).
		Where("use_after_date IS NULL OR use_after_date <= ?", dayEnd).
		Where("use_before_date IS NULL OR use_before_date >= ?", dayStart).
		Order("priority DESC, use_after_date ASC, id ASC").
		Find(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

// ClaimTopicForRun is a compare-and-set: the UPDATE only matches a pending
// row, so two concurrent claims cannot both succeed. The log stamp rides the
// same transaction; if the process dies the instant the claim commits, the
// RUNNING log already names the topic and recovery can release it.
func (r *Repository) ClaimTopicForRun(ctx context.Context, logID uint, topic *models.DynamicTopic) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.DynamicTopic{}).
			Where("id = ? AND status = ?", topic.ID, models.DynamicTopicStatusPending).
			Update("status", models.DynamicTopicStatusScheduled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrTopicUnavailable
		}

		res = tx.Model(&models.ExecutionLog{}).
			Where("id = ? AND status = ?", logID, models.ExecutionStatusRunning).
			Updates(map[string]interface{}{
				"topic_type":       models.TopicTypeDynamic,
				"topic_used":       topic.Topic,
				"dynamic_topic_id": topic.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *Repository) ReleaseDynamicTopic(ctx context.Context, topicID uint) error {
	res := r.db.WithContext(ctx).Model(&models.DynamicTopic{}).
		Where("id = ? AND status = ?", topicID, models.DynamicTopicStatusScheduled).
		Update("status", models.DynamicTopicStatusPending)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrTopicUnavailable
	}
	return nil
}

func (r *Repository) ExpireDynamicTopics(ctx context.Context, scheduleID uint, asOf time.Time) (int64, error) {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	res := r.db.WithContext(ctx).Model(&models.DynamicTopic{}).
		Where("schedule_id = ? AND status = ?", scheduleID, models.DynamicTopicStatusPending).
		Where("use_before_date IS NOT NULL AND use_before_date < ?", dayStart).
		Update("status", models.DynamicTopicStatusSkipped)
	return res.RowsAffected, res.Error
}

func (r *Repository) SetScheduleRunTimes(ctx context.Context, scheduleID uint, lastRunAt, nextRunAt *time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{
			"last_run_at": lastRunAt,
			"next_run_at": nextRunAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) StaleRunningLogs(ctx context.Context, cutoff time.Time) ([]*models.ExecutionLog, error) {
	var logs []*models.ExecutionLog
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.ExecutionStatusRunning, cutoff).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

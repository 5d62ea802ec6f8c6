package storage

import (
	"context"
	"errors"
	"time"

	"github.com/content-scheduler/internal/models"
)

// Sentinel errors surfaced synchronously to callers of the admin surface.
var (
	// ErrRunInProgress is returned by BeginRun when another execution for the
	// same schedule is still running. At most one in-flight run per schedule.
	ErrRunInProgress = errors.New("an execution for this schedule is already running")

	// ErrTopicUnavailable is returned by ClaimTopicForRun when the topic is
	// no longer pending (claimed by another run, used, or retired).
	ErrTopicUnavailable = errors.New("dynamic topic is not available for selection")

	// ErrFixedDayTaken is returned when a fixed topic collides with an
	// existing one on the same weekday of the same schedule.
	ErrFixedDayTaken = errors.New("schedule already has a fixed topic on this weekday")
)

// DefinitionStore is the administrative capability: CRUD on schedules, topics
// and read access to posts and logs. It only ever touches descriptive fields;
// topic status and schedule run times belong to the ExecutionStore.
type DefinitionStore interface {
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	GetScheduleByID(ctx context.Context, id uint) (*models.Schedule, error)
	ListSchedules(ctx context.Context, activeOnly bool) ([]*models.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *models.Schedule) error
	SetSchedulePaused(ctx context.Context, id uint, paused bool) error
	DeleteSchedule(ctx context.Context, id uint) error

	CreateFixedTopic(ctx context.Context, topic *models.FixedTopic) error
	ListFixedTopics(ctx context.Context, scheduleID uint) ([]*models.FixedTopic, error)
	UpdateFixedTopic(ctx context.Context, topic *models.FixedTopic) error
	DeleteFixedTopic(ctx context.Context, id uint) error

	CreateDynamicTopic(ctx context.Context, topic *models.DynamicTopic) error
	ListDynamicTopics(ctx context.Context, scheduleID uint, filter TopicFilter) ([]*models.DynamicTopic, error)
	UpdateDynamicTopic(ctx context.Context, topic *models.DynamicTopic) error
	RetireDynamicTopic(ctx context.Context, id uint) error
	DeleteDynamicTopic(ctx context.Context, id uint) error

	GetPostByID(ctx context.Context, id uint) (*models.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]*models.Post, error)

	ListLogs(ctx context.Context, scheduleID uint, filter LogFilter) ([]*models.ExecutionLog, error)
	GetScheduleStats(ctx context.Context, scheduleID uint) (*models.ScheduleStats, error)
}

// ExecutionStore is the engine-only capability: run bookkeeping, topic status
// transitions and schedule run times. Every mutation here is transactional
// with the execution log write that causes it.
type ExecutionStore interface {
	// DueSchedules returns active, unpaused schedules whose next run is at or
	// before now.
	DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)

	// BeginRun atomically checks for an in-flight run and inserts a RUNNING
	// log row. Returns ErrRunInProgress if one exists (check-and-insert in a
	// single transaction, not check-then-act).
	BeginRun(ctx context.Context, scheduleID uint, trigger models.TriggerKind) (*models.ExecutionLog, error)

	// FinishRun finalizes a run in one transaction: the log update, the
	// optional post insert, the optional dynamic topic transition and the
	// optional schedule run-time refresh commit or roll back together.
	FinishRun(ctx context.Context, completion RunCompletion) error

	// MarkRunTopic records a fixed topic on a still-running log before the
	// generation call starts. Dynamic topics are stamped by ClaimTopicForRun
	// instead, so the claim and its record can never diverge.
	MarkRunTopic(ctx context.Context, logID uint, topicType models.TopicType, topicUsed string) error

	// GetFixedTopicForDay returns the schedule's fixed topic for a weekday
	// (0=Monday..6=Sunday), or nil if none exists.
	GetFixedTopicForDay(ctx context.Context, scheduleID uint, dayOfWeek int) (*models.FixedTopic, error)

	// CandidateDynamicTopics returns pending topics whose availability window
	// contains day, ordered by priority desc, earliest use-after first, then
	// oldest creation order.
	CandidateDynamicTopics(ctx context.Context, scheduleID uint, day time.Time) ([]*models.DynamicTopic, error)

	// ClaimTopicForRun transitions a topic pending->scheduled by
	// compare-and-set and stamps the claiming run's log with the topic in the
	// same transaction, so a crash at any instant leaves either no claim or a
	// claim the log row points at. Returns ErrTopicUnavailable if the topic
	// was not pending.
	ClaimTopicForRun(ctx context.Context, logID uint, topic *models.DynamicTopic) error

	// ReleaseDynamicTopic reverts scheduled->pending after a failed run.
	ReleaseDynamicTopic(ctx context.Context, topicID uint) error

	// ExpireDynamicTopics moves pending topics whose use-before date has
	// elapsed to skipped. Returns the number of topics expired.
	ExpireDynamicTopics(ctx context.Context, scheduleID uint, asOf time.Time) (int64, error)

	// SetScheduleRunTimes overwrites a schedule's run bookkeeping. Used by
	// pause/resume; run completions go through FinishRun instead.
	SetScheduleRunTimes(ctx context.Context, scheduleID uint, lastRunAt, nextRunAt *time.Time) error

	// StaleRunningLogs returns RUNNING logs created before the cutoff, used
	// for crash recovery at daemon start.
	StaleRunningLogs(ctx context.Context, cutoff time.Time) ([]*models.ExecutionLog, error)
}

// Repository is the full persistence surface.
type Repository interface {
	DefinitionStore
	ExecutionStore

	Migrate() error
	Close() error
}

// RunCompletion describes the terminal state of one run. Log must already
// carry its final status, error message and timing.
type RunCompletion struct {
	Log  *models.ExecutionLog
	Post *models.Post // persisted on success, nil otherwise

	// Dynamic topic transition, if the run selected one.
	TopicID     *uint
	TopicStatus models.DynamicTopicStatus

	// Schedule run-time refresh; applied only for automatic triggers.
	TouchSchedule bool
	LastRunAt     *time.Time
	NextRunAt     *time.Time
}

// TopicFilter defines filtering options for dynamic topics
type TopicFilter struct {
	Status *models.DynamicTopicStatus
	Limit  int
	Offset int
}

// PostFilter defines filtering options for posts
type PostFilter struct {
	ScheduleID *uint
	Status     *models.PostStatus
	Limit      int
	Offset     int
}

// LogFilter defines filtering options for execution logs.
// Logs are always returned most recent first.
type LogFilter struct {
	Status *models.ExecutionStatus
	Limit  int
	Offset int
}

// DefaultLogFilter returns a filter with sensible defaults
func DefaultLogFilter() LogFilter {
	return LogFilter{Limit: 50}
}

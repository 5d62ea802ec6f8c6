// Package engine orchestrates scheduler runs: topic resolution, the
// generation call, post persistence, log bookkeeping and recurrence refresh.
// The engine is the only writer of dynamic topic statuses and of a schedule's
// last/next run times.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/content-scheduler/internal/ai"
	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/recurrence"
	"github.com/content-scheduler/internal/storage"
	"github.com/content-scheduler/pkg/logger"
)

// ErrScheduleNotRunnable is returned when an automatic trigger reaches a
// paused or deactivated schedule. Manual runs are still allowed on paused
// schedules so operators can test generation without resuming the cadence.
var ErrScheduleNotRunnable = errors.New("schedule is paused or inactive")

// Generator is the external text-generation collaborator.
type Generator interface {
	GenerateArticle(ctx context.Context, req ai.ArticleRequest) (*ai.Article, error)
}

// ImageSearcher is the optional image-search collaborator.
type ImageSearcher interface {
	FindImages(ctx context.Context, keywords []string, limit int) ([]models.ImageRef, error)
}

// Engine performs exactly one attempt per trigger, end-to-end.
type Engine struct {
	repo       storage.Repository
	generator  Generator
	images     ImageSearcher // nil when media is disabled
	maxImages  int
	loc        *time.Location
	runTimeout time.Duration
	now        func() time.Time
	log        *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithImageSearcher enables image attachment on generated posts.
func WithImageSearcher(images ImageSearcher, maxImages int) Option {
	return func(e *Engine) {
		e.images = images
		e.maxImages = maxImages
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an execution engine.
func New(repo storage.Repository, generator Generator, loc *time.Location, runTimeout time.Duration, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:       repo,
		generator:  generator,
		maxImages:  3,
		loc:        loc,
		runTimeout: runTimeout,
		now:        time.Now,
		log:        log.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time in the reference location.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// Run performs one execution attempt for the schedule.
//
// The RUNNING-log guard in BeginRun rejects a second trigger while one is in
// flight (storage.ErrRunInProgress); the caller must retry after the current
// run terminates. Automatic triggers refresh last/next run times on every
// terminal outcome; manual triggers never touch them.
func (e *Engine) Run(ctx context.Context, scheduleID uint, trigger models.TriggerKind) (*models.ExecutionLog, error) {
	schedule, err := e.repo.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("schedule %d not found: %w", scheduleID, err)
	}
	if trigger == models.TriggerAutomatic && (schedule.IsPaused || !schedule.IsActive) {
		return nil, ErrScheduleNotRunnable
	}

	start := e.now()
	log := e.log.WithScheduleID(scheduleID)

	run, err := e.repo.BeginRun(ctx, scheduleID, trigger)
	if err != nil {
		return nil, err
	}
	log = log.WithRunID(run.ID)
	log.Info().Str("trigger", string(trigger)).Msg("Execution started")

	selection, err := e.SelectTopic(ctx, schedule, run.ID, start)
	if err != nil {
		return e.finalize(ctx, schedule, run, trigger, start, storage.RunCompletion{}, err)
	}

	if selection.None() {
		// Nothing eligible today. A healthy outcome, not an error.
		run.Status = models.ExecutionStatusSkipped
		log.Info().Msg("No eligible topic, skipping run")
		return e.finalize(ctx, schedule, run, trigger, start, storage.RunCompletion{}, nil)
	}

	run.TopicType = selection.Type
	run.TopicUsed = selection.Topic()

	var topicID *uint
	switch selection.Type {
	case models.TopicTypeDynamic:
		// The claim already stamped the log row inside its own transaction.
		id := selection.Dynamic.ID
		topicID = &id
		run.DynamicTopicID = &id
	case models.TopicTypeFixed:
		// Fixed topics carry no claim; the stamp is bookkeeping only.
		if err := e.repo.MarkRunTopic(ctx, run.ID, run.TopicType, run.TopicUsed); err != nil {
			return e.finalize(ctx, schedule, run, trigger, start, storage.RunCompletion{}, err)
		}
	}

	log.Info().
		Str("topic_type", string(selection.Type)).
		Str("topic", run.TopicUsed).
		Msg("Topic selected")

	article, err := e.generate(ctx, schedule, selection)
	if err != nil {
		completion := storage.RunCompletion{TopicID: topicID, TopicStatus: models.DynamicTopicStatusPending}
		return e.finalize(ctx, schedule, run, trigger, start, completion, err)
	}

	post := e.buildPost(schedule, selection, article)
	if e.images != nil && len(article.ImageKeywords) > 0 {
		// Non-fatal: the article still publishes without images.
		refs, imgErr := e.images.FindImages(ctx, article.ImageKeywords, e.maxImages)
		if imgErr != nil {
			log.Warn().Err(imgErr).Msg("Image search failed, continuing without images")
		} else {
			post.Images = refs
		}
	}

	run.Status = models.ExecutionStatusSuccess
	run.SubtopicGenerated = article.Subtopic
	completion := storage.RunCompletion{
		Post:        post,
		TopicID:     topicID,
		TopicStatus: models.DynamicTopicStatusUsed,
	}
	return e.finalize(ctx, schedule, run, trigger, start, completion, nil)
}

// generate calls the generation collaborator under the per-run timeout. The
// timeout is the only abort mechanism for an in-flight generation.
func (e *Engine) generate(ctx context.Context, schedule *models.Schedule, selection Selection) (*ai.Article, error) {
	minWords, maxWords := schedule.WordCountRange()
	req := ai.ArticleRequest{
		Language: schedule.Language,
		Tone:     schedule.Tone,
		MinWords: minWords,
		MaxWords: maxWords,
	}
	switch selection.Type {
	case models.TopicTypeFixed:
		req.Topic = selection.Fixed.Topic
		req.Description = selection.Fixed.Description
		req.Keywords = selection.Fixed.Keywords
		req.Subtopics = selection.Fixed.SuggestedSubtopics
	case models.TopicTypeDynamic:
		req.Topic = selection.Dynamic.Topic
		req.Description = selection.Dynamic.Description
		req.Keywords = selection.Dynamic.Keywords
	}

	genCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	return e.generator.GenerateArticle(genCtx, req)
}

// buildPost assembles the persisted artifact from the generated article,
// respecting the schedule's auto-publish flag and category/visibility
// defaults (a fixed or dynamic topic's category overrides the default).
func (e *Engine) buildPost(schedule *models.Schedule, selection Selection, article *ai.Article) *models.Post {
	categoryID := schedule.DefaultCategoryID
	switch selection.Type {
	case models.TopicTypeFixed:
		if selection.Fixed.CategoryID != nil {
			categoryID = selection.Fixed.CategoryID
		}
	case models.TopicTypeDynamic:
		if selection.Dynamic.CategoryID != nil {
			categoryID = selection.Dynamic.CategoryID
		}
	}

	scheduleID := schedule.ID
	post := &models.Post{
		ScheduleID: &scheduleID,
		Title:      article.Title,
		Body:       article.Body,
		Excerpt:    article.Excerpt,
		Tags:       article.Tags,
		CategoryID: categoryID,
		Visibility: schedule.DefaultVisibility,
		Language:   schedule.Language,
		Status:     models.PostStatusDraft,
	}
	if schedule.AutoPublish {
		now := e.now()
		post.Status = models.PostStatusPublished
		post.PublishedAt = &now
	}
	return post
}

// finalize commits the terminal state of the run. When runErr is non-nil the
// log is marked failed with the collaborator's message preserved verbatim and
// any claimed dynamic topic reverts to pending, never silently lost.
func (e *Engine) finalize(ctx context.Context, schedule *models.Schedule, run *models.ExecutionLog, trigger models.TriggerKind, start time.Time, completion storage.RunCompletion, runErr error) (*models.ExecutionLog, error) {
	end := e.now()

	if runErr != nil {
		run.Status = models.ExecutionStatusFailed
		run.ErrorMessage = runErr.Error()
		run.PostID = nil
		run.PostTitle = ""
		completion.Post = nil
		if completion.TopicID != nil {
			completion.TopicStatus = models.DynamicTopicStatusPending
		}
	}
	run.ExecutionMs = end.Sub(start).Milliseconds()
	run.CompletedAt = &end
	completion.Log = run

	if trigger == models.TriggerAutomatic {
		completion.TouchSchedule = true
		completion.LastRunAt = &end
		next, nerr := recurrence.NextRun(schedule, end, e.loc)
		if nerr != nil {
			e.log.Error().Err(nerr).Uint("schedule_id", schedule.ID).Msg("Failed to compute next run")
		} else {
			completion.NextRunAt = next
		}
	}

	if err := e.repo.FinishRun(ctx, completion); err != nil {
		// Persistence failed after a successful generation: from the caller's
		// perspective the run produced no usable artifact, so record FAILED
		// and release the topic.
		if runErr == nil {
			runErr = fmt.Errorf("failed to persist run result: %w", err)
			return e.finalize(ctx, schedule, run, trigger, start, storage.RunCompletion{TopicID: completion.TopicID}, runErr)
		}
		e.log.Error().Err(err).Uint("run_id", run.ID).Msg("Failed to finalize execution log")
		return run, err
	}

	logEvent := e.log.Info()
	if run.Status == models.ExecutionStatusFailed {
		logEvent = e.log.Error()
	}
	logEvent.
		Uint("schedule_id", schedule.ID).
		Uint("run_id", run.ID).
		Str("status", string(run.Status)).
		Int64("execution_ms", run.ExecutionMs).
		Msg("Execution finished")

	if runErr != nil {
		return run, runErr
	}
	return run, nil
}

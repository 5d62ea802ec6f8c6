package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/recurrence"
	"github.com/content-scheduler/internal/storage"
)

// Selection is the outcome of topic resolution for one run. Type is empty
// when nothing was eligible; the caller records a skipped run in that case.
type Selection struct {
	Type    models.TopicType
	Fixed   *models.FixedTopic
	Dynamic *models.DynamicTopic
}

// None reports whether no topic was selected.
func (s Selection) None() bool {
	return s.Type == ""
}

// Topic returns the topic text of whichever tier was selected.
func (s Selection) Topic() string {
	switch s.Type {
	case models.TopicTypeFixed:
		return s.Fixed.Topic
	case models.TopicTypeDynamic:
		return s.Dynamic.Topic
	}
	return ""
}

// SelectTopic picks exactly one topic for the run identified by runID, or
// none.
//
// Fixed topics always win: they are a curated editorial calendar and must not
// be displaced by the dynamic pool. Otherwise the highest-priority pending
// dynamic topic whose availability window contains the day is claimed
// (pending->scheduled) before being returned, so a concurrent or retried
// trigger cannot pick it twice. The claim and the log stamp recording it
// commit in one transaction; a crash can never leave a claimed topic no log
// row points at. Candidate ordering breaks priority ties by earliest
// use-after date, then oldest creation order.
func (e *Engine) SelectTopic(ctx context.Context, schedule *models.Schedule, runID uint, day time.Time) (Selection, error) {
	day = day.In(e.loc)

	// Lazily retire pending topics whose window has closed, so the pool the
	// admin surface shows matches what the selector can actually pick.
	if expired, err := e.repo.ExpireDynamicTopics(ctx, schedule.ID, day); err != nil {
		return Selection{}, fmt.Errorf("failed to expire dynamic topics: %w", err)
	} else if expired > 0 {
		e.log.Info().
			Uint("schedule_id", schedule.ID).
			Int64("expired", expired).
			Msg("Retired expired dynamic topics")
	}

	fixed, err := e.repo.GetFixedTopicForDay(ctx, schedule.ID, recurrence.WeekdayIndex(day.Weekday()))
	if err != nil {
		return Selection{}, fmt.Errorf("failed to look up fixed topic: %w", err)
	}
	if fixed != nil {
		return Selection{Type: models.TopicTypeFixed, Fixed: fixed}, nil
	}

	candidates, err := e.repo.CandidateDynamicTopics(ctx, schedule.ID, day)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to list dynamic topics: %w", err)
	}
	for _, candidate := range candidates {
		err := e.repo.ClaimTopicForRun(ctx, runID, candidate)
		if errors.Is(err, storage.ErrTopicUnavailable) {
			// Lost the claim to a concurrent run; try the next candidate.
			continue
		}
		if err != nil {
			return Selection{}, fmt.Errorf("failed to claim dynamic topic %d: %w", candidate.ID, err)
		}
		candidate.Status = models.DynamicTopicStatusScheduled
		return Selection{Type: models.TopicTypeDynamic, Dynamic: candidate}, nil
	}

	return Selection{}, nil
}

// Package recurrence computes when a schedule fires next. All functions are
// pure; the execution engine calls NextRun after every completed automatic
// run to refresh the schedule's bookkeeping.
package recurrence

import (
	"fmt"
	"time"

	"github.com/content-scheduler/internal/models"
)

// WeekdayIndex converts Go's Sunday-based weekday to the 0=Monday..6=Sunday
// indexing used by schedules and fixed topics.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// NextRun returns the next trigger instant strictly after the given base
// instant, in the reference location. A paused or inactive schedule has no
// next run and yields nil.
func NextRun(s *models.Schedule, after time.Time, loc *time.Location) (*time.Time, error) {
	if s.IsPaused || !s.IsActive {
		return nil, nil
	}

	hour, minute, err := s.PublishClock()
	if err != nil {
		return nil, err
	}
	base := after.In(loc)

	switch s.Frequency {
	case models.FrequencyDaily:
		next := atClock(base, hour, minute)
		if !next.After(base) {
			next = next.AddDate(0, 0, 1)
		}
		return &next, nil

	case models.FrequencyWeekly, models.FrequencyBiweekly:
		if len(s.DaysOfWeek) == 0 {
			return nil, fmt.Errorf("%s schedule has no days of week configured", s.Frequency)
		}
		// Scan forward from the base date to the earliest configured weekday
		// whose occurrence is strictly after the base instant.
		for offset := 0; offset <= 7; offset++ {
			candidate := atClock(base.AddDate(0, 0, offset), hour, minute)
			if !s.DaysOfWeek.Contains(WeekdayIndex(candidate.Weekday())) {
				continue
			}
			if !candidate.After(base) {
				continue
			}
			// Biweekly schedules run every other week: once the candidate
			// rolls into a new calendar week, skip one whole week.
			if s.Frequency == models.FrequencyBiweekly && !sameWeek(base, candidate) {
				candidate = candidate.AddDate(0, 0, 7)
			}
			return &candidate, nil
		}
		return nil, fmt.Errorf("no next occurrence found for schedule %d", s.ID)

	case models.FrequencyMonthly:
		// Fires on the schedule's creation day-of-month, clamped to the last
		// day of shorter months.
		anchor := s.CreatedAt.In(loc).Day()
		baseYear, baseMonth, _ := base.Date()
		for months := 0; months <= 12; months++ {
			y, m, _ := time.Date(baseYear, baseMonth+time.Month(months), 1, 0, 0, 0, 0, loc).Date()
			day := anchor
			if last := daysInMonth(y, m); day > last {
				day = last
			}
			candidate := time.Date(y, m, day, hour, minute, 0, 0, loc)
			if candidate.After(base) {
				return &candidate, nil
			}
		}
		return nil, fmt.Errorf("no next occurrence found for schedule %d", s.ID)

	default:
		return nil, fmt.Errorf("unknown frequency %q", s.Frequency)
	}
}

// atClock returns the instant on t's date at the given wall clock time.
func atClock(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

// sameWeek reports whether two instants fall in the same ISO week
// (Monday-based, matching the weekday indexing).
func sameWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

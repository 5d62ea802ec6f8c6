package recurrence

import (
	"testing"
	"time"

	"github.com/content-scheduler/internal/models"
)

// 2026-03-02 is a Monday; 03-03 Tuesday, 03-05 Thursday, 03-10 Tuesday.
func date(day, hour, min int) time.Time {
	return time.Date(2026, time.March, day, hour, min, 0, 0, time.UTC)
}

func TestWeekdayIndex(t *testing.T) {
	cases := []struct {
		weekday time.Weekday
		want    int
	}{
		{time.Monday, 0},
		{time.Tuesday, 1},
		{time.Wednesday, 2},
		{time.Saturday, 5},
		{time.Sunday, 6},
	}
	for _, c := range cases {
		if got := WeekdayIndex(c.weekday); got != c.want {
			t.Errorf("WeekdayIndex(%v) = %d, want %d", c.weekday, got, c.want)
		}
	}
}

func TestNextRunDaily(t *testing.T) {
	s := &models.Schedule{
		IsActive:    true,
		Frequency:   models.FrequencyDaily,
		PublishTime: "09:00",
	}

	// Before today's publish time: fires today.
	next, err := NextRun(s, date(2, 8, 0), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := date(2, 9, 0); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Exactly at the publish time: strictly after, so tomorrow.
	next, err = NextRun(s, date(2, 9, 0), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := date(3, 9, 0); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextRunWeekly(t *testing.T) {
	s := &models.Schedule{
		IsActive:    true,
		Frequency:   models.FrequencyWeekly,
		DaysOfWeek:  models.IntSlice{1, 3}, // Tuesday, Thursday
		PublishTime: "09:00",
	}

	// After the Tuesday run, the same week's Thursday is next.
	next, err := NextRun(s, date(3, 9, 0), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := date(5, 9, 0); !next.Equal(want) {
		t.Errorf("after Tuesday: next = %v, want %v", next, want)
	}

	// After the Thursday run, next week's Tuesday is next.
	next, err = NextRun(s, date(5, 9, 0), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := date(10, 9, 0); !next.Equal(want) {
		t.Errorf("after Thursday: next = %v, want %v", next, want)
	}
}

func TestNextRunBiweekly(t *testing.T) {
	s := &models.Schedule{
		IsActive:    true,
		Frequency:   models.FrequencyBiweekly,
		DaysOfWeek:  models.IntSlice{1, 3},
		PublishTime: "09:00",
	}

	// Still inside the active week: the next configured day fires.
	next, err := NextRun(s, date(3, 9, 0), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := date(5, 9, 0); !next.Equal(want) {
		t.Errorf("within week: next = %v, want %v", next, want)
	}

	// Wrapping into a new week skips one whole week.
	next, err = NextRun(s, date(5, 9, 0), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := date(17, 9, 0); !next.Equal(want) {
		t.Errorf("wrapped: next = %v, want %v", next, want)
	}
}

func TestNextRunMonthlyClampsShortMonths(t *testing.T) {
	s := &models.Schedule{
		IsActive:    true,
		Frequency:   models.FrequencyMonthly,
		PublishTime: "09:00",
		CreatedAt:   time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC),
	}

	// February has no 31st; the run lands on its last day.
	next, err := NextRun(s, time.Date(2026, time.January, 31, 10, 0, 0, 0, time.UTC), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, time.February, 28, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// After February, the anchor day is used again where it exists.
	next, err = NextRun(s, *next, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, time.March, 31, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextRunPaused(t *testing.T) {
	s := &models.Schedule{
		IsActive:    true,
		IsPaused:    true,
		Frequency:   models.FrequencyDaily,
		PublishTime: "09:00",
	}
	next, err := NextRun(s, date(2, 8, 0), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Errorf("paused schedule should have no next run, got %v", next)
	}
}

func TestNextRunAlwaysAfterBase(t *testing.T) {
	schedules := []*models.Schedule{
		{IsActive: true, Frequency: models.FrequencyDaily, PublishTime: "00:00"},
		{IsActive: true, Frequency: models.FrequencyWeekly, DaysOfWeek: models.IntSlice{0}, PublishTime: "23:59"},
		{IsActive: true, Frequency: models.FrequencyBiweekly, DaysOfWeek: models.IntSlice{6}, PublishTime: "12:30"},
		{IsActive: true, Frequency: models.FrequencyMonthly, PublishTime: "06:00",
			CreatedAt: time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC)},
	}
	base := date(2, 9, 0)
	for _, s := range schedules {
		for i := 0; i < 30; i++ {
			next, err := NextRun(s, base, time.UTC)
			if err != nil {
				t.Fatalf("%s: %v", s.Frequency, err)
			}
			if !next.After(base) {
				t.Fatalf("%s: next run %v not after base %v", s.Frequency, next, base)
			}
			base = *next
		}
		base = date(2, 9, 0)
	}
}

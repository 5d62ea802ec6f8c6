package models

import (
	"time"
)

// DynamicTopicStatus represents the lifecycle state of a pooled topic
type DynamicTopicStatus string

const (
	DynamicTopicStatusPending   DynamicTopicStatus = "pending"   // eligible for selection
	DynamicTopicStatusScheduled DynamicTopicStatus = "scheduled" // reserved by an in-flight run
	DynamicTopicStatusUsed      DynamicTopicStatus = "used"      // consumed by a successful run
	DynamicTopicStatusSkipped   DynamicTopicStatus = "skipped"   // retired or expired without use
)

// FixedTopic pins an editorial topic to a specific weekday of its schedule.
// At most one fixed topic per weekday per schedule. Fixed topics are stateless
// and reusable every occurrence of their weekday; the engine never mutates them.
type FixedTopic struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	ScheduleID         uint        `gorm:"index:idx_fixed_schedule_day,unique;not null" json:"schedule_id"`
	DayOfWeek          int         `gorm:"index:idx_fixed_schedule_day,unique;not null" json:"day_of_week"` // 0=Monday..6=Sunday
	Topic              string      `gorm:"not null" json:"topic"`
	Description        string      `json:"description"`
	CategoryID         *uint       `json:"category_id"`
	Keywords           StringSlice `gorm:"type:json" json:"keywords"`
	SuggestedSubtopics StringSlice `gorm:"type:json" json:"suggested_subtopics"`
	CreatedAt          time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// DynamicTopic is a pooled, prioritized, time-windowed topic used when no
// fixed topic applies. Status is written exclusively by the execution engine.
type DynamicTopic struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ScheduleID  uint        `gorm:"index;not null" json:"schedule_id"`
	Topic       string      `gorm:"not null" json:"topic"`
	Description string      `json:"description"`
	CategoryID  *uint       `json:"category_id"`
	Keywords    StringSlice `gorm:"type:json" json:"keywords"`
	Priority    int         `gorm:"default:0;index" json:"priority"` // higher = preferred

	// Inclusive availability window; a nil bound is open on that side.
	UseAfterDate  *time.Time `json:"use_after_date"`
	UseBeforeDate *time.Time `json:"use_before_date"`

	Status    DynamicTopicStatus `gorm:"default:'pending';index" json:"status"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// AvailableOn reports whether the topic's window contains the given day.
// Bounds are compared at date granularity, inclusive on both sides.
func (t *DynamicTopic) AvailableOn(day time.Time) bool {
	d := day.Truncate(24 * time.Hour)
	if t.UseAfterDate != nil && d.Before(t.UseAfterDate.Truncate(24*time.Hour)) {
		return false
	}
	if t.UseBeforeDate != nil && d.After(t.UseBeforeDate.Truncate(24*time.Hour)) {
		return false
	}
	return true
}

// Expired reports whether the topic's use-before bound has elapsed.
func (t *DynamicTopic) Expired(day time.Time) bool {
	return t.UseBeforeDate != nil &&
		day.Truncate(24*time.Hour).After(t.UseBeforeDate.Truncate(24*time.Hour))
}

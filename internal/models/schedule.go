package models

import (
	"fmt"
	"time"
)

// Frequency controls how often a schedule fires
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// ArticleLength maps to a target word-count range passed to the generator
type ArticleLength string

const (
	ArticleLengthShort  ArticleLength = "short"  // ~400-600 words
	ArticleLengthMedium ArticleLength = "medium" // ~800-1200 words
	ArticleLengthLong   ArticleLength = "long"   // ~1500-2000 words
)

// Visibility of a generated post
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
)

// Schedule is a recurring content-generation configuration.
// Weekday indices run 0=Monday..6=Sunday.
type Schedule struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
	IsPaused bool   `gorm:"default:false" json:"is_paused"`

	Frequency   Frequency `gorm:"not null" json:"frequency"`
	DaysOfWeek  IntSlice  `gorm:"type:json" json:"days_of_week"`
	PublishTime string    `gorm:"not null" json:"publish_time"` // "HH:MM"

	Language          string        `gorm:"default:'en'" json:"language"`
	Tone              string        `gorm:"default:'informative'" json:"tone"`
	ArticleLength     ArticleLength `gorm:"default:'medium'" json:"article_length"`
	AutoPublish       bool          `gorm:"default:false" json:"auto_publish"`
	DefaultCategoryID *uint         `json:"default_category_id"`
	DefaultVisibility Visibility    `gorm:"default:'public'" json:"default_visibility"`

	// Mutated only by the execution engine.
	LastRunAt *time.Time `json:"last_run_at"`
	NextRunAt *time.Time `gorm:"index" json:"next_run_at"`

	FixedTopics   []FixedTopic   `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"fixed_topics,omitempty"`
	DynamicTopics []DynamicTopic `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"dynamic_topics,omitempty"`
	Logs          []ExecutionLog `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// WordCountRange returns the target word-count bounds for the configured length.
func (s *Schedule) WordCountRange() (int, int) {
	switch s.ArticleLength {
	case ArticleLengthShort:
		return 400, 600
	case ArticleLengthLong:
		return 1500, 2000
	default:
		return 800, 1200
	}
}

// PublishClock parses PublishTime into hour and minute.
func (s *Schedule) PublishClock() (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s.PublishTime, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid publish time %q: %w", s.PublishTime, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid publish time %q", s.PublishTime)
	}
	return hour, minute, nil
}

// Validate checks recurrence parameters. Invalid configurations are rejected
// at write time and never reach the engine.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	switch s.Frequency {
	case FrequencyDaily, FrequencyMonthly:
	case FrequencyWeekly, FrequencyBiweekly:
		if len(s.DaysOfWeek) == 0 {
			return fmt.Errorf("%s schedule requires at least one day of week", s.Frequency)
		}
		for _, d := range s.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("day of week %d out of range 0-6", d)
			}
		}
	default:
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	if _, _, err := s.PublishClock(); err != nil {
		return err
	}
	switch s.ArticleLength {
	case ArticleLengthShort, ArticleLengthMedium, ArticleLengthLong:
	default:
		return fmt.Errorf("unknown article length %q", s.ArticleLength)
	}
	return nil
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ImageRef points at an externally hosted illustrative image.
type ImageRef struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Thumbnail   string `json:"thumbnail"`
	Attribution string `json:"attribution"`
	Source      string `json:"source"`
}

// ImageRefs stores a list of image references as JSON
type ImageRefs []ImageRef

func (r ImageRefs) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *ImageRefs) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	return scanJSON(value, r)
}

// PostStatus represents the publication state of a generated article
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
)

// Post is an article produced by a scheduler run.
type Post struct {
	ID         uint  `gorm:"primaryKey" json:"id"`
	ScheduleID *uint `gorm:"index" json:"schedule_id"`

	Title   string      `gorm:"not null" json:"title"`
	Body    string      `gorm:"type:text;not null" json:"body"`
	Excerpt string      `gorm:"type:text" json:"excerpt"`
	Tags    StringSlice `gorm:"type:json" json:"tags"`

	CategoryID *uint      `json:"category_id"`
	Visibility Visibility `gorm:"default:'public'" json:"visibility"`
	Language   string     `json:"language"`

	// Illustrative images attached to the article.
	Images ImageRefs `gorm:"type:json" json:"images"`

	Status      PostStatus `gorm:"default:'draft'" json:"status"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import (
	"time"
)

// ExecutionStatus represents the state of one scheduler run attempt
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// TriggerKind distinguishes timer-driven runs from operator-issued ones
type TriggerKind string

const (
	TriggerAutomatic TriggerKind = "automatic"
	TriggerManual    TriggerKind = "manual"
)

// TopicType tags which tier of the selector produced the run's topic
type TopicType string

const (
	TopicTypeFixed   TopicType = "fixed"
	TopicTypeDynamic TopicType = "dynamic"
)

// ExecutionLog records one run attempt for a schedule. Rows are append-only
// and immutable once terminal (success/failed/skipped). TopicUsed is a
// snapshot of the topic text at run time, not a live reference; topics may
// later be edited or deleted.
type ExecutionLog struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ScheduleID uint            `gorm:"index;not null" json:"schedule_id"`
	Status     ExecutionStatus `gorm:"not null;index" json:"status"`
	Trigger    TriggerKind     `gorm:"not null" json:"trigger"`

	TopicType         TopicType `json:"topic_type,omitempty"`
	TopicUsed         string    `json:"topic_used,omitempty"`
	SubtopicGenerated string    `json:"subtopic_generated,omitempty"`

	// Set while the run holds a claim on a dynamic topic, so crash recovery
	// can release it. TopicUsed stays a text snapshot regardless.
	DynamicTopicID *uint `json:"dynamic_topic_id,omitempty"`

	PostID    *uint  `json:"post_id"`
	PostTitle string `json:"post_title,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	ExecutionMs  int64  `json:"execution_ms"`

	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Terminal reports whether the log has reached a final state.
func (l *ExecutionLog) Terminal() bool {
	switch l.Status {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusSkipped:
		return true
	}
	return false
}

// ScheduleStats is a query-time aggregation over a schedule's execution logs.
// Derived on read, never stored, so it cannot drift from the log history.
type ScheduleStats struct {
	TotalRuns   int64      `json:"total_runs"`
	Succeeded   int64      `json:"succeeded"`
	Failed      int64      `json:"failed"`
	Skipped     int64      `json:"skipped"`
	SuccessRate float64    `json:"success_rate"`
	LastRunAt   *time.Time `json:"last_run_at"`
}

package models

import "time"

// Sync run statuses. A run that logged per-job or per-batch errors is still
// completed; failed means the job list could not be fetched at all.
const (
	SyncInProgress = "in_progress"
	SyncCompleted  = "completed"
	SyncFailed     = "failed"
)

// SyncLog records one sync run.
type SyncLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	RunID         string    `gorm:"size:36;uniqueIndex"`
	Mode          string    `gorm:"size:16"`
	StartedAt     time.Time `gorm:"index"`
	CompletedAt   *time.Time
	JobsProcessed int
	JobsSkipped   int
	JobsFailed    int
	FlagsCreated  int
	Errors        string `gorm:"type:text"`
	Status        string `gorm:"size:16;default:in_progress"`
}

// TableName overrides the default table name.
func (SyncLog) TableName() string { return "sync_log" }

// NotificationLog records a dispatch attempt for one job, notification type
// and channel. The triple is unique.
type NotificationLog struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	JobUID           string `gorm:"size:64;not null;uniqueIndex:idx_notification_unique,priority:1"`
	NotificationType string `gorm:"size:64;not null;uniqueIndex:idx_notification_unique,priority:2"`
	Channel          string `gorm:"size:32;not null;uniqueIndex:idx_notification_unique,priority:3"`
	Success          bool
	Error            string    `gorm:"type:text"`
	SentAt           time.Time `gorm:"index"`
}

// TableName overrides the default table name.
func (NotificationLog) TableName() string { return "notification_log" }

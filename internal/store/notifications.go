package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/zulandar/jobvalidator/internal/models"
)

// NotificationSent reports whether a dispatch was already recorded for the
// job, notification type and channel, regardless of its outcome.
func (s *Store) NotificationSent(ctx context.Context, jobUID, notificationType, channel string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.NotificationLog{}).
		Where("job_uid = ? AND notification_type = ? AND channel = ?", jobUID, notificationType, channel).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("store: notification lookup %s: %w", jobUID, err)
	}
	return n > 0, nil
}

// RecordNotification stores a dispatch attempt. A second record for the same
// triple overwrites the outcome of the first.
func (s *Store) RecordNotification(ctx context.Context, entry models.NotificationLog) error {
	if entry.SentAt.IsZero() {
		entry.SentAt = s.now().UTC()
	}
	entry.ID = 0
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_uid"}, {Name: "notification_type"}, {Name: "channel"}},
		DoUpdates: clause.AssignmentColumns([]string{"success", "error", "sent_at"}),
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("store: record notification %s: %w", entry.JobUID, err)
	}
	return nil
}

// NotificationStats summarises the notification log.
type NotificationStats struct {
	Total      int64
	Successful int64
	Failed     int64
	Recent     int64
}

// NotificationStats counts all dispatches and those sent since the given time.
func (s *Store) NotificationStats(ctx context.Context, since time.Time) (NotificationStats, error) {
	var st NotificationStats
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.NotificationLog{}).Count(&st.Total).Error; err != nil {
		return st, fmt.Errorf("store: notification stats: %w", err)
	}
	if err := db.Model(&models.NotificationLog{}).Where("success = ?", true).Count(&st.Successful).Error; err != nil {
		return st, fmt.Errorf("store: notification stats: %w", err)
	}
	st.Failed = st.Total - st.Successful
	if err := db.Model(&models.NotificationLog{}).Where("sent_at >= ?", since.UTC()).Count(&st.Recent).Error; err != nil {
		return st, fmt.Errorf("store: notification stats: %w", err)
	}
	return st, nil
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/jobvalidator/internal/models"
)

func TestNotificationLog(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	sent, err := s.NotificationSent(ctx, "job-1", models.FlagMissingNetsuiteID, "slack")
	if err != nil || sent {
		t.Fatalf("NotificationSent before record = %v, %v", sent, err)
	}

	if err := s.RecordNotification(ctx, models.NotificationLog{
		JobUID: "job-1", NotificationType: models.FlagMissingNetsuiteID, Channel: "slack",
		Success: false, Error: "status 500",
	}); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}
	sent, _ = s.NotificationSent(ctx, "job-1", models.FlagMissingNetsuiteID, "slack")
	if !sent {
		t.Error("failed dispatch should still count as sent")
	}
	if sent, _ := s.NotificationSent(ctx, "job-1", models.FlagMissingNetsuiteID, "discord"); sent {
		t.Error("other channel reported as sent")
	}

	if err := s.RecordNotification(ctx, models.NotificationLog{
		JobUID: "job-1", NotificationType: models.FlagMissingNetsuiteID, Channel: "slack", Success: true,
	}); err != nil {
		t.Fatalf("RecordNotification again: %v", err)
	}
	var rows []models.NotificationLog
	s.DB().Find(&rows)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if !rows[0].Success || rows[0].Error != "" {
		t.Errorf("row = %+v, want overwritten success", rows[0])
	}
}

func TestNotificationStats(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	old := syncTime.Add(-72 * time.Hour)
	for _, n := range []models.NotificationLog{
		{JobUID: "a", NotificationType: "t", Channel: "slack", Success: true, SentAt: old},
		{JobUID: "b", NotificationType: "t", Channel: "slack", Success: false, Error: "x", SentAt: syncTime},
		{JobUID: "c", NotificationType: "t", Channel: "slack", Success: true, SentAt: syncTime},
	} {
		if err := s.RecordNotification(ctx, n); err != nil {
			t.Fatalf("RecordNotification: %v", err)
		}
	}
	st, err := s.NotificationStats(ctx, syncTime.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("NotificationStats: %v", err)
	}
	want := NotificationStats{Total: 3, Successful: 2, Failed: 1, Recent: 2}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
}

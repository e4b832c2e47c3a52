// Package notify announces newly flagged jobs on a chat webhook, at most once
// per job, notification type and channel unless forced.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zulandar/jobvalidator/internal/logging"
	"github.com/zulandar/jobvalidator/internal/metrics"
	"github.com/zulandar/jobvalidator/internal/models"
)

// JobURL is the Zuper web page for a job.
const JobURL = "https://web.zuperpro.com/jobs/%s/details"

// Channel names recorded in the notification log.
const (
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
	ChannelWebhook = "webhook"
)

// Alert describes one flagged job to announce.
type Alert struct {
	Type         string
	JobUID       string
	JobNumber    string
	JobTitle     string
	Organization string
	Asset        string
	ServiceTeam  string
	CompletedAt  string
	LineItems    []string
}

// MissingNetsuiteAlert builds the alert for a job whose billable line items
// lack a sales order id.
func MissingNetsuiteAlert(job models.Job, lineItems []string) Alert {
	a := Alert{
		Type:         models.FlagMissingNetsuiteID,
		JobUID:       job.JobUID,
		JobNumber:    job.JobNumber,
		JobTitle:     job.Title,
		Organization: job.OrganizationName,
		Asset:        job.AssetName,
		LineItems:    lineItems,
	}
	if job.ServiceTeam != nil {
		a.ServiceTeam = *job.ServiceTeam
	}
	if job.CompletedAt != nil {
		a.CompletedAt = *job.CompletedAt
	}
	return a
}

// URL returns the job's Zuper page.
func (a Alert) URL() string { return fmt.Sprintf(JobURL, a.JobUID) }

// CompletedDisplay renders the completion time for humans, or "Unknown".
func (a Alert) CompletedDisplay() string {
	if a.CompletedAt == "" {
		return "Unknown"
	}
	t, err := time.Parse(time.RFC3339, a.CompletedAt)
	if err != nil {
		return a.CompletedAt
	}
	return t.Format("Jan 02, 2006 at 03:04 PM")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// Sender delivers an alert to one chat destination.
type Sender interface {
	Channel() string
	Send(ctx context.Context, a Alert) error
}

// Log is the notification log the Notifier consults and appends to.
type Log interface {
	NotificationSent(ctx context.Context, jobUID, notificationType, channel string) (bool, error)
	RecordNotification(ctx context.Context, entry models.NotificationLog) error
}

// Outcome is what NotifyIfNew did.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
)

// Notifier couples a Sender with the notification log.
type Notifier struct {
	log    Log
	sender Sender
	logger logrus.FieldLogger
	now    func() time.Time
}

// New returns a Notifier. A nil logger discards output.
func New(log Log, sender Sender, logger logrus.FieldLogger) *Notifier {
	return &Notifier{
		log:    log,
		sender: sender,
		logger: logging.OrDiscard(logger).WithField("module", "notify"),
		now:    time.Now,
	}
}

// Channel is the sender's channel name.
func (n *Notifier) Channel() string { return n.sender.Channel() }

// AlreadySent reports whether a dispatch for the job and type is on record.
func (n *Notifier) AlreadySent(ctx context.Context, jobUID, notificationType string) (bool, error) {
	return n.log.NotificationSent(ctx, jobUID, notificationType, n.sender.Channel())
}

// Record stores a dispatch attempt. sendErr nil means it succeeded.
func (n *Notifier) Record(ctx context.Context, jobUID, notificationType string, sendErr error) error {
	entry := models.NotificationLog{
		JobUID:           jobUID,
		NotificationType: notificationType,
		Channel:          n.sender.Channel(),
		Success:          sendErr == nil,
		SentAt:           n.now().UTC(),
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	return n.log.RecordNotification(ctx, entry)
}

// NotifyIfNew sends a unless it was already dispatched, or always when force
// is set. The attempt is recorded whatever the outcome, so a failed send is
// not retried without force. The returned error carries a send or log
// failure.
func (n *Notifier) NotifyIfNew(ctx context.Context, a Alert, force bool) (Outcome, error) {
	if a.Type == "" {
		a.Type = models.FlagMissingNetsuiteID
	}
	channel := n.sender.Channel()
	log := n.logger.WithFields(logrus.Fields{"job_uid": a.JobUID, "type": a.Type, "channel": channel})

	if !force {
		sent, err := n.AlreadySent(ctx, a.JobUID, a.Type)
		if err != nil {
			return OutcomeSkipped, fmt.Errorf("notify: check log: %w", err)
		}
		if sent {
			metrics.Notifications.WithLabelValues(channel, string(OutcomeSkipped)).Inc()
			return OutcomeSkipped, nil
		}
	}

	sendErr := n.sender.Send(ctx, a)
	outcome := OutcomeSent
	if sendErr != nil {
		outcome = OutcomeFailed
		log.WithError(sendErr).Warn("notification failed")
	} else {
		log.WithField("job_number", a.JobNumber).Info("notification sent")
	}
	metrics.Notifications.WithLabelValues(channel, string(outcome)).Inc()

	if err := n.Record(ctx, a.JobUID, a.Type, sendErr); err != nil {
		return outcome, fmt.Errorf("notify: record: %w", err)
	}
	if sendErr != nil {
		return outcome, fmt.Errorf("notify: send %s: %w", channel, sendErr)
	}
	return outcome, nil
}

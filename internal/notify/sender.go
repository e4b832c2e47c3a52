package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zulandar/jobvalidator/internal/config"
)

// DetectChannel picks a channel from the webhook host.
func DetectChannel(webhookURL string) string {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return ChannelWebhook
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "hooks.slack.com":
		return ChannelSlack
	case (host == "discord.com" || host == "discordapp.com" || strings.HasSuffix(host, ".discord.com")) &&
		strings.Contains(u.Path, "/webhooks/"):
		return ChannelDiscord
	default:
		return ChannelWebhook
	}
}

// NewSender builds the Sender for cfg. It returns nil when no webhook URL is
// configured.
func NewSender(cfg config.NotifyConfig) (Sender, error) {
	if cfg.WebhookURL == "" {
		return nil, nil
	}
	client := &http.Client{Timeout: cfg.Timeout}
	channel := cfg.Channel
	if channel == "" || channel == "auto" {
		channel = DetectChannel(cfg.WebhookURL)
	}
	switch channel {
	case ChannelSlack:
		return NewSlack(cfg.WebhookURL, client), nil
	case ChannelDiscord:
		return NewDiscord(cfg.WebhookURL, client)
	case ChannelWebhook:
		return NewWebhook(cfg.WebhookURL, client), nil
	default:
		return nil, fmt.Errorf("notify: unknown channel %q", channel)
	}
}

// FromConfig wires a Notifier for cfg over log. It returns nil, nil when
// notifications are disabled.
func FromConfig(cfg config.NotifyConfig, log Log, logger logrus.FieldLogger) (*Notifier, error) {
	sender, err := NewSender(cfg)
	if err != nil || sender == nil {
		return nil, err
	}
	return New(log, sender, logger), nil
}

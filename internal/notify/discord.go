package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// discordOrange is the embed colour for billing alerts.
const discordOrange = 0xE67E22

// webhookExecutor is the discordgo.Session method the Discord sender uses.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts embeds to a Discord channel webhook.
type Discord struct {
	id, token string
	exec      webhookExecutor
}

// NewDiscord parses a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func NewDiscord(webhookURL string, client *http.Client) (*Discord, error) {
	id, token, err := parseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	sess, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord: session: %w", err)
	}
	if client != nil {
		sess.Client = client
	}
	return &Discord{id: id, token: token, exec: sess}, nil
}

func parseDiscordWebhook(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("discord: parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("discord: webhook url %q has no id/token", u.Redacted())
}

func (d *Discord) Channel() string { return ChannelDiscord }

func (d *Discord) Send(ctx context.Context, a Alert) error {
	if _, err := d.exec.WebhookExecute(d.id, d.token, false, DiscordParams(a), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// DiscordParams renders a as a Discord webhook embed.
func DiscordParams(a Alert) *discordgo.WebhookParams {
	items := "None"
	if len(a.LineItems) > 0 {
		items = strings.Join(a.LineItems[:min(len(a.LineItems), maxListedItems)], "\n")
		if extra := len(a.LineItems) - maxListedItems; extra > 0 {
			items += fmt.Sprintf("\n... and %d more", extra)
		}
	}
	return &discordgo.WebhookParams{
		Content: fmt.Sprintf("Job %s needs a NetSuite Sales Order ID", orNA(a.JobNumber)),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Job " + orNA(a.JobNumber),
			URL:         a.URL(),
			Description: orNA(a.JobTitle),
			Color:       discordOrange,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Organization", Value: orNA(a.Organization), Inline: true},
				{Name: "Asset", Value: orNA(a.Asset), Inline: true},
				{Name: "Service Team", Value: orNA(a.ServiceTeam), Inline: true},
				{Name: "Completed", Value: a.CompletedDisplay()},
				{Name: fmt.Sprintf("Line Items Needing SO ID (%d)", len(a.LineItems)), Value: items},
			},
		}},
	}
}

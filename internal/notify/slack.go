package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

// slackListedItems caps line items shown in the Block Kit message.
const slackListedItems = 5

// Slack posts Block Kit messages to a Slack incoming webhook.
type Slack struct {
	url    string
	client *http.Client
}

// NewSlack returns a Slack incoming-webhook sender.
func NewSlack(url string, client *http.Client) *Slack {
	if client == nil {
		client = http.DefaultClient
	}
	return &Slack{url: url, client: client}
}

func (s *Slack) Channel() string { return ChannelSlack }

func (s *Slack) Send(ctx context.Context, a Alert) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.url, s.client, SlackMessage(a)); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

// SlackMessage renders a as a Block Kit webhook message.
func SlackMessage(a Alert) *slack.WebhookMessage {
	md := func(s string) *slack.TextBlockObject {
		return slack.NewTextBlockObject(slack.MarkdownType, s, false, false)
	}
	plain := func(s string) *slack.TextBlockObject {
		return slack.NewTextBlockObject(slack.PlainTextType, s, true, false)
	}

	var items strings.Builder
	for i, name := range a.LineItems {
		if i == slackListedItems {
			fmt.Fprintf(&items, "• ... and %d more", len(a.LineItems)-slackListedItems)
			break
		}
		fmt.Fprintf(&items, "• %s\n", name)
	}

	button := slack.NewButtonBlockElement("open_job", a.JobUID, plain("Open in Zuper"))
	button.URL = a.URL()

	blocks := []slack.Block{
		slack.NewHeaderBlock(plain("Job Needs NetSuite Sales Order ID")),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			md(fmt.Sprintf("*Job Number:*\n<%s|%s>", a.URL(), orNA(a.JobNumber))),
			md("*Organization:*\n" + orNA(a.Organization)),
			md("*Asset:*\n" + orNA(a.Asset)),
			md("*Service Team:*\n" + orNA(a.ServiceTeam)),
		}, nil),
		slack.NewSectionBlock(md("*Job Title:*\n"+orNA(a.JobTitle)), nil, nil),
		slack.NewSectionBlock(md("*Completed:* "+a.CompletedDisplay()), nil, nil),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(md(fmt.Sprintf("*Line Items Needing SO ID (%d):*\n%s",
			len(a.LineItems), strings.TrimRight(items.String(), "\n"))), nil, nil),
		slack.NewActionBlock("job_actions", button),
	}
	return &slack.WebhookMessage{
		Text:   fmt.Sprintf("Job %s needs a NetSuite Sales Order ID", orNA(a.JobNumber)),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

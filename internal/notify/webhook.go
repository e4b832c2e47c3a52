package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxListedItems caps line item names joined into the flat payload.
const maxListedItems = 10

// Payload is the flat JSON body posted to generic webhooks such as Zapier.
type Payload struct {
	EventType      string `json:"event_type"`
	JobNumber      string `json:"job_number"`
	JobTitle       string `json:"job_title"`
	Organization   string `json:"organization"`
	Asset          string `json:"asset"`
	ServiceTeam    string `json:"service_team"`
	CompletedAt    string `json:"completed_at"`
	LineItems      string `json:"line_items"`
	LineItemsCount int    `json:"line_items_count"`
	ZuperURL       string `json:"zuper_url"`
	JobUID         string `json:"job_uid"`
	Timestamp      string `json:"timestamp"`
}

// NewPayload flattens a for a generic webhook.
func NewPayload(a Alert, now time.Time) Payload {
	items := "None"
	if len(a.LineItems) > 0 {
		items = strings.Join(a.LineItems[:min(len(a.LineItems), maxListedItems)], ", ")
	}
	return Payload{
		EventType:      "job_" + a.Type,
		JobNumber:      orNA(a.JobNumber),
		JobTitle:       orNA(a.JobTitle),
		Organization:   orNA(a.Organization),
		Asset:          orNA(a.Asset),
		ServiceTeam:    orNA(a.ServiceTeam),
		CompletedAt:    a.CompletedDisplay(),
		LineItems:      items,
		LineItemsCount: len(a.LineItems),
		ZuperURL:       a.URL(),
		JobUID:         a.JobUID,
		Timestamp:      now.UTC().Format(time.RFC3339),
	}
}

// Webhook posts Payload JSON to an arbitrary URL. Any 2xx is success.
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhook returns a generic webhook sender.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{url: url, client: client, now: time.Now}
}

func (w *Webhook) Channel() string { return ChannelWebhook }

func (w *Webhook) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(NewPayload(a, w.now()))
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

package alerter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/itskum47/defcon/controller/store"
)

// Slack posts a colored attachment to an incoming-webhook URL.
type Slack struct {
	client *http.Client
}

func NewSlack() *Slack {
	return &Slack{client: &http.Client{}}
}

func (s *Slack) Send(ctx context.Context, target *store.Alerter, n Notification) error {
	if target.URL == nil || *target.URL == "" {
		return fmt.Errorf("alerter %s has no url", target.UUID)
	}

	color := "danger"
	title := fmt.Sprintf("%s is down", n.Check.Name)
	if n.Resolved {
		color = "good"
		title = fmt.Sprintf("%s recovered", n.Check.Name)
	}

	text := ""
	if n.LastEvent != nil {
		text = fmt.Sprintf("%s: %s", n.LastEvent.Status, n.LastEvent.Message)
	}

	msg := &slack.WebhookMessage{
		Attachments: []slack.Attachment{{
			Color: color,
			Title: title,
			Text:  text,
			Fields: []slack.AttachmentField{
				{Title: "Check", Value: n.Check.UUID, Short: true},
				{Title: "Outage", Value: n.Outage.UUID, Short: true},
			},
		}},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, *target.URL, s.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

package alerter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/itskum47/defcon/controller/store"
)

const pagerdutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// Pagerduty talks to the Events API v2. The alerter's password field holds
// the integration routing key. Trigger and resolve share
// dedup_key = outage uuid, so one outage maps to at most one incident.
type Pagerduty struct {
	client   *http.Client
	endpoint string
}

func NewPagerduty() *Pagerduty {
	return &Pagerduty{client: &http.Client{}, endpoint: pagerdutyEventsURL}
}

type pagerdutyEvent struct {
	RoutingKey  string            `json:"routing_key"`
	EventAction string            `json:"event_action"`
	DedupKey    string            `json:"dedup_key"`
	Payload     *pagerdutyPayload `json:"payload,omitempty"`
}

type pagerdutyPayload struct {
	Summary   string `json:"summary"`
	Source    string `json:"source"`
	Severity  string `json:"severity"`
	Timestamp string `json:"timestamp"`
}

func (p *Pagerduty) Send(ctx context.Context, target *store.Alerter, n Notification) error {
	if target.Password == nil || *target.Password == "" {
		return fmt.Errorf("alerter %s has no routing key", target.UUID)
	}

	event := pagerdutyEvent{
		RoutingKey:  *target.Password,
		EventAction: "trigger",
		DedupKey:    n.Outage.UUID,
	}
	if n.Resolved {
		event.EventAction = "resolve"
	} else {
		source := "defcon"
		if n.LastEvent != nil {
			source = n.LastEvent.Site
		}
		event.Payload = &pagerdutyPayload{
			Summary:   fmt.Sprintf("%s is down", n.Check.Name),
			Source:    source,
			Severity:  "critical",
			Timestamp: n.Outage.StartedOn.UTC().Format(time.RFC3339),
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode pagerduty event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post pagerduty event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("pagerduty returned status %d", resp.StatusCode)
	}
	return nil
}

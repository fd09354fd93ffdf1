package alerter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/itskum47/defcon/controller/store"
)

// Webhook posts a JSON envelope to an arbitrary HTTP endpoint, with
// optional basic auth.
type Webhook struct {
	client *http.Client
}

func NewWebhook() *Webhook {
	return &Webhook{client: &http.Client{}}
}

type webhookEnvelope struct {
	Level  string          `json:"level"`
	Check  *store.Check    `json:"check"`
	Spec   json.RawMessage `json:"spec"`
	Outage *store.Outage   `json:"outage"`
}

func (w *Webhook) Send(ctx context.Context, target *store.Alerter, n Notification) error {
	if target.URL == nil || *target.URL == "" {
		return fmt.Errorf("alerter %s has no url", target.UUID)
	}

	body, err := json.Marshal(webhookEnvelope{
		Level:  n.Level(),
		Check:  n.Check,
		Spec:   n.Check.Spec,
		Outage: n.Outage,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *target.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if target.Username != nil && target.Password != nil {
		req.SetBasicAuth(*target.Username, *target.Password)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

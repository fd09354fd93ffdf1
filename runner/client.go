package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/itskum47/defcon/controller/auth"
	"github.com/itskum47/defcon/probe"
)

// Check is the trimmed check description the controller hands to runners.
type Check struct {
	ID       int64           `json:"id"`
	UUID     string          `json:"uuid"`
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Interval string          `json:"interval"`
	Spec     json.RawMessage `json:"spec"`
}

// Client talks to the controller's runner API. Every request carries a
// freshly minted short-lived ES256 token.
type Client struct {
	base string
	site string
	key  *ecdsa.PrivateKey
	http *http.Client
}

func NewClient(base, site string, key *ecdsa.PrivateKey) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		site: site,
		key:  key,
		http: &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return nil, err
	}

	token, err := auth.SignRunnerToken(c.key, c.site)
	if err != nil {
		return nil, fmt.Errorf("sign runner token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// Checks fetches the checks that are stale for this runner's site.
func (c *Client) Checks(ctx context.Context) ([]Check, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/runner/checks", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list checks: status %d", resp.StatusCode)
	}

	var checks []Check
	if err := json.NewDecoder(resp.Body).Decode(&checks); err != nil {
		return nil, fmt.Errorf("decode checks: %w", err)
	}
	return checks, nil
}

type report struct {
	Check   string `json:"check"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Report delivers one probe result.
func (c *Client) Report(ctx context.Context, checkUUID string, result probe.Result) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/runner/report", report{
		Check:   checkUUID,
		Status:  int(result.Status),
		Message: result.Message,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("report: status %d", resp.StatusCode)
	}
	return nil
}

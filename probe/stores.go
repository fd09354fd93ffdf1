package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// AppStoreSpec drives the app_store prober, which confirms an app is still
// listed via the iTunes lookup API.
type AppStoreSpec struct {
	BundleID string   `json:"bundle_id"`
	Country  string   `json:"country,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
}

type AppStore struct {
	client  *http.Client
	baseURL string
}

func NewAppStore() *AppStore {
	return &AppStore{
		client:  &http.Client{},
		baseURL: "https://itunes.apple.com/lookup",
	}
}

func (p *AppStore) Probe(ctx context.Context, target Target) (Result, error) {
	var spec AppStoreSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("app_store spec: %v", err)
	}
	if spec.BundleID == "" {
		return Result{}, configErrorf("app_store spec: bundle_id is required")
	}

	q := url.Values{"bundleId": {spec.BundleID}}
	if spec.Country != "" {
		q.Set("country", spec.Country)
	}

	ctx, cancel := context.WithTimeout(ctx, spec.Timeout.orDefault())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, configErrorf("app_store spec: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("lookup failed: %v", err)}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Status: Critical, Message: fmt.Sprintf("lookup returned status %d", resp.StatusCode)}, nil
	}

	var payload struct {
		ResultCount int `json:"resultCount"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("decode lookup: %v", err)}, nil
	}
	if payload.ResultCount < 1 {
		return Result{Status: Critical, Message: fmt.Sprintf("%s is not listed", spec.BundleID)}, nil
	}
	return Result{Status: OK, Message: fmt.Sprintf("%s is listed", spec.BundleID)}, nil
}

// PlayStoreSpec drives the play_store prober, which confirms the Play
// Store details page for an app still resolves.
type PlayStoreSpec struct {
	AppID   string   `json:"app_id"`
	Timeout Duration `json:"timeout,omitempty"`
}

type PlayStore struct {
	client  *http.Client
	baseURL string
}

func NewPlayStore() *PlayStore {
	return &PlayStore{
		client:  &http.Client{},
		baseURL: "https://play.google.com/store/apps/details",
	}
}

func (p *PlayStore) Probe(ctx context.Context, target Target) (Result, error) {
	var spec PlayStoreSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("play_store spec: %v", err)
	}
	if spec.AppID == "" {
		return Result{}, configErrorf("play_store spec: app_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, spec.Timeout.orDefault())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?id="+url.QueryEscape(spec.AppID), nil)
	if err != nil {
		return Result{}, configErrorf("play_store spec: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("lookup failed: %v", err)}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Status: OK, Message: fmt.Sprintf("%s is listed", spec.AppID)}, nil
	case http.StatusNotFound:
		return Result{Status: Critical, Message: fmt.Sprintf("%s is not listed", spec.AppID)}, nil
	default:
		return Result{Status: Critical, Message: fmt.Sprintf("lookup returned status %d", resp.StatusCode)}, nil
	}
}

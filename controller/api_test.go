package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/itskum47/defcon/controller/auth"
	"github.com/itskum47/defcon/controller/engine"
	"github.com/itskum47/defcon/controller/store"
)

type apiFixture struct {
	st        *store.Memory
	app       *App
	server    *httptest.Server
	runnerKey *ecdsa.PrivateKey
	tokens    *auth.UserTokens
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := store.NewMemory()

	runnerKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tokens, err := auth.NewUserTokens("test-signing-key")
	require.NoError(t, err)

	cfg := &Config{APIListen: "127.0.0.1:0"}
	log := zerolog.Nop()
	eng := engine.New(st, log)
	app := NewApp(cfg, st, log, eng, tokens, &runnerKey.PublicKey, NewStream(log), NewStatusCache("", log))
	server := httptest.NewServer(app.Router())
	t.Cleanup(server.Close)

	return &apiFixture{st: st, app: app, server: server, runnerKey: runnerKey, tokens: tokens}
}

func (f *apiFixture) seedUser(t *testing.T, email, password string) *store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &store.User{Email: email, PasswordHash: string(hash)}
	require.NoError(t, f.st.CreateUser(context.Background(), user))
	return user
}

func (f *apiFixture) seedCheck(t *testing.T, name string, sites ...string) *store.Check {
	t.Helper()
	check := &store.Check{
		Name:     name,
		Kind:     store.KindHTTP,
		Enabled:  true,
		Interval: store.Duration(time.Minute),
		Sites:    sites,
		Spec:     []byte(`{"url":"http://example.test"}`),
	}
	require.NoError(t, f.st.CreateCheck(context.Background(), check))
	return check
}

func (f *apiFixture) request(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTokenEndpointIssuesWorkingTokens(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "ops@example.com", "correct horse")

	resp := f.request(t, http.MethodPost, "/api/-/token", "", map[string]string{
		"email": "ops@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair auth.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))

	me := f.request(t, http.MethodGet, "/api/-/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, me.StatusCode)

	wrong := f.request(t, http.MethodPost, "/api/-/token", "", map[string]string{
		"email": "ops@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/api/checks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	health := f.request(t, http.MethodGet, "/api/-/health", "", nil)
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func userToken(t *testing.T, f *apiFixture) string {
	t.Helper()
	user := f.seedUser(t, "admin@example.com", "password-123")
	pair, err := f.tokens.Issue(user.UUID)
	require.NoError(t, err)
	return pair.AccessToken
}

func TestCheckCRUDLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	bearer := userToken(t, f)

	created := f.request(t, http.MethodPost, "/api/checks", bearer, map[string]any{
		"name":     "homepage",
		"kind":     "http",
		"interval": "1m",
		"spec":     map[string]string{"url": "https://example.com"},
	})
	require.Equal(t, http.StatusCreated, created.StatusCode)

	var check store.Check
	require.NoError(t, json.NewDecoder(created.Body).Decode(&check))
	assert.Equal(t, []string{store.ControllerSite}, check.Sites)

	patched := f.request(t, http.MethodPatch, "/api/checks/"+check.UUID, bearer, map[string]any{
		"name": "homepage-v2",
	})
	require.Equal(t, http.StatusOK, patched.StatusCode)
	var after store.Check
	require.NoError(t, json.NewDecoder(patched.Body).Decode(&after))
	assert.Equal(t, "homepage-v2", after.Name)
	assert.Equal(t, store.KindHTTP, after.Kind)

	kindChange := f.request(t, http.MethodPatch, "/api/checks/"+check.UUID, bearer, map[string]any{
		"kind": "tcp",
	})
	assert.Equal(t, http.StatusBadRequest, kindChange.StatusCode)

	// DELETE without the flag only disables.
	disabled := f.request(t, http.MethodDelete, "/api/checks/"+check.UUID, bearer, nil)
	require.Equal(t, http.StatusNoContent, disabled.StatusCode)
	still, err := f.st.GetCheck(context.Background(), check.UUID)
	require.NoError(t, err)
	assert.False(t, still.Enabled)

	gone := f.request(t, http.MethodDelete, "/api/checks/"+check.UUID+"?delete=true", bearer, nil)
	require.Equal(t, http.StatusNoContent, gone.StatusCode)
	_, err = f.st.GetCheck(context.Background(), check.UUID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckValidationRejectsBadShapes(t *testing.T) {
	f := newAPIFixture(t)
	bearer := userToken(t, f)

	resp := f.request(t, http.MethodPost, "/api/checks", bearer, map[string]any{
		"name":     "bad",
		"kind":     "carrier-pigeon",
		"interval": "1m",
		"spec":     map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodPost, "/api/checks", bearer, map[string]any{
		"name":           "quorum",
		"kind":           "http",
		"interval":       "1m",
		"sites":          []string{"eu-1"},
		"site_threshold": 3,
		"spec":           map[string]string{"url": "https://example.com"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckThresholdValidatedOnPartialUpdates(t *testing.T) {
	f := newAPIFixture(t)
	bearer := userToken(t, f)
	check := f.seedCheck(t, "multi-site", "eu-1", "us-1", "ap-1")

	// A threshold-only patch is measured against the sites already bound.
	resp := f.request(t, http.MethodPatch, "/api/checks/"+check.UUID, bearer, map[string]any{
		"site_threshold": 5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodPatch, "/api/checks/"+check.UUID, bearer, map[string]any{
		"site_threshold": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Shrinking the site set below the stored threshold is rejected too.
	resp = f.request(t, http.MethodPatch, "/api/checks/"+check.UUID, bearer, map[string]any{
		"sites": []string{"eu-1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A full update without a sites key keeps the bound sites; the quorum
	// must be checked against those, not a single-site fallback.
	resp = f.request(t, http.MethodPut, "/api/checks/"+check.UUID, bearer, map[string]any{
		"name":           "multi-site",
		"kind":           "http",
		"interval":       "1m",
		"site_threshold": 2,
		"spec":           map[string]string{"url": "https://example.com"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var after store.Check
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&after))
	assert.Equal(t, 2, after.SiteThreshold)
	assert.ElementsMatch(t, []string{"eu-1", "us-1", "ap-1"}, after.Sites)

	resp = f.request(t, http.MethodPut, "/api/checks/"+check.UUID, bearer, map[string]any{
		"name":           "multi-site",
		"kind":           "http",
		"interval":       "1m",
		"site_threshold": 4,
		"spec":           map[string]string{"url": "https://example.com"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunnerAuthRejectsBadSite(t *testing.T) {
	f := newAPIFixture(t)
	f.seedCheck(t, "eu-only", "eu-1")
	f.seedCheck(t, "us-only", "us-1")

	badToken, err := auth.SignRunnerToken(f.runnerKey, "bad site")
	require.NoError(t, err)
	resp := f.request(t, http.MethodGet, "/api/runner/checks", badToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	goodToken, err := auth.SignRunnerToken(f.runnerKey, "eu-1")
	require.NoError(t, err)
	resp = f.request(t, http.MethodGet, "/api/runner/checks", goodToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var checks []runnerCheck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&checks))
	require.Len(t, checks, 1, "only checks bound to the caller's site appear")
	assert.Equal(t, "eu-only", checks[0].Name)
}

func TestRunnerReportDrivesIngest(t *testing.T) {
	f := newAPIFixture(t)
	check := f.seedCheck(t, "eu-only", "eu-1")

	token, err := auth.SignRunnerToken(f.runnerKey, "eu-1")
	require.NoError(t, err)

	resp := f.request(t, http.MethodPost, "/api/runner/report", token, map[string]any{
		"check":   check.UUID,
		"status":  1,
		"message": "connection refused",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	events, err := f.st.ListCheckEvents(context.Background(), check.UUID, nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "eu-1", events[0].Site, "the site comes from the token")
	assert.Equal(t, store.StatusCritical, events[0].Status)

	outages, err := f.st.ListSiteOutages(context.Background())
	require.NoError(t, err)
	require.Len(t, outages, 1)
	assert.Equal(t, 1, outages[0].FailingStrikes)
}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	bearer := userToken(t, f)
	check := f.seedCheck(t, "homepage", "eu-1")
	check.OnStatusPage = true
	_, err := f.st.UpdateCheck(context.Background(), check.UUID, store.CheckPatch{OnStatusPage: &check.OnStatusPage})
	require.NoError(t, err)

	resp := f.request(t, http.MethodGet, "/api/-/status", bearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.OK)
	assert.Equal(t, 1, status.Checks)
	require.Len(t, status.StatusPage, 1)
	assert.False(t, status.StatusPage[0].Down)
}

package probe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpTarget(t *testing.T, spec HTTPSpec) Target {
	t.Helper()
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	return Target{CheckID: 1, Site: "eu-1", Spec: raw}
}

func TestHTTPStatusValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTP()
	res, err := p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL}))
	require.NoError(t, err)
	assert.Equal(t, Critical, res.Status)
	assert.Contains(t, res.Message, "503")

	res, err = p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, StatusCode: 503}))
	require.NoError(t, err)
	assert.Equal(t, OK, res.Status)
}

func TestHTTPContentAndDigest(t *testing.T) {
	body := `{"service":"defcon","healthy":true}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	p := NewHTTP()

	res, err := p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, Content: "defcon"}))
	require.NoError(t, err)
	assert.Equal(t, OK, res.Status)

	res, err = p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, Content: "absent"}))
	require.NoError(t, err)
	assert.Equal(t, Critical, res.Status)

	sum := sha256.Sum256([]byte(body))
	res, err = p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, Digest: hex.EncodeToString(sum[:])}))
	require.NoError(t, err)
	assert.Equal(t, OK, res.Status)

	res, err = p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, Digest: "deadbeef"}))
	require.NoError(t, err)
	assert.Equal(t, Critical, res.Status)
}

func TestHTTPJSONPredicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":{"db":"up"}}`)
	}))
	defer srv.Close()

	p := NewHTTP()

	res, err := p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, JSONPath: "status.db", JSONValue: "up"}))
	require.NoError(t, err)
	assert.Equal(t, OK, res.Status)

	res, err = p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, JSONPath: "status.db", JSONValue: "down"}))
	require.NoError(t, err)
	assert.Equal(t, Critical, res.Status)

	res, err = p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: srv.URL, JSONPath: "status.cache"}))
	require.NoError(t, err)
	assert.Equal(t, Critical, res.Status)
}

func TestHTTPUnreachableIsCriticalNotError(t *testing.T) {
	p := NewHTTP()
	res, err := p.Probe(context.Background(), httpTarget(t, HTTPSpec{URL: "http://127.0.0.1:1"}))
	require.NoError(t, err, "connection refusal is a probe result, not a probe error")
	assert.Equal(t, Critical, res.Status)
}

func TestHTTPMissingURLIsConfigError(t *testing.T) {
	p := NewHTTP()
	_, err := p.Probe(context.Background(), httpTarget(t, HTTPSpec{}))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

package probe

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPSpec drives the http prober. Every validation field is optional; an
// empty spec degrades to "2xx within the timeout".
type HTTPSpec struct {
	URL         string            `json:"url"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	Timeout     Duration          `json:"timeout,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	Content     string            `json:"content,omitempty"`
	Digest      string            `json:"digest,omitempty"`
	JSONPath    string            `json:"json_path,omitempty"`
	JSONValue   string            `json:"json_value,omitempty"`
	MaxDuration Duration          `json:"max_duration,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
}

// HTTP probes web endpoints.
type HTTP struct {
	client *http.Client
}

func NewHTTP() *HTTP {
	return &HTTP{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				TLSClientConfig:     &tls.Config{},
			},
		},
	}
}

func (p *HTTP) Probe(ctx context.Context, target Target) (Result, error) {
	var spec HTTPSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("http spec: %v", err)
	}
	if spec.URL == "" {
		return Result{}, configErrorf("http spec: url is required")
	}
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, spec.Timeout.orDefault())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, spec.URL, strings.NewReader(spec.Body))
	if err != nil {
		return Result{}, configErrorf("http spec: %v", err)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	client := p.client
	if spec.Insecure {
		client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("read body: %v", err)}, nil
	}
	elapsed := time.Since(start)

	if spec.StatusCode != 0 {
		if resp.StatusCode != spec.StatusCode {
			return Result{Status: Critical, Message: fmt.Sprintf("status %d, expected %d", resp.StatusCode, spec.StatusCode)}, nil
		}
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Status: Critical, Message: fmt.Sprintf("status %d", resp.StatusCode)}, nil
	}

	if spec.Content != "" && !strings.Contains(string(body), spec.Content) {
		return Result{Status: Critical, Message: fmt.Sprintf("body does not contain %q", spec.Content)}, nil
	}

	if spec.Digest != "" {
		sum := sha256.Sum256(body)
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, spec.Digest) {
			return Result{Status: Critical, Message: fmt.Sprintf("body digest %s, expected %s", got, spec.Digest)}, nil
		}
	}

	if spec.JSONPath != "" {
		got := gjson.GetBytes(body, spec.JSONPath)
		if !got.Exists() {
			return Result{Status: Critical, Message: fmt.Sprintf("json path %q not present", spec.JSONPath)}, nil
		}
		if spec.JSONValue != "" && got.String() != spec.JSONValue {
			return Result{Status: Critical, Message: fmt.Sprintf("json path %q = %q, expected %q", spec.JSONPath, got.String(), spec.JSONValue)}, nil
		}
	}

	if spec.MaxDuration > 0 && elapsed > spec.MaxDuration.Std() {
		return Result{Status: Warning, Message: fmt.Sprintf("responded in %s, budget %s", elapsed.Round(time.Millisecond), spec.MaxDuration.Std())}, nil
	}

	return Result{Status: OK, Message: fmt.Sprintf("status %d in %s", resp.StatusCode, elapsed.Round(time.Millisecond))}, nil
}

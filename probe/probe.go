// Package probe implements the check executors shared by the controller's
// in-process scheduler and the remote runner binary. A prober turns a
// kind-specific spec into a single result; it never touches the database
// except through the narrow interfaces it is constructed with.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status mirrors the event status values on the wire.
type Status int

const (
	OK       Status = 0
	Critical Status = 1
	Warning  Status = 2
)

// Result is the outcome of one probe execution.
type Result struct {
	Status  Status
	Message string
}

// Target identifies what a prober is asked to examine.
type Target struct {
	CheckID   int64
	CheckUUID string
	Site      string
	Spec      json.RawMessage
}

// Prober executes one check kind. A non-nil error means the probe could not
// even be attempted (bad spec, missing capability); observed failures of the
// probed system are Critical results, not errors.
type Prober interface {
	Probe(ctx context.Context, target Target) (Result, error)
}

// ConfigError marks spec-level failures. The scheduler backs off for a full
// interval instead of hammering a probe that cannot succeed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// DefaultTimeout bounds probes whose spec omits a timeout.
const DefaultTimeout = 5 * time.Second

// Duration unmarshals spec timeouts from strings like "5s" or "2m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) orDefault() time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return time.Duration(d)
}

// Registry maps check kinds to probers.
type Registry struct {
	probers map[string]Prober
}

func NewRegistry() *Registry {
	return &Registry{probers: make(map[string]Prober)}
}

func (r *Registry) Register(kind string, p Prober) {
	r.probers[kind] = p
}

// Lookup returns the prober for kind, or false when the kind is not
// supported by this process.
func (r *Registry) Lookup(kind string) (Prober, bool) {
	p, ok := r.probers[kind]
	return p, ok
}

// RegisterNetworkProbers installs every prober that needs only network
// access. The dead-man switch prober is registered separately because it
// reads controller state.
func RegisterNetworkProbers(r *Registry, dnsResolver string) {
	r.Register("http", NewHTTP())
	r.Register("tcp", &TCP{})
	r.Register("udp", &UDP{})
	r.Register("dns", NewDNS(dnsResolver))
	r.Register("tls", &TLS{})
	r.Register("whois", &Whois{})
	r.Register("app_store", NewAppStore())
	r.Register("play_store", NewPlayStore())
}

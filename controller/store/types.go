package store

import (
	"encoding/json"
	"time"
)

// Status is the outcome of a single probe execution.
type Status int

const (
	StatusOK       Status = 0
	StatusCritical Status = 1
	StatusWarning  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCritical:
		return "critical"
	case StatusWarning:
		return "warning"
	}
	return "unknown"
}

// CheckKind selects which prober executes a check.
type CheckKind string

const (
	KindHTTP          CheckKind = "http"
	KindTCP           CheckKind = "tcp"
	KindUDP           CheckKind = "udp"
	KindDNS           CheckKind = "dns"
	KindTLS           CheckKind = "tls"
	KindWhois         CheckKind = "whois"
	KindAppStore      CheckKind = "app_store"
	KindPlayStore     CheckKind = "play_store"
	KindDeadManSwitch CheckKind = "deadmanswitch"
)

// ValidKind reports whether k names a known prober.
func ValidKind(k CheckKind) bool {
	switch k {
	case KindHTTP, KindTCP, KindUDP, KindDNS, KindTLS, KindWhois,
		KindAppStore, KindPlayStore, KindDeadManSwitch:
		return true
	}
	return false
}

// ControllerSite is the reserved site slug for the in-process scheduler.
const ControllerSite = "@controller"

// Check is a named probe definition. Sites and the kind-specific spec are
// loaded alongside the row.
type Check struct {
	ID               int64           `json:"id"`
	UUID             string          `json:"uuid"`
	Name             string          `json:"name"`
	Kind             CheckKind       `json:"kind"`
	Enabled          bool            `json:"enabled"`
	OnStatusPage     bool            `json:"on_status_page"`
	Silent           bool            `json:"silent"`
	Interval         Duration        `json:"interval"`
	DownInterval     *Duration       `json:"down_interval,omitempty"`
	SiteThreshold    int             `json:"site_threshold"`
	PassingThreshold int             `json:"passing_threshold"`
	FailingThreshold int             `json:"failing_threshold"`
	GroupUUID        *string         `json:"group,omitempty"`
	AlerterUUID      *string         `json:"alerter,omitempty"`
	Sites            []string        `json:"sites"`
	Spec             json.RawMessage `json:"spec"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Event is one probe outcome for a (check, site) pair. Append-only.
type Event struct {
	ID        int64     `json:"id"`
	CheckID   int64     `json:"-"`
	CheckUUID string    `json:"check"`
	Site      string    `json:"site"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	// SiteOutageID links non-OK events to the open site outage they belong to.
	SiteOutageID *int64 `json:"outage_id,omitempty"`
}

// SiteOutage is the per-(check, site) failure state with strike counters.
// At most one open row (EndedOn == nil) exists per pair.
type SiteOutage struct {
	ID             int64      `json:"id"`
	UUID           string     `json:"uuid"`
	CheckID        int64      `json:"-"`
	CheckUUID      string     `json:"check"`
	Site           string     `json:"site"`
	PassingStrikes int        `json:"passing_strikes"`
	FailingStrikes int        `json:"failing_strikes"`
	StartedOn      time.Time  `json:"started_on"`
	EndedOn        *time.Time `json:"ended_on,omitempty"`
}

// Confirmed reports whether the site outage counts toward the global quorum.
func (o *SiteOutage) Confirmed(ft, pt int) bool {
	return o.EndedOn == nil && o.FailingStrikes >= ft && o.PassingStrikes < pt
}

// Outage is the global failure state for a check. At most one open row per
// check, enforced by a partial unique index.
type Outage struct {
	ID        int64      `json:"id"`
	UUID      string     `json:"uuid"`
	CheckID   int64      `json:"-"`
	CheckUUID string     `json:"check"`
	StartedOn time.Time  `json:"started_on"`
	EndedOn   *time.Time `json:"ended_on,omitempty"`
	Comment   *string    `json:"comment,omitempty"`
}

// Timeline entry kinds.
const (
	TimelineConfirmed       = "confirmed"
	TimelineResolved        = "resolved"
	TimelineComment         = "comment"
	TimelineAlertDispatched = "alert_dispatched"
)

// TimelineEntry is an append-only journal row attached to an Outage.
type TimelineEntry struct {
	ID          int64           `json:"id"`
	UUID        string          `json:"uuid"`
	OutageID    int64           `json:"-"`
	Kind        string          `json:"kind"`
	Content     json.RawMessage `json:"content"`
	UserUUID    *string         `json:"user,omitempty"`
	PublishedOn time.Time       `json:"published_on"`
}

// Alerter kinds.
const (
	AlerterWebhook   = "webhook"
	AlerterSlack     = "slack"
	AlerterPagerduty = "pagerduty"
	AlerterNoop      = "noop"
)

// Alerter is an external notification target.
type Alerter struct {
	ID       int64   `json:"id"`
	UUID     string  `json:"uuid"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	URL      *string `json:"url,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"-"`
}

// Group is a display grouping for checks.
type Group struct {
	ID   int64  `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// User is an API account. PasswordHash is a bcrypt digest.
type User struct {
	ID           int64  `json:"id"`
	UUID         string `json:"uuid"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

// DeadManSwitchLog is a single heartbeat check-in for a deadmanswitch check.
type DeadManSwitchLog struct {
	CheckID   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

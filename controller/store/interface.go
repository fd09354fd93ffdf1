package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned on uuid lookup misses.
var ErrNotFound = errors.New("resource not found")

// ErrKindMismatch is returned when an update tries to change a check's kind.
var ErrKindMismatch = errors.New("check kind cannot change")

// CheckPatch carries the fields a PATCH may update. Nil means untouched.
// Kind does not change; a patch naming a different kind fails with
// ErrKindMismatch.
type CheckPatch struct {
	Kind              *CheckKind
	Name              *string
	Enabled           *bool
	OnStatusPage      *bool
	Silent            *bool
	Interval          *Duration
	DownInterval      *Duration
	ClearDownInterval bool
	SiteThreshold     *int
	PassingThreshold  *int
	FailingThreshold  *int
	GroupUUID         *string
	AlerterUUID       *string
	Sites             []string
	Spec              []byte
}

// StatusSummary backs GET /api/-/status.
type StatusSummary struct {
	OK          bool              `json:"ok"`
	Checks      int               `json:"checks"`
	SiteOutages int               `json:"site_outages"`
	Outages     int               `json:"outages"`
	StatusPage  []StatusPageEntry `json:"status_page"`
}

// StatusPageEntry is one public status-page row.
type StatusPageEntry struct {
	Name  string     `json:"name"`
	Group *string    `json:"group,omitempty"`
	Down  bool       `json:"down"`
	Since *time.Time `json:"since,omitempty"`
}

// CleanupResult counts the rows deleted by one retention sweep.
type CleanupResult struct {
	Events      int64
	SiteOutages int64
	Outages     int64
}

func (r CleanupResult) Empty() bool {
	return r.Events == 0 && r.SiteOutages == 0 && r.Outages == 0
}

// OutageTx is the transactional view the ingestor and correlator run against.
// Implementations serialize concurrent ingests for the same (check, site):
// Postgres locks the open site outage row with FOR UPDATE, the memory store
// holds its mutex for the whole function.
type OutageTx interface {
	// OpenSiteOutage returns the open site outage for (checkID, site), locked
	// for the duration of the transaction, or nil when the pair is clear.
	OpenSiteOutage(ctx context.Context, checkID int64, site string) (*SiteOutage, error)
	InsertSiteOutage(ctx context.Context, o *SiteOutage) error
	UpdateSiteOutageStrikes(ctx context.Context, id int64, failing, passing int) error
	CloseSiteOutage(ctx context.Context, id int64, endedOn time.Time) error

	InsertEvent(ctx context.Context, e *Event) error

	// CountConfirmedSiteOutages counts open site outages for the check with
	// failing_strikes >= ft and passing_strikes < pt.
	CountConfirmedSiteOutages(ctx context.Context, checkID int64, ft, pt int) (int, error)

	// OpenOutage returns the open global outage for the check, locked, or nil.
	OpenOutage(ctx context.Context, checkID int64) (*Outage, error)
	InsertOutage(ctx context.Context, o *Outage) error
	CloseOutage(ctx context.Context, id int64, endedOn time.Time) error

	InsertTimeline(ctx context.Context, t *TimelineEntry) error
}

// Store is the durable relational state every subsystem shares.
type Store interface {
	// InTx runs fn in one transaction; fn's writes are atomic and invisible
	// until commit.
	InTx(ctx context.Context, fn func(tx OutageTx) error) error

	// Checks
	CreateCheck(ctx context.Context, c *Check) error
	UpdateCheck(ctx context.Context, uuid string, p CheckPatch) (*Check, error)
	GetCheck(ctx context.Context, uuid string) (*Check, error)
	GetCheckByID(ctx context.Context, id int64) (*Check, error)
	ListChecks(ctx context.Context) ([]*Check, error)
	// DisableCheck is the soft delete; DeleteCheck cascades.
	DisableCheck(ctx context.Context, uuid string) error
	DeleteCheck(ctx context.Context, uuid string) error

	// ListStaleChecks selects enabled checks bound to site with no event for
	// that site newer than now-interval (down_interval while a global outage
	// is open for the check).
	ListStaleChecks(ctx context.Context, site string, now time.Time) ([]*Check, error)

	// Events
	ListCheckEvents(ctx context.Context, checkUUID string, from, to *time.Time) ([]*Event, error)

	// Outages
	GetOutage(ctx context.Context, uuid string) (*Outage, error)
	ListOutages(ctx context.Context, from, to *time.Time) ([]*Outage, error)
	CommentOutage(ctx context.Context, uuid, comment string, userUUID *string) error
	ListTimeline(ctx context.Context, outageUUID string) ([]*TimelineEntry, error)
	AppendTimeline(ctx context.Context, outageUUID string, t *TimelineEntry) error

	// Site outages
	GetSiteOutage(ctx context.Context, uuid string) (*SiteOutage, error)
	ListSiteOutages(ctx context.Context) ([]*SiteOutage, error)
	ListSiteOutageEvents(ctx context.Context, uuid string) ([]*Event, error)

	// Alerters
	CreateAlerter(ctx context.Context, a *Alerter) error
	UpdateAlerter(ctx context.Context, uuid string, a *Alerter) error
	GetAlerter(ctx context.Context, uuid string) (*Alerter, error)
	ListAlerters(ctx context.Context) ([]*Alerter, error)
	DeleteAlerter(ctx context.Context, uuid string) error

	// Groups
	CreateGroup(ctx context.Context, g *Group) error
	UpdateGroup(ctx context.Context, uuid string, name string) error
	GetGroup(ctx context.Context, uuid string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	DeleteGroup(ctx context.Context, uuid string) error

	// Users
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, uuid string, u *User) error
	GetUser(ctx context.Context, uuid string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	DeleteUser(ctx context.Context, uuid string) error

	// Dead-man switch
	RecordCheckin(ctx context.Context, checkUUID string, at time.Time) error
	LastCheckin(ctx context.Context, checkID int64) (*time.Time, error)

	// Aggregates
	StatusSummary(ctx context.Context) (*StatusSummary, error)
	// OutagesByDay groups outages overlapping [from, to] by their start date,
	// optionally restricted to one check.
	OutagesByDay(ctx context.Context, from, to time.Time, checkUUID string) (map[string][]*Outage, error)

	// CleanupBefore deletes resolved outage state older than cutoff.
	CleanupBefore(ctx context.Context, cutoff time.Time) (CleanupResult, error)
}

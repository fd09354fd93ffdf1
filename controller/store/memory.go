package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory implements Store with in-process maps. It backs the engine and API
// tests; transactions run under the store mutex, which gives the same
// serialization the Postgres row locks provide (without rollback — callers
// that fail mid-transaction are expected to treat the run as poisoned).
type Memory struct {
	mu          sync.Mutex
	seq         int64
	checks      map[int64]*Check
	events      []*Event
	siteOutages map[int64]*SiteOutage
	outages     map[int64]*Outage
	timelines   []*TimelineEntry
	alerters    map[string]*Alerter
	groups      map[string]*Group
	users       map[string]*User
	checkins    map[int64][]time.Time
}

// NewMemory initializes an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		checks:      make(map[int64]*Check),
		siteOutages: make(map[int64]*SiteOutage),
		outages:     make(map[int64]*Outage),
		alerters:    make(map[string]*Alerter),
		groups:      make(map[string]*Group),
		users:       make(map[string]*User),
		checkins:    make(map[int64][]time.Time),
	}
}

func (s *Memory) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Memory) checkByUUID(u string) *Check {
	for _, c := range s.checks {
		if c.UUID == u {
			return c
		}
	}
	return nil
}

// --- Checks ---

func (s *Memory) CreateCheck(ctx context.Context, c *Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.GroupUUID != nil {
		if _, ok := s.groups[*c.GroupUUID]; !ok {
			return ErrNotFound
		}
	}
	if c.AlerterUUID != nil {
		if _, ok := s.alerters[*c.AlerterUUID]; !ok {
			return ErrNotFound
		}
	}
	c.ID = s.nextID()
	if c.UUID == "" {
		c.UUID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if len(c.Sites) == 0 {
		c.Sites = []string{ControllerSite}
	}
	cp := *c
	s.checks[c.ID] = &cp
	return nil
}

func (s *Memory) UpdateCheck(ctx context.Context, checkUUID string, p CheckPatch) (*Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.checkByUUID(checkUUID)
	if c == nil {
		return nil, ErrNotFound
	}
	if p.Kind != nil && *p.Kind != c.Kind {
		return nil, ErrKindMismatch
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.OnStatusPage != nil {
		c.OnStatusPage = *p.OnStatusPage
	}
	if p.Silent != nil {
		c.Silent = *p.Silent
	}
	if p.Interval != nil {
		c.Interval = *p.Interval
	}
	if p.DownInterval != nil {
		c.DownInterval = p.DownInterval
	}
	if p.ClearDownInterval {
		c.DownInterval = nil
	}
	if p.SiteThreshold != nil {
		c.SiteThreshold = *p.SiteThreshold
	}
	if p.PassingThreshold != nil {
		c.PassingThreshold = *p.PassingThreshold
	}
	if p.FailingThreshold != nil {
		c.FailingThreshold = *p.FailingThreshold
	}
	if p.GroupUUID != nil {
		if *p.GroupUUID == "" {
			c.GroupUUID = nil
		} else {
			if _, ok := s.groups[*p.GroupUUID]; !ok {
				return nil, ErrNotFound
			}
			c.GroupUUID = p.GroupUUID
		}
	}
	if p.AlerterUUID != nil {
		if *p.AlerterUUID == "" {
			c.AlerterUUID = nil
		} else {
			if _, ok := s.alerters[*p.AlerterUUID]; !ok {
				return nil, ErrNotFound
			}
			c.AlerterUUID = p.AlerterUUID
		}
	}
	if p.Spec != nil {
		c.Spec = json.RawMessage(p.Spec)
	}
	if p.Sites != nil {
		c.Sites = p.Sites
	}
	cp := *c
	return &cp, nil
}

func (s *Memory) GetCheck(ctx context.Context, checkUUID string) (*Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.checkByUUID(checkUUID)
	if c == nil {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Memory) GetCheckByID(ctx context.Context, id int64) (*Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Memory) ListChecks(ctx context.Context) ([]*Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checks := make([]*Check, 0, len(s.checks))
	for _, c := range s.checks {
		cp := *c
		checks = append(checks, &cp)
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].ID < checks[j].ID })
	return checks, nil
}

func (s *Memory) DisableCheck(ctx context.Context, checkUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.checkByUUID(checkUUID)
	if c == nil {
		return ErrNotFound
	}
	c.Enabled = false
	return nil
}

func (s *Memory) DeleteCheck(ctx context.Context, checkUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.checkByUUID(checkUUID)
	if c == nil {
		return ErrNotFound
	}
	delete(s.checks, c.ID)
	var events []*Event
	for _, e := range s.events {
		if e.CheckID != c.ID {
			events = append(events, e)
		}
	}
	s.events = events
	for id, so := range s.siteOutages {
		if so.CheckID == c.ID {
			delete(s.siteOutages, id)
		}
	}
	for id, o := range s.outages {
		if o.CheckID == c.ID {
			delete(s.outages, id)
		}
	}
	delete(s.checkins, c.ID)
	return nil
}

func hasSite(c *Check, site string) bool {
	for _, s := range c.Sites {
		if s == site {
			return true
		}
	}
	return false
}

func (s *Memory) ListStaleChecks(ctx context.Context, site string, now time.Time) ([]*Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*Check
	for _, c := range s.checks {
		if !c.Enabled || !hasSite(c, site) {
			continue
		}
		interval := c.Interval
		if c.DownInterval != nil && s.openOutageLocked(c.ID) != nil {
			interval = *c.DownInterval
		}
		horizon := now.Add(-interval.Std())
		fresh := false
		for _, e := range s.events {
			if e.CheckID == c.ID && e.Site == site && e.CreatedAt.After(horizon) {
				fresh = true
				break
			}
		}
		if !fresh {
			cp := *c
			stale = append(stale, &cp)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

func (s *Memory) openOutageLocked(checkID int64) *Outage {
	for _, o := range s.outages {
		if o.CheckID == checkID && o.EndedOn == nil {
			return o
		}
	}
	return nil
}

// --- Transactional ingest ---

type memTx struct {
	s *Memory
}

func (s *Memory) InTx(ctx context.Context, fn func(tx OutageTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

func (t *memTx) OpenSiteOutage(ctx context.Context, checkID int64, site string) (*SiteOutage, error) {
	for _, so := range t.s.siteOutages {
		if so.CheckID == checkID && so.Site == site && so.EndedOn == nil {
			return so, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertSiteOutage(ctx context.Context, o *SiteOutage) error {
	o.ID = t.s.nextID()
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	if c, ok := t.s.checks[o.CheckID]; ok {
		o.CheckUUID = c.UUID
	}
	cp := *o
	t.s.siteOutages[o.ID] = &cp
	return nil
}

func (t *memTx) UpdateSiteOutageStrikes(ctx context.Context, id int64, failing, passing int) error {
	if so, ok := t.s.siteOutages[id]; ok {
		so.FailingStrikes = failing
		so.PassingStrikes = passing
	}
	return nil
}

func (t *memTx) CloseSiteOutage(ctx context.Context, id int64, endedOn time.Time) error {
	if so, ok := t.s.siteOutages[id]; ok {
		so.EndedOn = &endedOn
	}
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, e *Event) error {
	e.ID = t.s.nextID()
	if c, ok := t.s.checks[e.CheckID]; ok {
		e.CheckUUID = c.UUID
	}
	cp := *e
	t.s.events = append(t.s.events, &cp)
	return nil
}

func (t *memTx) CountConfirmedSiteOutages(ctx context.Context, checkID int64, ft, pt int) (int, error) {
	n := 0
	for _, so := range t.s.siteOutages {
		if so.CheckID == checkID && so.Confirmed(ft, pt) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) OpenOutage(ctx context.Context, checkID int64) (*Outage, error) {
	return t.s.openOutageLocked(checkID), nil
}

func (t *memTx) InsertOutage(ctx context.Context, o *Outage) error {
	o.ID = t.s.nextID()
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	if c, ok := t.s.checks[o.CheckID]; ok {
		o.CheckUUID = c.UUID
	}
	cp := *o
	t.s.outages[o.ID] = &cp
	return nil
}

func (t *memTx) CloseOutage(ctx context.Context, id int64, endedOn time.Time) error {
	if o, ok := t.s.outages[id]; ok {
		o.EndedOn = &endedOn
	}
	return nil
}

func (t *memTx) InsertTimeline(ctx context.Context, entry *TimelineEntry) error {
	return t.s.appendTimelineLocked(entry)
}

func (s *Memory) appendTimelineLocked(entry *TimelineEntry) error {
	entry.ID = s.nextID()
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}
	if entry.Content == nil {
		entry.Content = json.RawMessage(`{}`)
	}
	if entry.PublishedOn.IsZero() {
		entry.PublishedOn = time.Now().UTC()
	}
	cp := *entry
	s.timelines = append(s.timelines, &cp)
	return nil
}

// --- Events ---

func (s *Memory) ListCheckEvents(ctx context.Context, checkUUID string, from, to *time.Time) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.checkByUUID(checkUUID)
	if c == nil {
		return nil, ErrNotFound
	}
	var events []*Event
	for _, e := range s.events {
		if e.CheckID != c.ID {
			continue
		}
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		cp := *e
		events = append(events, &cp)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	return events, nil
}

// --- Outages ---

func (s *Memory) GetOutage(ctx context.Context, outageUUID string) (*Outage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.outages {
		if o.UUID == outageUUID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) ListOutages(ctx context.Context, from, to *time.Time) ([]*Outage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outages []*Outage
	for _, o := range s.outages {
		if from != nil && o.EndedOn != nil && o.EndedOn.Before(*from) {
			continue
		}
		if to != nil && o.StartedOn.After(*to) {
			continue
		}
		cp := *o
		outages = append(outages, &cp)
	}
	sort.Slice(outages, func(i, j int) bool { return outages[i].StartedOn.After(outages[j].StartedOn) })
	return outages, nil
}

func (s *Memory) CommentOutage(ctx context.Context, outageUUID, comment string, userUUID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.outages {
		if o.UUID == outageUUID {
			o.Comment = &comment
			content, _ := json.Marshal(map[string]string{"comment": comment})
			return s.appendTimelineLocked(&TimelineEntry{
				OutageID:    o.ID,
				Kind:        TimelineComment,
				Content:     content,
				UserUUID:    userUUID,
				PublishedOn: time.Now().UTC(),
			})
		}
	}
	return ErrNotFound
}

func (s *Memory) ListTimeline(ctx context.Context, outageUUID string) ([]*TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outageID int64
	found := false
	for _, o := range s.outages {
		if o.UUID == outageUUID {
			outageID = o.ID
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	var entries []*TimelineEntry
	for _, t := range s.timelines {
		if t.OutageID == outageID {
			cp := *t
			entries = append(entries, &cp)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PublishedOn.Before(entries[j].PublishedOn) })
	return entries, nil
}

func (s *Memory) AppendTimeline(ctx context.Context, outageUUID string, entry *TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.outages {
		if o.UUID == outageUUID {
			entry.OutageID = o.ID
			return s.appendTimelineLocked(entry)
		}
	}
	return ErrNotFound
}

// --- Site outages ---

func (s *Memory) GetSiteOutage(ctx context.Context, soUUID string) (*SiteOutage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, so := range s.siteOutages {
		if so.UUID == soUUID {
			cp := *so
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) ListSiteOutages(ctx context.Context) ([]*SiteOutage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outages []*SiteOutage
	for _, so := range s.siteOutages {
		cp := *so
		outages = append(outages, &cp)
	}
	sort.Slice(outages, func(i, j int) bool { return outages[i].StartedOn.After(outages[j].StartedOn) })
	return outages, nil
}

func (s *Memory) ListSiteOutageEvents(ctx context.Context, soUUID string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var soID int64
	found := false
	for _, so := range s.siteOutages {
		if so.UUID == soUUID {
			soID = so.ID
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	var events []*Event
	for _, e := range s.events {
		if e.SiteOutageID != nil && *e.SiteOutageID == soID {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

// --- Alerters ---

func (s *Memory) CreateAlerter(ctx context.Context, a *Alerter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextID()
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	cp := *a
	s.alerters[a.UUID] = &cp
	return nil
}

func (s *Memory) UpdateAlerter(ctx context.Context, alerterUUID string, a *Alerter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.alerters[alerterUUID]
	if !ok {
		return ErrNotFound
	}
	cur.Name, cur.Kind, cur.URL, cur.Username, cur.Password = a.Name, a.Kind, a.URL, a.Username, a.Password
	return nil
}

func (s *Memory) GetAlerter(ctx context.Context, alerterUUID string) (*Alerter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerters[alerterUUID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Memory) ListAlerters(ctx context.Context) ([]*Alerter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerters := make([]*Alerter, 0, len(s.alerters))
	for _, a := range s.alerters {
		cp := *a
		alerters = append(alerters, &cp)
	}
	sort.Slice(alerters, func(i, j int) bool { return alerters[i].ID < alerters[j].ID })
	return alerters, nil
}

func (s *Memory) DeleteAlerter(ctx context.Context, alerterUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerters[alerterUUID]; !ok {
		return ErrNotFound
	}
	delete(s.alerters, alerterUUID)
	return nil
}

// --- Groups ---

func (s *Memory) CreateGroup(ctx context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.ID = s.nextID()
	if g.UUID == "" {
		g.UUID = uuid.NewString()
	}
	cp := *g
	s.groups[g.UUID] = &cp
	return nil
}

func (s *Memory) UpdateGroup(ctx context.Context, groupUUID string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupUUID]
	if !ok {
		return ErrNotFound
	}
	g.Name = name
	return nil
}

func (s *Memory) GetGroup(ctx context.Context, groupUUID string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupUUID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Memory) ListGroups(ctx context.Context) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		cp := *g
		groups = append(groups, &cp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (s *Memory) DeleteGroup(ctx context.Context, groupUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupUUID]; !ok {
		return ErrNotFound
	}
	delete(s.groups, groupUUID)
	return nil
}

// --- Users ---

func (s *Memory) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.nextID()
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	cp := *u
	s.users[u.UUID] = &cp
	return nil
}

func (s *Memory) UpdateUser(ctx context.Context, userUUID string, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[userUUID]
	if !ok {
		return ErrNotFound
	}
	cur.Email, cur.Name, cur.PasswordHash = u.Email, u.Name, u.PasswordHash
	return nil
}

func (s *Memory) GetUser(ctx context.Context, userUUID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userUUID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Memory) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Memory) DeleteUser(ctx context.Context, userUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userUUID]; !ok {
		return ErrNotFound
	}
	delete(s.users, userUUID)
	return nil
}

// --- Dead-man switch ---

func (s *Memory) RecordCheckin(ctx context.Context, checkUUID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.checkByUUID(checkUUID)
	if c == nil {
		return ErrNotFound
	}
	s.checkins[c.ID] = append(s.checkins[c.ID], at)
	return nil
}

func (s *Memory) LastCheckin(ctx context.Context, checkID int64) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := s.checkins[checkID]
	if len(logs) == 0 {
		return nil, nil
	}
	last := logs[0]
	for _, t := range logs[1:] {
		if t.After(last) {
			last = t
		}
	}
	return &last, nil
}

// --- Aggregates ---

func (s *Memory) StatusSummary(ctx context.Context) (*StatusSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum StatusSummary
	for _, c := range s.checks {
		if !c.Enabled {
			continue
		}
		sum.Checks++
		if c.OnStatusPage {
			entry := StatusPageEntry{Name: c.Name}
			if c.GroupUUID != nil {
				if g, ok := s.groups[*c.GroupUUID]; ok {
					entry.Group = &g.Name
				}
			}
			if o := s.openOutageLocked(c.ID); o != nil {
				entry.Down = true
				started := o.StartedOn
				entry.Since = &started
			}
			sum.StatusPage = append(sum.StatusPage, entry)
		}
	}
	for _, so := range s.siteOutages {
		if so.EndedOn == nil {
			sum.SiteOutages++
		}
	}
	for _, o := range s.outages {
		if o.EndedOn == nil {
			sum.Outages++
		}
	}
	sum.OK = sum.Outages == 0
	sort.Slice(sum.StatusPage, func(i, j int) bool { return sum.StatusPage[i].Name < sum.StatusPage[j].Name })
	return &sum, nil
}

func (s *Memory) OutagesByDay(ctx context.Context, from, to time.Time, checkUUID string) (map[string][]*Outage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[string][]*Outage)
	for _, o := range s.outages {
		if o.StartedOn.After(to) {
			continue
		}
		if o.EndedOn != nil && o.EndedOn.Before(from) {
			continue
		}
		if checkUUID != "" && o.CheckUUID != checkUUID {
			continue
		}
		cp := *o
		day := o.StartedOn.UTC().Format(DateLayout)
		byDay[day] = append(byDay[day], &cp)
	}
	return byDay, nil
}

func (s *Memory) CleanupBefore(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res CleanupResult
	stale := make(map[int64]bool)
	for id, so := range s.siteOutages {
		if so.EndedOn != nil && so.EndedOn.Before(cutoff) {
			stale[id] = true
		}
	}
	var events []*Event
	for _, e := range s.events {
		if e.SiteOutageID != nil && stale[*e.SiteOutageID] {
			res.Events++
			continue
		}
		events = append(events, e)
	}
	s.events = events
	for id := range stale {
		delete(s.siteOutages, id)
		res.SiteOutages++
	}
	for id, o := range s.outages {
		if o.EndedOn != nil && o.EndedOn.Before(cutoff) {
			delete(s.outages, id)
			res.Outages++
		}
	}
	return res, nil
}

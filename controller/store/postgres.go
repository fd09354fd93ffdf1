package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a PostgreSQL backend. It is the single source
// of truth shared by all controller replicas and runner fleets.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres initializes the connection pool and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

const checkColumns = `
	c.id, c.uuid, c.name, c.kind, c.enabled, c.on_status_page, c.silent,
	c.interval_seconds, c.down_interval_seconds,
	c.site_threshold, c.passing_threshold, c.failing_threshold,
	g.uuid, a.uuid, sp.spec, c.created_at,
	COALESCE((SELECT array_agg(cs.site ORDER BY cs.site) FROM check_sites cs WHERE cs.check_id = c.id), '{}'::text[])`

const checkJoins = `
	FROM checks c
	JOIN specs sp ON sp.check_id = c.id
	LEFT JOIN groups g ON g.id = c.group_id
	LEFT JOIN alerters a ON a.id = c.alerter_id`

func scanCheck(row pgx.Row) (*Check, error) {
	var c Check
	var intervalSecs int64
	var downSecs *int64
	var spec []byte
	err := row.Scan(
		&c.ID, &c.UUID, &c.Name, &c.Kind, &c.Enabled, &c.OnStatusPage, &c.Silent,
		&intervalSecs, &downSecs,
		&c.SiteThreshold, &c.PassingThreshold, &c.FailingThreshold,
		&c.GroupUUID, &c.AlerterUUID, &spec, &c.CreatedAt, &c.Sites,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Interval = FromSeconds(intervalSecs)
	if downSecs != nil {
		d := FromSeconds(*downSecs)
		c.DownInterval = &d
	}
	c.Spec = json.RawMessage(spec)
	return &c, nil
}

// --- Checks ---

func (s *Postgres) CreateCheck(ctx context.Context, c *Check) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	groupID, err := s.resolveRef(ctx, tx, "groups", c.GroupUUID)
	if err != nil {
		return err
	}
	alerterID, err := s.resolveRef(ctx, tx, "alerters", c.AlerterUUID)
	if err != nil {
		return err
	}

	if c.UUID == "" {
		c.UUID = uuid.NewString()
	}
	var downSecs *int64
	if c.DownInterval != nil {
		v := c.DownInterval.Seconds()
		downSecs = &v
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO checks (uuid, name, kind, enabled, on_status_page, silent,
			interval_seconds, down_interval_seconds,
			site_threshold, passing_threshold, failing_threshold, group_id, alerter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		c.UUID, c.Name, c.Kind, c.Enabled, c.OnStatusPage, c.Silent,
		c.Interval.Seconds(), downSecs,
		c.SiteThreshold, c.PassingThreshold, c.FailingThreshold, groupID, alerterID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO specs (check_id, kind, spec) VALUES ($1, $2, $3)`,
		c.ID, c.Kind, []byte(c.Spec)); err != nil {
		return err
	}

	if len(c.Sites) == 0 {
		c.Sites = []string{ControllerSite}
	}
	for _, site := range c.Sites {
		if _, err := tx.Exec(ctx, `INSERT INTO check_sites (check_id, site) VALUES ($1, $2)`,
			c.ID, site); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Postgres) resolveRef(ctx context.Context, tx pgx.Tx, table string, ref *string) (*int64, error) {
	if ref == nil {
		return nil, nil
	}
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM `+table+` WHERE uuid = $1`, *ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Postgres) UpdateCheck(ctx context.Context, checkUUID string, p CheckPatch) (*Check, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := scanCheck(tx.QueryRow(ctx, `SELECT `+checkColumns+checkJoins+` WHERE c.uuid = $1 FOR UPDATE OF c`, checkUUID))
	if err != nil {
		return nil, err
	}
	if p.Kind != nil && *p.Kind != cur.Kind {
		return nil, ErrKindMismatch
	}

	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.Enabled != nil {
		cur.Enabled = *p.Enabled
	}
	if p.OnStatusPage != nil {
		cur.OnStatusPage = *p.OnStatusPage
	}
	if p.Silent != nil {
		cur.Silent = *p.Silent
	}
	if p.Interval != nil {
		cur.Interval = *p.Interval
	}
	if p.DownInterval != nil {
		cur.DownInterval = p.DownInterval
	}
	if p.ClearDownInterval {
		cur.DownInterval = nil
	}
	if p.SiteThreshold != nil {
		cur.SiteThreshold = *p.SiteThreshold
	}
	if p.PassingThreshold != nil {
		cur.PassingThreshold = *p.PassingThreshold
	}
	if p.FailingThreshold != nil {
		cur.FailingThreshold = *p.FailingThreshold
	}
	if p.GroupUUID != nil {
		if *p.GroupUUID == "" {
			cur.GroupUUID = nil
		} else {
			cur.GroupUUID = p.GroupUUID
		}
	}
	if p.AlerterUUID != nil {
		if *p.AlerterUUID == "" {
			cur.AlerterUUID = nil
		} else {
			cur.AlerterUUID = p.AlerterUUID
		}
	}

	groupID, err := s.resolveRef(ctx, tx, "groups", cur.GroupUUID)
	if err != nil {
		return nil, err
	}
	alerterID, err := s.resolveRef(ctx, tx, "alerters", cur.AlerterUUID)
	if err != nil {
		return nil, err
	}
	var downSecs *int64
	if cur.DownInterval != nil {
		v := cur.DownInterval.Seconds()
		downSecs = &v
	}

	if _, err := tx.Exec(ctx, `
		UPDATE checks SET name = $2, enabled = $3, on_status_page = $4, silent = $5,
			interval_seconds = $6, down_interval_seconds = $7,
			site_threshold = $8, passing_threshold = $9, failing_threshold = $10,
			group_id = $11, alerter_id = $12
		WHERE id = $1`,
		cur.ID, cur.Name, cur.Enabled, cur.OnStatusPage, cur.Silent,
		cur.Interval.Seconds(), downSecs,
		cur.SiteThreshold, cur.PassingThreshold, cur.FailingThreshold,
		groupID, alerterID); err != nil {
		return nil, err
	}

	if p.Spec != nil {
		if _, err := tx.Exec(ctx, `UPDATE specs SET spec = $2 WHERE check_id = $1`,
			cur.ID, p.Spec); err != nil {
			return nil, err
		}
		cur.Spec = json.RawMessage(p.Spec)
	}

	if p.Sites != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM check_sites WHERE check_id = $1`, cur.ID); err != nil {
			return nil, err
		}
		for _, site := range p.Sites {
			if _, err := tx.Exec(ctx, `INSERT INTO check_sites (check_id, site) VALUES ($1, $2)`,
				cur.ID, site); err != nil {
				return nil, err
			}
		}
		cur.Sites = p.Sites
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return cur, nil
}

func (s *Postgres) GetCheck(ctx context.Context, checkUUID string) (*Check, error) {
	return scanCheck(s.pool.QueryRow(ctx, `SELECT `+checkColumns+checkJoins+` WHERE c.uuid = $1`, checkUUID))
}

func (s *Postgres) GetCheckByID(ctx context.Context, id int64) (*Check, error) {
	return scanCheck(s.pool.QueryRow(ctx, `SELECT `+checkColumns+checkJoins+` WHERE c.id = $1`, id))
}

func (s *Postgres) ListChecks(ctx context.Context) ([]*Check, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+checkColumns+checkJoins+` ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []*Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func (s *Postgres) DisableCheck(ctx context.Context, checkUUID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE checks SET enabled = FALSE WHERE uuid = $1`, checkUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteCheck(ctx context.Context, checkUUID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checks WHERE uuid = $1`, checkUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStaleChecks is the scheduler's selection query. A check is stale for a
// site when no event exists for the pair newer than now minus its effective
// interval; the effective interval is down_interval while a global outage is
// open for the check.
func (s *Postgres) ListStaleChecks(ctx context.Context, site string, now time.Time) ([]*Check, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+checkColumns+`
		FROM checks c
		JOIN check_sites cs ON cs.check_id = c.id AND cs.site = $1
		JOIN specs sp ON sp.check_id = c.id
		LEFT JOIN groups g ON g.id = c.group_id
		LEFT JOIN alerters a ON a.id = c.alerter_id
		LEFT JOIN outages o ON o.check_id = c.id AND o.ended_on IS NULL
		WHERE c.enabled
		  AND NOT EXISTS (
			SELECT 1 FROM events e
			WHERE e.check_id = c.id AND e.site = cs.site
			  AND e.created_at > $2::timestamptz - make_interval(secs =>
				CASE WHEN o.id IS NOT NULL AND c.down_interval_seconds IS NOT NULL
				     THEN c.down_interval_seconds
				     ELSE c.interval_seconds END)
		  )`, site, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []*Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// --- Transactional ingest ---

type pgTx struct {
	tx pgx.Tx
}

func (s *Postgres) InTx(ctx context.Context, fn func(tx OutageTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const siteOutageColumns = `
	so.id, so.uuid, so.check_id, c.uuid, so.site,
	so.passing_strikes, so.failing_strikes, so.started_on, so.ended_on`

func scanSiteOutage(row pgx.Row) (*SiteOutage, error) {
	var o SiteOutage
	err := row.Scan(&o.ID, &o.UUID, &o.CheckID, &o.CheckUUID, &o.Site,
		&o.PassingStrikes, &o.FailingStrikes, &o.StartedOn, &o.EndedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *pgTx) OpenSiteOutage(ctx context.Context, checkID int64, site string) (*SiteOutage, error) {
	return scanSiteOutage(t.tx.QueryRow(ctx, `
		SELECT `+siteOutageColumns+`
		FROM site_outages so JOIN checks c ON c.id = so.check_id
		WHERE so.check_id = $1 AND so.site = $2 AND so.ended_on IS NULL
		FOR UPDATE OF so`, checkID, site))
}

func (t *pgTx) InsertSiteOutage(ctx context.Context, o *SiteOutage) error {
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO site_outages (uuid, check_id, site, passing_strikes, failing_strikes, started_on)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		o.UUID, o.CheckID, o.Site, o.PassingStrikes, o.FailingStrikes, o.StartedOn,
	).Scan(&o.ID)
}

func (t *pgTx) UpdateSiteOutageStrikes(ctx context.Context, id int64, failing, passing int) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE site_outages SET failing_strikes = $2, passing_strikes = $3 WHERE id = $1`,
		id, failing, passing)
	return err
}

func (t *pgTx) CloseSiteOutage(ctx context.Context, id int64, endedOn time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE site_outages SET ended_on = $2 WHERE id = $1`, id, endedOn)
	return err
}

func (t *pgTx) InsertEvent(ctx context.Context, e *Event) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO events (check_id, site, status, message, created_at, site_outage_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.CheckID, e.Site, e.Status, e.Message, e.CreatedAt, e.SiteOutageID,
	).Scan(&e.ID)
}

func (t *pgTx) CountConfirmedSiteOutages(ctx context.Context, checkID int64, ft, pt int) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM site_outages
		WHERE check_id = $1 AND ended_on IS NULL
		  AND failing_strikes >= $2 AND passing_strikes < $3`,
		checkID, ft, pt).Scan(&n)
	return n, err
}

func scanOutage(row pgx.Row) (*Outage, error) {
	var o Outage
	err := row.Scan(&o.ID, &o.UUID, &o.CheckID, &o.CheckUUID, &o.StartedOn, &o.EndedOn, &o.Comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const outageColumns = `o.id, o.uuid, o.check_id, c.uuid, o.started_on, o.ended_on, o.comment`

func (t *pgTx) OpenOutage(ctx context.Context, checkID int64) (*Outage, error) {
	return scanOutage(t.tx.QueryRow(ctx, `
		SELECT `+outageColumns+`
		FROM outages o JOIN checks c ON c.id = o.check_id
		WHERE o.check_id = $1 AND o.ended_on IS NULL
		FOR UPDATE OF o`, checkID))
}

func (t *pgTx) InsertOutage(ctx context.Context, o *Outage) error {
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO outages (uuid, check_id, started_on) VALUES ($1, $2, $3)
		RETURNING id`,
		o.UUID, o.CheckID, o.StartedOn,
	).Scan(&o.ID)
}

func (t *pgTx) CloseOutage(ctx context.Context, id int64, endedOn time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE outages SET ended_on = $2 WHERE id = $1`, id, endedOn)
	return err
}

func (t *pgTx) InsertTimeline(ctx context.Context, entry *TimelineEntry) error {
	return insertTimeline(ctx, t.tx, entry)
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTimeline(ctx context.Context, q execQuerier, entry *TimelineEntry) error {
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}
	if entry.Content == nil {
		entry.Content = json.RawMessage(`{}`)
	}
	var userID *int64
	if entry.UserUUID != nil {
		var id int64
		err := q.QueryRow(ctx, `SELECT id FROM users WHERE uuid = $1`, *entry.UserUUID).Scan(&id)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if err == nil {
			userID = &id
		}
	}
	return q.QueryRow(ctx, `
		INSERT INTO timelines (uuid, outage_id, kind, content, user_id, published_on)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.UUID, entry.OutageID, entry.Kind, []byte(entry.Content), userID, entry.PublishedOn,
	).Scan(&entry.ID)
}

// --- Events ---

const eventColumns = `e.id, e.check_id, c.uuid, e.site, e.status, e.message, e.created_at, e.site_outage_id`

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CheckID, &e.CheckUUID, &e.Site, &e.Status,
			&e.Message, &e.CreatedAt, &e.SiteOutageID); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *Postgres) ListCheckEvents(ctx context.Context, checkUUID string, from, to *time.Time) ([]*Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events e JOIN checks c ON c.id = e.check_id
		WHERE c.uuid = $1`
	args := []any{checkUUID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND e.created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND e.created_at <= $%d", len(args))
	}
	query += ` ORDER BY e.created_at DESC`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// --- Outages ---

func (s *Postgres) GetOutage(ctx context.Context, outageUUID string) (*Outage, error) {
	o, err := scanOutage(s.pool.QueryRow(ctx, `
		SELECT `+outageColumns+`
		FROM outages o JOIN checks c ON c.id = o.check_id
		WHERE o.uuid = $1`, outageUUID))
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Postgres) ListOutages(ctx context.Context, from, to *time.Time) ([]*Outage, error) {
	query := `SELECT ` + outageColumns + `
		FROM outages o JOIN checks c ON c.id = o.check_id WHERE TRUE`
	var args []any
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND (o.ended_on IS NULL OR o.ended_on >= $%d)", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND o.started_on <= $%d", len(args))
	}
	query += ` ORDER BY o.started_on DESC`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outages []*Outage
	for rows.Next() {
		o, err := scanOutage(rows)
		if err != nil {
			return nil, err
		}
		outages = append(outages, o)
	}
	return outages, rows.Err()
}

func (s *Postgres) CommentOutage(ctx context.Context, outageUUID, comment string, userUUID *string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var outageID int64
	err = tx.QueryRow(ctx, `UPDATE outages SET comment = $2 WHERE uuid = $1 RETURNING id`,
		outageUUID, comment).Scan(&outageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	content, _ := json.Marshal(map[string]string{"comment": comment})
	entry := &TimelineEntry{
		OutageID:    outageID,
		Kind:        TimelineComment,
		Content:     content,
		UserUUID:    userUUID,
		PublishedOn: time.Now().UTC(),
	}
	if err := insertTimeline(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) ListTimeline(ctx context.Context, outageUUID string) ([]*TimelineEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.uuid, t.outage_id, t.kind, t.content, u.uuid, t.published_on
		FROM timelines t
		JOIN outages o ON o.id = t.outage_id
		LEFT JOIN users u ON u.id = t.user_id
		WHERE o.uuid = $1
		ORDER BY t.published_on ASC`, outageUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*TimelineEntry
	for rows.Next() {
		var t TimelineEntry
		var content []byte
		if err := rows.Scan(&t.ID, &t.UUID, &t.OutageID, &t.Kind, &content, &t.UserUUID, &t.PublishedOn); err != nil {
			return nil, err
		}
		t.Content = json.RawMessage(content)
		entries = append(entries, &t)
	}
	return entries, rows.Err()
}

func (s *Postgres) AppendTimeline(ctx context.Context, outageUUID string, entry *TimelineEntry) error {
	var outageID int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM outages WHERE uuid = $1`, outageUUID).Scan(&outageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	entry.OutageID = outageID
	return insertTimeline(ctx, s.pool, entry)
}

// --- Site outages ---

func (s *Postgres) GetSiteOutage(ctx context.Context, soUUID string) (*SiteOutage, error) {
	o, err := scanSiteOutage(s.pool.QueryRow(ctx, `
		SELECT `+siteOutageColumns+`
		FROM site_outages so JOIN checks c ON c.id = so.check_id
		WHERE so.uuid = $1`, soUUID))
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Postgres) ListSiteOutages(ctx context.Context) ([]*SiteOutage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+siteOutageColumns+`
		FROM site_outages so JOIN checks c ON c.id = so.check_id
		ORDER BY so.started_on DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outages []*SiteOutage
	for rows.Next() {
		o, err := scanSiteOutage(rows)
		if err != nil {
			return nil, err
		}
		outages = append(outages, o)
	}
	return outages, rows.Err()
}

func (s *Postgres) ListSiteOutageEvents(ctx context.Context, soUUID string) ([]*Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events e
		JOIN site_outages so ON so.id = e.site_outage_id
		JOIN checks c ON c.id = e.check_id
		WHERE so.uuid = $1
		ORDER BY e.created_at ASC`, soUUID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// --- Alerters ---

func (s *Postgres) CreateAlerter(ctx context.Context, a *Alerter) error {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO alerters (uuid, name, kind, url, username, password)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.UUID, a.Name, a.Kind, a.URL, a.Username, a.Password,
	).Scan(&a.ID)
}

func (s *Postgres) UpdateAlerter(ctx context.Context, alerterUUID string, a *Alerter) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerters SET name = $2, kind = $3, url = $4, username = $5, password = $6
		WHERE uuid = $1`,
		alerterUUID, a.Name, a.Kind, a.URL, a.Username, a.Password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetAlerter(ctx context.Context, alerterUUID string) (*Alerter, error) {
	var a Alerter
	err := s.pool.QueryRow(ctx, `
		SELECT id, uuid, name, kind, url, username, password FROM alerters WHERE uuid = $1`,
		alerterUUID).Scan(&a.ID, &a.UUID, &a.Name, &a.Kind, &a.URL, &a.Username, &a.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Postgres) ListAlerters(ctx context.Context) ([]*Alerter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, uuid, name, kind, url, username, password FROM alerters ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerters []*Alerter
	for rows.Next() {
		var a Alerter
		if err := rows.Scan(&a.ID, &a.UUID, &a.Name, &a.Kind, &a.URL, &a.Username, &a.Password); err != nil {
			return nil, err
		}
		alerters = append(alerters, &a)
	}
	return alerters, rows.Err()
}

func (s *Postgres) DeleteAlerter(ctx context.Context, alerterUUID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerters WHERE uuid = $1`, alerterUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Groups ---

func (s *Postgres) CreateGroup(ctx context.Context, g *Group) error {
	if g.UUID == "" {
		g.UUID = uuid.NewString()
	}
	return s.pool.QueryRow(ctx, `INSERT INTO groups (uuid, name) VALUES ($1, $2) RETURNING id`,
		g.UUID, g.Name).Scan(&g.ID)
}

func (s *Postgres) UpdateGroup(ctx context.Context, groupUUID string, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE groups SET name = $2 WHERE uuid = $1`, groupUUID, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetGroup(ctx context.Context, groupUUID string) (*Group, error) {
	var g Group
	err := s.pool.QueryRow(ctx, `SELECT id, uuid, name FROM groups WHERE uuid = $1`, groupUUID).
		Scan(&g.ID, &g.UUID, &g.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Postgres) ListGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, uuid, name FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.UUID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

func (s *Postgres) DeleteGroup(ctx context.Context, groupUUID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE uuid = $1`, groupUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Users ---

func (s *Postgres) CreateUser(ctx context.Context, u *User) error {
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO users (uuid, email, name, password_hash) VALUES ($1, $2, $3, $4)
		RETURNING id`,
		u.UUID, u.Email, u.Name, u.PasswordHash).Scan(&u.ID)
}

func (s *Postgres) UpdateUser(ctx context.Context, userUUID string, u *User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET email = $2, name = $3, password_hash = $4 WHERE uuid = $1`,
		userUUID, u.Email, u.Name, u.PasswordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, userUUID string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, uuid, email, name, password_hash FROM users WHERE uuid = $1`, userUUID))
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, uuid, email, name, password_hash FROM users WHERE email = $1`, email))
}

func (s *Postgres) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.UUID, &u.Email, &u.Name, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, uuid, email, name, password_hash FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.UUID, &u.Email, &u.Name, &u.PasswordHash); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *Postgres) DeleteUser(ctx context.Context, userUUID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE uuid = $1`, userUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Dead-man switch ---

func (s *Postgres) RecordCheckin(ctx context.Context, checkUUID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO deadmanswitch_logs (check_id, created_at)
		SELECT id, $2 FROM checks WHERE uuid = $1`, checkUUID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) LastCheckin(ctx context.Context, checkID int64) (*time.Time, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(created_at) FROM deadmanswitch_logs WHERE check_id = $1`, checkID).Scan(&last)
	if err != nil {
		return nil, err
	}
	return last, nil
}

// --- Aggregates ---

func (s *Postgres) StatusSummary(ctx context.Context) (*StatusSummary, error) {
	var sum StatusSummary
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM checks WHERE enabled),
			(SELECT COUNT(*) FROM site_outages WHERE ended_on IS NULL),
			(SELECT COUNT(*) FROM outages WHERE ended_on IS NULL)`).
		Scan(&sum.Checks, &sum.SiteOutages, &sum.Outages)
	if err != nil {
		return nil, err
	}
	sum.OK = sum.Outages == 0

	rows, err := s.pool.Query(ctx, `
		SELECT c.name, g.name, o.started_on
		FROM checks c
		LEFT JOIN groups g ON g.id = c.group_id
		LEFT JOIN outages o ON o.check_id = c.id AND o.ended_on IS NULL
		WHERE c.enabled AND c.on_status_page
		ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry StatusPageEntry
		var since *time.Time
		if err := rows.Scan(&entry.Name, &entry.Group, &since); err != nil {
			return nil, err
		}
		entry.Down = since != nil
		entry.Since = since
		sum.StatusPage = append(sum.StatusPage, entry)
	}
	return &sum, rows.Err()
}

func (s *Postgres) OutagesByDay(ctx context.Context, from, to time.Time, checkUUID string) (map[string][]*Outage, error) {
	query := `SELECT ` + outageColumns + `
		FROM outages o JOIN checks c ON c.id = o.check_id
		WHERE o.started_on <= $2 AND (o.ended_on IS NULL OR o.ended_on >= $1)`
	args := []any{from, to}
	if checkUUID != "" {
		args = append(args, checkUUID)
		query += ` AND c.uuid = $3`
	}
	query += ` ORDER BY o.started_on ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[string][]*Outage)
	for rows.Next() {
		o, err := scanOutage(rows)
		if err != nil {
			return nil, err
		}
		day := o.StartedOn.UTC().Format(DateLayout)
		byDay[day] = append(byDay[day], o)
	}
	return byDay, rows.Err()
}

func (s *Postgres) CleanupBefore(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	var res CleanupResult
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM events e USING site_outages so
		WHERE e.site_outage_id = so.id AND so.ended_on IS NOT NULL AND so.ended_on < $1`, cutoff)
	if err != nil {
		return res, err
	}
	res.Events = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`DELETE FROM site_outages WHERE ended_on IS NOT NULL AND ended_on < $1`, cutoff)
	if err != nil {
		return res, err
	}
	res.SiteOutages = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`DELETE FROM outages WHERE ended_on IS NOT NULL AND ended_on < $1`, cutoff)
	if err != nil {
		return res, err
	}
	res.Outages = tag.RowsAffected()

	return res, tx.Commit(ctx)
}

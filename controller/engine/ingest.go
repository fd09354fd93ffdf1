// Package engine turns the stream of probe events into durable site outages
// and globally correlated outages.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/observability"
	"github.com/itskum47/defcon/controller/store"
)

// Edge describes one global outage transition produced by an ingest.
type Edge struct {
	Check    *store.Check
	Outage   *store.Outage
	Event    *store.Event
	Resolved bool
}

// Hook is notified after the transaction carrying an Edge has committed.
// Hooks must not block the caller for long; slow work belongs in their own
// goroutines.
type Hook func(ctx context.Context, e Edge)

// Engine runs the per-site strike machine and the outage correlator.
type Engine struct {
	store store.Store
	log   zerolog.Logger
	hooks []Hook
	clock func() time.Time
}

func New(st store.Store, log zerolog.Logger) *Engine {
	return &Engine{
		store: st,
		log:   log.With().Str("component", "engine").Logger(),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// OnEdge registers a hook for outage transitions. Not safe to call after
// ingestion has started.
func (n *Engine) OnEdge(h Hook) {
	n.hooks = append(n.hooks, h)
}

func clamp(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// Ingest persists one event, advances the strike machine for its
// (check, site) pair and re-evaluates the global outage, all in a single
// transaction. Concurrent calls for the same pair serialize on the open
// site outage row.
func (n *Engine) Ingest(ctx context.Context, check *store.Check, event *store.Event) error {
	ft := clamp(check.FailingThreshold)
	pt := clamp(check.PassingThreshold)
	siteThreshold := clamp(check.SiteThreshold)

	event.CheckID = check.ID
	event.CheckUUID = check.UUID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = n.clock()
	}

	var edge *Edge
	err := n.store.InTx(ctx, func(tx store.OutageTx) error {
		so, err := tx.OpenSiteOutage(ctx, check.ID, event.Site)
		if err != nil {
			return fmt.Errorf("lock site outage: %w", err)
		}

		now := event.CreatedAt
		switch {
		case so == nil && event.Status == store.StatusOK:
			// Clear pair, healthy event. Nothing to track.

		case so == nil:
			so = &store.SiteOutage{
				CheckID:        check.ID,
				Site:           event.Site,
				FailingStrikes: 1,
				StartedOn:      now,
			}
			if err := tx.InsertSiteOutage(ctx, so); err != nil {
				return fmt.Errorf("open site outage: %w", err)
			}
			if so.Confirmed(ft, pt) {
				n.log.Warn().Str("check", check.UUID).Str("site", event.Site).
					Msg("site outage started")
			}

		case event.Status != store.StatusOK:
			wasConfirmed := so.Confirmed(ft, pt)
			if so.FailingStrikes >= ft {
				// Already at the cap. A failure during recovery resets the
				// passing run; a failure while confirmed changes nothing.
				if so.PassingStrikes > 0 {
					so.PassingStrikes = 0
					if err := tx.UpdateSiteOutageStrikes(ctx, so.ID, so.FailingStrikes, 0); err != nil {
						return fmt.Errorf("reset passing strikes: %w", err)
					}
				}
			} else {
				so.FailingStrikes++
				if err := tx.UpdateSiteOutageStrikes(ctx, so.ID, so.FailingStrikes, so.PassingStrikes); err != nil {
					return fmt.Errorf("bump failing strikes: %w", err)
				}
			}
			if !wasConfirmed && so.Confirmed(ft, pt) {
				n.log.Warn().Str("check", check.UUID).Str("site", event.Site).
					Msg("site outage started")
			}

		default: // open row, OK event
			wasConfirmed := so.Confirmed(ft, pt)
			so.PassingStrikes++
			if so.PassingStrikes >= pt {
				if err := tx.CloseSiteOutage(ctx, so.ID, now); err != nil {
					return fmt.Errorf("close site outage: %w", err)
				}
				ended := now
				so.EndedOn = &ended
				if wasConfirmed {
					n.log.Info().Str("check", check.UUID).Str("site", event.Site).
						Msg("site outage resolved")
				}
			} else if err := tx.UpdateSiteOutageStrikes(ctx, so.ID, so.FailingStrikes, so.PassingStrikes); err != nil {
				return fmt.Errorf("bump passing strikes: %w", err)
			}
		}

		if so != nil {
			event.SiteOutageID = &so.ID
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		edge, err = n.correlate(ctx, tx, check, event, siteThreshold, ft, pt, now)
		return err
	})
	if err != nil {
		return err
	}

	observability.EventsIngested.WithLabelValues(event.Status.String()).Inc()
	if edge != nil {
		for _, h := range n.hooks {
			h(ctx, *edge)
		}
	}
	return nil
}

// correlate promotes or demotes the global outage for the check based on the
// number of confirmed site outages. Runs inside the ingest transaction.
func (n *Engine) correlate(ctx context.Context, tx store.OutageTx, check *store.Check, event *store.Event, siteThreshold, ft, pt int, now time.Time) (*Edge, error) {
	confirmed, err := tx.CountConfirmedSiteOutages(ctx, check.ID, ft, pt)
	if err != nil {
		return nil, fmt.Errorf("count confirmed site outages: %w", err)
	}
	open, err := tx.OpenOutage(ctx, check.ID)
	if err != nil {
		return nil, fmt.Errorf("lock outage: %w", err)
	}

	switch {
	case confirmed >= siteThreshold && open == nil:
		outage := &store.Outage{CheckID: check.ID, StartedOn: now}
		if err := tx.InsertOutage(ctx, outage); err != nil {
			return nil, fmt.Errorf("open outage: %w", err)
		}
		content, _ := json.Marshal(map[string]any{"sites_confirmed": confirmed})
		if err := tx.InsertTimeline(ctx, &store.TimelineEntry{
			OutageID:    outage.ID,
			Kind:        store.TimelineConfirmed,
			Content:     content,
			PublishedOn: now,
		}); err != nil {
			return nil, fmt.Errorf("append timeline: %w", err)
		}
		observability.OutagesConfirmed.Inc()
		n.log.Error().Str("check", check.UUID).Str("outage", outage.UUID).
			Int("sites_confirmed", confirmed).Msg("outage confirmed")
		return &Edge{Check: check, Outage: outage, Event: event}, nil

	case confirmed < siteThreshold && open != nil:
		if err := tx.CloseOutage(ctx, open.ID, now); err != nil {
			return nil, fmt.Errorf("close outage: %w", err)
		}
		ended := now
		open.EndedOn = &ended
		if err := tx.InsertTimeline(ctx, &store.TimelineEntry{
			OutageID:    open.ID,
			Kind:        store.TimelineResolved,
			Content:     json.RawMessage(`{}`),
			PublishedOn: now,
		}); err != nil {
			return nil, fmt.Errorf("append timeline: %w", err)
		}
		observability.OutagesResolved.Inc()
		n.log.Info().Str("check", check.UUID).Str("outage", open.UUID).
			Msg("outage resolved")
		return &Edge{Check: check, Outage: open, Event: event, Resolved: true}, nil
	}
	return nil, nil
}

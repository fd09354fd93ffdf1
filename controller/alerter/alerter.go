// Package alerter delivers outage transitions to external notification
// targets. Dispatch is fire and forget: a failed delivery is logged and the
// next confirm/resolve edge produces a fresh attempt.
package alerter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/engine"
	"github.com/itskum47/defcon/controller/observability"
	"github.com/itskum47/defcon/controller/store"
)

// Notification is the payload handed to an adapter.
type Notification struct {
	Check     *store.Check
	Outage    *store.Outage
	LastEvent *store.Event
	Resolved  bool
}

func (n Notification) Level() string {
	if n.Resolved {
		return "recovered"
	}
	return "down"
}

type adapter interface {
	Send(ctx context.Context, target *store.Alerter, n Notification) error
}

// Dispatcher resolves the alerter bound to a check and invokes the matching
// adapter.
type Dispatcher struct {
	store    store.Store
	log      zerolog.Logger
	adapters map[string]adapter

	// defaultUUID is used when a check has no alerter; fallbackUUID when
	// the default is unset or missing.
	defaultUUID  string
	fallbackUUID string
}

func NewDispatcher(st store.Store, log zerolog.Logger, defaultUUID, fallbackUUID string) *Dispatcher {
	return &Dispatcher{
		store: st,
		log:   log.With().Str("component", "alerter").Logger(),
		adapters: map[string]adapter{
			store.AlerterWebhook:   NewWebhook(),
			store.AlerterSlack:     NewSlack(),
			store.AlerterPagerduty: NewPagerduty(),
			store.AlerterNoop:      noop{},
		},
		defaultUUID:  defaultUUID,
		fallbackUUID: fallbackUUID,
	}
}

// Hook adapts the dispatcher to the engine's edge callback. Delivery runs
// in its own goroutine so ingestion never waits on alert endpoints.
func (d *Dispatcher) Hook() engine.Hook {
	return func(ctx context.Context, e Edge) {
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			d.Dispatch(ctx, e)
		}()
	}
}

// Edge aliases the engine transition type for callers of Dispatch.
type Edge = engine.Edge

// Dispatch delivers one outage transition. Errors are logged, never
// returned; outage state is already committed and must not be affected.
func (d *Dispatcher) Dispatch(ctx context.Context, e Edge) {
	if e.Check.Silent {
		return
	}

	target := d.resolveTarget(ctx, e.Check)
	if target == nil {
		return
	}
	ad, ok := d.adapters[target.Kind]
	if !ok {
		d.log.Error().Str("alerter", target.UUID).Str("kind", target.Kind).
			Msg("unknown alerter kind")
		return
	}

	n := Notification{Check: e.Check, Outage: e.Outage, LastEvent: e.Event, Resolved: e.Resolved}
	if err := ad.Send(ctx, target, n); err != nil {
		observability.AlertsDispatched.WithLabelValues(target.Kind, "error").Inc()
		d.log.Error().Err(err).Str("alerter", target.UUID).Str("kind", target.Kind).
			Str("outage", e.Outage.UUID).Msg("alert dispatch failed")
		return
	}
	observability.AlertsDispatched.WithLabelValues(target.Kind, "ok").Inc()

	if target.Kind == store.AlerterNoop {
		return
	}
	content, _ := json.Marshal(map[string]any{
		"alerter": map[string]string{"kind": target.Kind, "name": target.Name},
	})
	err := d.store.AppendTimeline(ctx, e.Outage.UUID, &store.TimelineEntry{
		Kind:        store.TimelineAlertDispatched,
		Content:     content,
		PublishedOn: time.Now().UTC(),
	})
	if err != nil {
		d.log.Error().Err(err).Str("outage", e.Outage.UUID).Msg("record alert timeline")
	}
}

func (d *Dispatcher) resolveTarget(ctx context.Context, check *store.Check) *store.Alerter {
	for _, candidate := range []*string{check.AlerterUUID, nonEmpty(d.defaultUUID), nonEmpty(d.fallbackUUID)} {
		if candidate == nil {
			continue
		}
		target, err := d.store.GetAlerter(ctx, *candidate)
		if err == nil {
			return target
		}
		d.log.Warn().Str("alerter", *candidate).Msg("configured alerter not found")
	}
	return nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// noop intentionally discards notifications. Useful for checks whose
// transitions should be journaled but never delivered.
type noop struct{}

func (noop) Send(ctx context.Context, target *store.Alerter, n Notification) error {
	return nil
}

package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/engine"
	"github.com/itskum47/defcon/controller/inhibitor"
	"github.com/itskum47/defcon/controller/observability"
	"github.com/itskum47/defcon/controller/store"
	"github.com/itskum47/defcon/probe"
)

// Handler is the in-process scheduler: every tick it pulls the checks that
// are stale for the controller site and runs their probes.
type Handler struct {
	store    store.Store
	engine   *engine.Engine
	registry *probe.Registry
	inhibit  *inhibitor.Inhibitor
	log      zerolog.Logger

	site     string
	interval time.Duration
	spread   time.Duration
}

func NewHandler(st store.Store, eng *engine.Engine, registry *probe.Registry, log zerolog.Logger, interval, spread time.Duration) *Handler {
	return &Handler{
		store:    st,
		engine:   eng,
		registry: registry,
		inhibit:  inhibitor.New(),
		log:      log.With().Str("component", "handler").Logger(),
		site:     store.ControllerSite,
		interval: interval,
		spread:   spread,
	}
}

// Run ticks until ctx is cancelled. A tick never propagates failure.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Tick starts one worker per stale, uninhibited check.
func (h *Handler) Tick(ctx context.Context) {
	checks, err := h.store.ListStaleChecks(ctx, h.site, time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("stale check selection failed")
		return
	}

	for _, check := range checks {
		key := inhibitor.Key{Site: h.site, CheckUUID: check.UUID}
		if h.inhibit.Inhibited(key) {
			continue
		}
		h.inhibit.Inhibit(key)
		go h.execute(ctx, check, key)
	}
}

func (h *Handler) execute(ctx context.Context, check *store.Check, key inhibitor.Key) {
	if h.spread > 0 {
		select {
		case <-ctx.Done():
			h.inhibit.Release(key)
			return
		case <-time.After(time.Duration(rand.Int63n(int64(h.spread)))):
		}
	}

	prober, ok := h.registry.Lookup(string(check.Kind))
	if !ok {
		h.log.Error().Str("check", check.UUID).Str("kind", string(check.Kind)).
			Msg("no prober for kind")
		h.inhibit.InhibitFor(key, check.Interval.Std())
		return
	}

	start := time.Now()
	result, err := prober.Probe(ctx, probe.Target{
		CheckID:   check.ID,
		CheckUUID: check.UUID,
		Site:      h.site,
		Spec:      check.Spec,
	})
	observability.ProbeDuration.WithLabelValues(string(check.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		// Configuration failures cannot resolve themselves; hold the slot
		// for a full interval instead of retrying next tick.
		h.log.Error().Err(err).Str("check", check.UUID).Str("kind", string(check.Kind)).
			Msg("probe not executable")
		h.inhibit.InhibitFor(key, check.Interval.Std())
		return
	}
	observability.ProbesRun.WithLabelValues(string(check.Kind), store.Status(result.Status).String()).Inc()

	event := &store.Event{
		Site:    h.site,
		Status:  store.Status(result.Status),
		Message: result.Message,
	}
	if err := h.engine.Ingest(ctx, check, event); err != nil {
		h.log.Error().Err(err).Str("check", check.UUID).Msg("ingest failed")
	}
	h.inhibit.Release(key)
}

package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/observability"
	"github.com/itskum47/defcon/controller/store"
)

// Cleaner is the retention sweep: resolved outage state older than the
// threshold is deleted on a fixed cadence.
type Cleaner struct {
	store     store.Store
	log       zerolog.Logger
	interval  time.Duration
	threshold time.Duration
}

func NewCleaner(st store.Store, log zerolog.Logger, interval, threshold time.Duration) *Cleaner {
	return &Cleaner{
		store:     st,
		log:       log.With().Str("component", "cleaner").Logger(),
		interval:  interval,
		threshold: threshold,
	}
}

// Run sweeps until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep deletes one batch of expired rows. Errors are logged, never fatal.
func (c *Cleaner) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-c.threshold)
	res, err := c.store.CleanupBefore(ctx, cutoff)
	if err != nil {
		c.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if res.Empty() {
		return
	}

	observability.CleanedRows.WithLabelValues("events").Add(float64(res.Events))
	observability.CleanedRows.WithLabelValues("site_outages").Add(float64(res.SiteOutages))
	observability.CleanedRows.WithLabelValues("outages").Add(float64(res.Outages))
	c.log.Info().
		Int64("events", res.Events).
		Int64("site_outages", res.SiteOutages).
		Int64("outages", res.Outages).
		Msg("cleaned database")
}

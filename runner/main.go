package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/auth"
	"github.com/itskum47/defcon/controller/inhibitor"
	"github.com/itskum47/defcon/controller/store"
	"github.com/itskum47/defcon/probe"
)

// Runner polls the controller for stale checks, executes their probes and
// reports the results back.
type Runner struct {
	client   *Client
	registry *probe.Registry
	inhibit  *inhibitor.Inhibitor
	log      zerolog.Logger
	site     string
	interval time.Duration
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	checks, err := r.client.Checks(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("fetch checks failed")
		return
	}

	for _, check := range checks {
		key := inhibitor.Key{Site: r.site, CheckUUID: check.UUID}
		if r.inhibit.Inhibited(key) {
			continue
		}
		r.inhibit.Inhibit(key)
		go r.execute(ctx, check, key)
	}
}

func (r *Runner) execute(ctx context.Context, check Check, key inhibitor.Key) {
	prober, ok := r.registry.Lookup(check.Kind)
	if !ok {
		r.log.Error().Str("check", check.UUID).Str("kind", check.Kind).
			Msg("no prober for kind")
		r.inhibit.InhibitFor(key, r.backoff(check))
		return
	}

	result, err := prober.Probe(ctx, probe.Target{
		CheckID:   check.ID,
		CheckUUID: check.UUID,
		Site:      r.site,
		Spec:      check.Spec,
	})
	if err != nil {
		r.log.Error().Err(err).Str("check", check.UUID).Msg("probe not executable")
		r.inhibit.InhibitFor(key, r.backoff(check))
		return
	}

	if err := r.client.Report(ctx, check.UUID, result); err != nil {
		r.log.Error().Err(err).Str("check", check.UUID).Msg("report failed")
	}
	r.inhibit.Release(key)
}

// backoff holds a misconfigured check for its own interval so it is not
// retried every tick. Intervals arrive in the wire format, which carries
// d/w/y units plain time.ParseDuration rejects.
func (r *Runner) backoff(check Check) time.Duration {
	if d, err := store.ParseDuration(check.Interval); err == nil && d > 0 {
		return d.Std()
	}
	return time.Minute
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}
	if !auth.ValidSiteSlug(cfg.Site) {
		log.Fatal().Str("site", cfg.Site).Msg("SITE must match ^[a-z0-9-]+$")
	}

	key, err := auth.LoadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("private key invalid")
	}

	registry := probe.NewRegistry()
	probe.RegisterNetworkProbers(registry, cfg.DNSResolver)

	runner := &Runner{
		client:   NewClient(cfg.ControllerURL, cfg.Site, key),
		registry: registry,
		inhibit:  inhibitor.New(),
		log:      log.With().Str("component", "runner").Str("site", cfg.Site).Logger(),
		site:     cfg.Site,
		interval: cfg.TickInterval,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner.log.Info().Str("controller", cfg.ControllerURL).Msg("runner started")
	runner.Run(ctx)
}

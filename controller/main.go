package main

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/alerter"
	"github.com/itskum47/defcon/controller/auth"
	"github.com/itskum47/defcon/controller/engine"
	"github.com/itskum47/defcon/controller/observability"
	"github.com/itskum47/defcon/controller/store"
	"github.com/itskum47/defcon/probe"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		dsn := os.Getenv("DSN")
		if dsn == "" {
			log.Fatal().Msg("DSN is required")
		}
		if err := store.Migrate(dsn); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migrations applied")
		return
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	if err := store.Migrate(cfg.DSN); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewPostgres(ctx, cfg.DSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer st.Close()

	var runnerKey *ecdsa.PublicKey
	if cfg.PublicKeyPath != "" {
		runnerKey, err = auth.LoadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			log.Fatal().Err(err).Msg("runner public key invalid")
		}
	}

	var tokens *auth.UserTokens
	if cfg.APIEnable && !cfg.SkipAuth {
		tokens, err = auth.NewUserTokens(cfg.SigningKey)
		if err != nil {
			log.Fatal().Err(err).Msg("user token setup failed")
		}
	}

	eng := engine.New(st, log)
	dispatcher := alerter.NewDispatcher(st, log, cfg.AlerterDefault, cfg.AlerterFallback)
	eng.OnEdge(dispatcher.Hook())

	stream := NewStream(log)
	eng.OnEdge(stream.Hook())
	go stream.Run(ctx)

	servers := make([]*http.Server, 0, 3)

	if cfg.APIEnable {
		status := NewStatusCache(cfg.RedisAddr, log)
		app := NewApp(cfg, st, log, eng, tokens, runnerKey, stream, status)
		srv := &http.Server{Addr: cfg.APIListen, Handler: app.Router()}
		servers = append(servers, srv)
		go func() {
			log.Info().Str("listen", cfg.APIListen).Msg("api listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("api server failed")
			}
		}()
	}

	if cfg.DMSEnable {
		dms := NewDMSServer(st, log)
		srv := &http.Server{Addr: cfg.DMSListen, Handler: dms.Router()}
		servers = append(servers, srv)
		go func() {
			log.Info().Str("listen", cfg.DMSListen).Msg("dead-man switch listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("dms server failed")
			}
		}()
	}

	if cfg.MetricsListen != "" {
		srv := &http.Server{Addr: cfg.MetricsListen, Handler: observability.Handler()}
		servers = append(servers, srv)
		go func() {
			log.Info().Str("listen", cfg.MetricsListen).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	if cfg.HandlerEnable {
		registry := probe.NewRegistry()
		probe.RegisterNetworkProbers(registry, cfg.DNSResolver)
		registry.Register(string(store.KindDeadManSwitch), probe.NewDeadManSwitch(st))

		handler := NewHandler(st, eng, registry, log, cfg.HandlerInterval, cfg.HandlerSpread)
		go handler.Run(ctx)
		log.Info().Dur("interval", cfg.HandlerInterval).Msg("handler running")
	}

	if cfg.CleanerEnable {
		cleaner := NewCleaner(st, log, cfg.CleanerInterval, cfg.CleanerThreshold)
		go cleaner.Run(ctx)
		log.Info().Dur("interval", cfg.CleanerInterval).Msg("cleaner running")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(shutdownCtx)
	}
}

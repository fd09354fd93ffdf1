package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/auth"
	"github.com/itskum47/defcon/controller/engine"
	"github.com/itskum47/defcon/controller/middleware"
	"github.com/itskum47/defcon/controller/store"
)

// App wires the HTTP surface to the store and engine.
type App struct {
	cfg       *Config
	store     store.Store
	log       zerolog.Logger
	engine    *engine.Engine
	tokens    *auth.UserTokens
	runnerKey *ecdsa.PublicKey
	validate  *validator.Validate
	stream    *Stream
	status    *StatusCache
}

func NewApp(cfg *Config, st store.Store, log zerolog.Logger, eng *engine.Engine, tokens *auth.UserTokens, runnerKey *ecdsa.PublicKey, stream *Stream, status *StatusCache) *App {
	return &App{
		cfg:       cfg,
		store:     st,
		log:       log.With().Str("component", "api").Logger(),
		engine:    eng,
		tokens:    tokens,
		runnerKey: runnerKey,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		stream:    stream,
		status:    status,
	}
}

// Router builds the full API surface.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(a.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/api/-/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/-/token", a.handleToken)
	r.Post("/api/-/refresh", a.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(a.tokens, a.cfg.SkipAuth))

		r.Get("/api/-/me", a.handleMe)
		r.Get("/api/-/status", a.handleStatus)
		r.Get("/api/-/statistics", a.handleStatistics)
		r.Get("/api/-/stream", a.handleStream)

		r.Route("/api/checks", func(r chi.Router) {
			r.Get("/", a.handleListChecks)
			r.Post("/", a.handleCreateCheck)
			r.Get("/{uuid}", a.handleGetCheck)
			r.Put("/{uuid}", a.handleUpdateCheck)
			r.Patch("/{uuid}", a.handlePatchCheck)
			r.Delete("/{uuid}", a.handleDeleteCheck)
			r.Get("/{uuid}/events", a.handleCheckEvents)
		})

		r.Route("/api/outages", func(r chi.Router) {
			r.Get("/", a.handleListOutages)
			r.Get("/{uuid}", a.handleGetOutage)
			r.Put("/{uuid}/comment", a.handleCommentOutage)
			r.Get("/{uuid}/timeline", a.handleOutageTimeline)
		})

		r.Route("/api/sites/outages", func(r chi.Router) {
			r.Get("/", a.handleListSiteOutages)
			r.Get("/{uuid}", a.handleGetSiteOutage)
			r.Get("/{uuid}/events", a.handleSiteOutageEvents)
		})

		r.Route("/api/groups", func(r chi.Router) {
			r.Get("/", a.handleListGroups)
			r.Post("/", a.handleCreateGroup)
			r.Get("/{uuid}", a.handleGetGroup)
			r.Put("/{uuid}", a.handleUpdateGroup)
			r.Delete("/{uuid}", a.handleDeleteGroup)
		})

		r.Route("/api/alerters", func(r chi.Router) {
			r.Get("/", a.handleListAlerters)
			r.Post("/", a.handleCreateAlerter)
			r.Get("/{uuid}", a.handleGetAlerter)
			r.Put("/{uuid}", a.handleUpdateAlerter)
			r.Delete("/{uuid}", a.handleDeleteAlerter)
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", a.handleListUsers)
			r.Post("/", a.handleCreateUser)
			r.Get("/{uuid}", a.handleGetUser)
			r.Put("/{uuid}", a.handleUpdateUser)
			r.Delete("/{uuid}", a.handleDeleteUser)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRunner(a.runnerKey))
		r.Get("/api/runner/checks", a.handleRunnerChecks)
		r.Post("/api/runner/report", a.handleRunnerReport)
	})

	return r
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			a.log.Error().Err(err).Msg("encode response")
		}
	}
}

func (a *App) badRequest(w http.ResponseWriter, message string) {
	a.respond(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: message})
}

func (a *App) notFound(w http.ResponseWriter) {
	a.respond(w, http.StatusNotFound, apiError{Code: "not_found", Message: "resource not found"})
}

func (a *App) unauthorized(w http.ResponseWriter) {
	a.respond(w, http.StatusUnauthorized, apiError{Code: "invalid_credentials", Message: "invalid credentials"})
}

// serverError hides the root cause from clients; the log line carries it.
func (a *App) serverError(w http.ResponseWriter, err error) {
	a.log.Error().Err(err).Msg("request failed")
	a.respond(w, http.StatusInternalServerError, apiError{Code: "server_error", Message: "internal error"})
}

// storeError maps store failures onto the error taxonomy.
func (a *App) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.notFound(w)
	case errors.Is(err, store.ErrKindMismatch):
		a.badRequest(w, "check kind cannot change")
	default:
		a.serverError(w, err)
	}
}

// decode unmarshals and validates a JSON request body.
func (a *App) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return a.validate.Struct(v)
}

package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/itskum47/defcon/controller/observability"
	"github.com/itskum47/defcon/controller/store"
)

// DMSServer is the unauthenticated heartbeat listener. The check uuid is
// the capability; a valid one records a check-in row.
type DMSServer struct {
	store   store.Store
	log     zerolog.Logger
	limiter *rate.Limiter
}

func NewDMSServer(st store.Store, log zerolog.Logger) *DMSServer {
	return &DMSServer{
		store: st,
		log:   log.With().Str("component", "dms").Logger(),
		// The endpoint is public; cap the damage an aggressive cron fleet
		// or a scanner can do.
		limiter: rate.NewLimiter(rate.Limit(100), 200),
	}
}

// Router exposes GET /checkin/{uuid}.
func (s *DMSServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/checkin/{uuid}", s.handleCheckin)
	return r
}

func (s *DMSServer) handleCheckin(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	uuid := chi.URLParam(r, "uuid")
	err := s.store.RecordCheckin(r.Context(), uuid, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("check", uuid).Msg("record checkin")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	observability.Checkins.Inc()
	w.WriteHeader(http.StatusOK)
}

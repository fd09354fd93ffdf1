package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/store"
)

const statusCacheKey = "defcon:status"

// StatusCache keeps the status summary in Redis for a few seconds so public
// status pages do not hammer the aggregate query. Without a Redis address
// the cache degrades to a no-op.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewStatusCache(addr string, log zerolog.Logger) *StatusCache {
	c := &StatusCache{ttl: 5 * time.Second, log: log.With().Str("component", "statuscache").Logger()}
	if addr != "" {
		c.client = redis.NewClient(&redis.Options{Addr: addr})
	}
	return c
}

func (c *StatusCache) Get(ctx context.Context) []byte {
	if c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, statusCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("status cache read failed")
		}
		return nil
	}
	return raw
}

func (c *StatusCache) Set(ctx context.Context, raw []byte) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, statusCacheKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("status cache write failed")
	}
}

type statusResponse struct {
	OK      bool `json:"ok"`
	Checks  int  `json:"checks"`
	Outages struct {
		Site   int `json:"site"`
		Global int `json:"global"`
	} `json:"outages"`
	StatusPage []store.StatusPageEntry `json:"status_page"`
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	if cached := a.status.Get(r.Context()); cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	summary, err := a.store.StatusSummary(r.Context())
	if err != nil {
		a.serverError(w, err)
		return
	}
	resp := statusResponse{OK: summary.OK, Checks: summary.Checks, StatusPage: summary.StatusPage}
	resp.Outages.Site = summary.SiteOutages
	resp.Outages.Global = summary.Outages

	raw, err := json.Marshal(resp)
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.status.Set(r.Context(), raw)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (a *App) handleStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(store.DateLayout, q.Get("from"))
	if err != nil {
		a.badRequest(w, "from must be formatted as 2006-01-02")
		return
	}
	to, err := time.Parse(store.DateLayout, q.Get("to"))
	if err != nil {
		a.badRequest(w, "to must be formatted as 2006-01-02")
		return
	}
	if to.Before(from) {
		a.badRequest(w, "to must not precede from")
		return
	}

	byDay, err := a.store.OutagesByDay(r.Context(), from, to.Add(24*time.Hour-time.Nanosecond), q.Get("check"))
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, byDay)
}

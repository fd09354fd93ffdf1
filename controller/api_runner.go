package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/itskum47/defcon/controller/middleware"
	"github.com/itskum47/defcon/controller/store"
)

// siteLimiters throttles report storms per site. A runner that floods the
// ingest path gets 429s instead of saturating the pool for everyone.
type siteLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newSiteLimiters() *siteLimiters {
	return &siteLimiters{limiters: make(map[string]*rate.Limiter)}
}

func (l *siteLimiters) allow(site string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[site]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(50), 100)
		l.limiters[site] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

var reportLimiters = newSiteLimiters()

// runnerCheck is the trimmed view a runner needs to execute a probe.
type runnerCheck struct {
	ID       int64           `json:"id"`
	UUID     string          `json:"uuid"`
	Name     string          `json:"name"`
	Kind     store.CheckKind `json:"kind"`
	Interval store.Duration  `json:"interval"`
	Spec     json.RawMessage `json:"spec"`
}

func (a *App) handleRunnerChecks(w http.ResponseWriter, r *http.Request) {
	site, ok := middleware.Site(r.Context())
	if !ok {
		a.unauthorized(w)
		return
	}

	checks, err := a.store.ListStaleChecks(r.Context(), site, time.Now().UTC())
	if err != nil {
		a.serverError(w, err)
		return
	}

	out := make([]runnerCheck, 0, len(checks))
	for _, c := range checks {
		// The dead-man switch reads controller state and cannot run remotely.
		if c.Kind == store.KindDeadManSwitch {
			continue
		}
		out = append(out, runnerCheck{
			ID:       c.ID,
			UUID:     c.UUID,
			Name:     c.Name,
			Kind:     c.Kind,
			Interval: c.Interval,
			Spec:     c.Spec,
		})
	}
	a.respond(w, http.StatusOK, out)
}

type reportRequest struct {
	Check   string       `json:"check" validate:"required"`
	Status  store.Status `json:"status"`
	Message string       `json:"message"`
}

func (a *App) handleRunnerReport(w http.ResponseWriter, r *http.Request) {
	site, ok := middleware.Site(r.Context())
	if !ok {
		a.unauthorized(w)
		return
	}
	if !reportLimiters.allow(site) {
		w.Header().Set("Retry-After", "1")
		a.respond(w, http.StatusTooManyRequests, apiError{Code: "rate_limited", Message: "report rate exceeded"})
		return
	}

	var req reportRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "check is required")
		return
	}
	if req.Status != store.StatusOK && req.Status != store.StatusCritical && req.Status != store.StatusWarning {
		a.badRequest(w, "status must be 0, 1 or 2")
		return
	}

	check, err := a.store.GetCheck(r.Context(), req.Check)
	if err != nil {
		a.storeError(w, err)
		return
	}

	event := &store.Event{
		Site:    site, // the token, not the body, decides the site
		Status:  req.Status,
		Message: req.Message,
	}
	if err := a.engine.Ingest(r.Context(), check, event); err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

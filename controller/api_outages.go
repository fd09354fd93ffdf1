package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/itskum47/defcon/controller/middleware"
)

func (a *App) handleListOutages(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r)
	if err != nil {
		a.badRequest(w, "from/to must be formatted as 2006-01-02T15:04:05")
		return
	}
	outages, err := a.store.ListOutages(r.Context(), from, to)
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, outages)
}

func (a *App) handleGetOutage(w http.ResponseWriter, r *http.Request) {
	outage, err := a.store.GetOutage(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, outage)
}

type commentRequest struct {
	Comment string `json:"comment" validate:"required"`
}

func (a *App) handleCommentOutage(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "comment is required")
		return
	}
	var userUUID *string
	if u, ok := middleware.UserUUID(r.Context()); ok {
		userUUID = &u
	}
	if err := a.store.CommentOutage(r.Context(), chi.URLParam(r, "uuid"), req.Comment, userUUID); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *App) handleOutageTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := a.store.ListTimeline(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, timeline)
}

func (a *App) handleListSiteOutages(w http.ResponseWriter, r *http.Request) {
	outages, err := a.store.ListSiteOutages(r.Context())
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, outages)
}

func (a *App) handleGetSiteOutage(w http.ResponseWriter, r *http.Request) {
	outage, err := a.store.GetSiteOutage(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, outage)
}

func (a *App) handleSiteOutageEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.store.ListSiteOutageEvents(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, events)
}

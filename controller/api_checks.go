package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/itskum47/defcon/controller/auth"
	"github.com/itskum47/defcon/controller/store"
)

type checkRequest struct {
	Name             string          `json:"name" validate:"required"`
	Kind             store.CheckKind `json:"kind" validate:"required"`
	Enabled          *bool           `json:"enabled"`
	OnStatusPage     bool            `json:"on_status_page"`
	Silent           bool            `json:"silent"`
	Interval         store.Duration  `json:"interval" validate:"required"`
	DownInterval     *store.Duration `json:"down_interval"`
	SiteThreshold    int             `json:"site_threshold"`
	PassingThreshold int             `json:"passing_threshold"`
	FailingThreshold int             `json:"failing_threshold"`
	Group            *string         `json:"group"`
	Alerter          *string         `json:"alerter"`
	Sites            []string        `json:"sites"`
	Spec             json.RawMessage `json:"spec" validate:"required"`
}

func validSites(sites []string) bool {
	for _, s := range sites {
		if s != store.ControllerSite && !auth.ValidSiteSlug(s) {
			return false
		}
	}
	return true
}

// validateCheckShape applies the cross-field rules shared by create and
// update: known kind, legal site slugs, and a reachable quorum.
func (a *App) validateCheckShape(kind store.CheckKind, sites []string, siteThreshold int) (string, bool) {
	if !store.ValidKind(kind) {
		return "unknown check kind", false
	}
	if !validSites(sites) {
		return "site slugs must match ^[a-z0-9-]+$", false
	}
	boundSites := len(sites)
	if boundSites == 0 {
		boundSites = 1 // defaults to @controller
	}
	if siteThreshold > boundSites {
		return "site_threshold exceeds the number of bound sites", false
	}
	return "", true
}

func (a *App) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "invalid check payload")
		return
	}
	if msg, ok := a.validateCheckShape(req.Kind, req.Sites, req.SiteThreshold); !ok {
		a.badRequest(w, msg)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	check := &store.Check{
		Name:             req.Name,
		Kind:             req.Kind,
		Enabled:          enabled,
		OnStatusPage:     req.OnStatusPage,
		Silent:           req.Silent,
		Interval:         req.Interval,
		DownInterval:     req.DownInterval,
		SiteThreshold:    req.SiteThreshold,
		PassingThreshold: req.PassingThreshold,
		FailingThreshold: req.FailingThreshold,
		GroupUUID:        req.Group,
		AlerterUUID:      req.Alerter,
		Sites:            req.Sites,
		Spec:             req.Spec,
	}
	if err := a.store.CreateCheck(r.Context(), check); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, check)
}

func (a *App) handleListChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := a.store.ListChecks(r.Context())
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, checks)
}

func (a *App) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	check, err := a.store.GetCheck(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, check)
}

// handleUpdateCheck replaces every mutable field. The kind is immutable;
// sending a different one is a client error.
func (a *App) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	var req checkRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "invalid check payload")
		return
	}

	current, err := a.store.GetCheck(r.Context(), uuid)
	if err != nil {
		a.storeError(w, err)
		return
	}
	// An omitted sites key keeps the bound sites, so the quorum rule is
	// measured against those, not against the create-time default.
	sites := req.Sites
	if sites == nil {
		sites = current.Sites
	}
	if msg, ok := a.validateCheckShape(req.Kind, sites, req.SiteThreshold); !ok {
		a.badRequest(w, msg)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	group := ""
	if req.Group != nil {
		group = *req.Group
	}
	alerter := ""
	if req.Alerter != nil {
		alerter = *req.Alerter
	}
	patch := store.CheckPatch{
		Kind:              &req.Kind,
		Name:              &req.Name,
		Enabled:           &enabled,
		OnStatusPage:      &req.OnStatusPage,
		Silent:            &req.Silent,
		Interval:          &req.Interval,
		DownInterval:      req.DownInterval,
		ClearDownInterval: req.DownInterval == nil,
		SiteThreshold:     &req.SiteThreshold,
		PassingThreshold:  &req.PassingThreshold,
		FailingThreshold:  &req.FailingThreshold,
		GroupUUID:         &group,
		AlerterUUID:       &alerter,
		Sites:             req.Sites,
		Spec:              req.Spec,
	}
	check, err := a.store.UpdateCheck(r.Context(), uuid, patch)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, check)
}

type checkPatchRequest struct {
	Name             *string          `json:"name"`
	Enabled          *bool            `json:"enabled"`
	OnStatusPage     *bool            `json:"on_status_page"`
	Silent           *bool            `json:"silent"`
	Interval         *store.Duration  `json:"interval"`
	DownInterval     *store.Duration  `json:"down_interval"`
	SiteThreshold    *int             `json:"site_threshold"`
	PassingThreshold *int             `json:"passing_threshold"`
	FailingThreshold *int             `json:"failing_threshold"`
	Group            *string          `json:"group"`
	Alerter          *string          `json:"alerter"`
	Sites            []string         `json:"sites"`
	Spec             json.RawMessage  `json:"spec"`
	Kind             *store.CheckKind `json:"kind"`
}

func (a *App) handlePatchCheck(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")

	// Raw fields are kept so "down_interval": null can be told apart from
	// an absent key.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		a.badRequest(w, "invalid check payload")
		return
	}
	merged, _ := json.Marshal(raw)
	var req checkPatchRequest
	if err := json.Unmarshal(merged, &req); err != nil {
		a.badRequest(w, "invalid check payload")
		return
	}
	if req.Sites != nil && !validSites(req.Sites) {
		a.badRequest(w, "site slugs must match ^[a-z0-9-]+$")
		return
	}
	// A patched threshold or site set is checked against the other half's
	// stored value, so a partial patch cannot leave an unreachable quorum.
	if req.SiteThreshold != nil || req.Sites != nil {
		sites := req.Sites
		threshold := 0
		if req.SiteThreshold != nil {
			threshold = *req.SiteThreshold
		}
		if sites == nil || req.SiteThreshold == nil {
			current, err := a.store.GetCheck(r.Context(), uuid)
			if err != nil {
				a.storeError(w, err)
				return
			}
			if sites == nil {
				sites = current.Sites
			}
			if req.SiteThreshold == nil {
				threshold = current.SiteThreshold
			}
		}
		bound := len(sites)
		if bound == 0 {
			bound = 1
		}
		if threshold > bound {
			a.badRequest(w, "site_threshold exceeds the number of bound sites")
			return
		}
	}

	patch := store.CheckPatch{
		Kind:             req.Kind,
		Name:             req.Name,
		Enabled:          req.Enabled,
		OnStatusPage:     req.OnStatusPage,
		Silent:           req.Silent,
		Interval:         req.Interval,
		DownInterval:     req.DownInterval,
		SiteThreshold:    req.SiteThreshold,
		PassingThreshold: req.PassingThreshold,
		FailingThreshold: req.FailingThreshold,
		GroupUUID:        req.Group,
		AlerterUUID:      req.Alerter,
		Sites:            req.Sites,
		Spec:             req.Spec,
	}
	if rawDI, present := raw["down_interval"]; present && string(rawDI) == "null" {
		patch.ClearDownInterval = true
	}

	check, err := a.store.UpdateCheck(r.Context(), uuid, patch)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, check)
}

// handleDeleteCheck disables by default; ?delete=true removes the check and
// everything hanging off it.
func (a *App) handleDeleteCheck(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	var err error
	if r.URL.Query().Get("delete") == "true" {
		err = a.store.DeleteCheck(r.Context(), uuid)
	} else {
		err = a.store.DisableCheck(r.Context(), uuid)
	}
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

// parseTimeRange reads optional from/to query parameters.
func parseTimeRange(r *http.Request) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(store.DateTimeLayout, v)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(store.DateTimeLayout, v)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

func (a *App) handleCheckEvents(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r)
	if err != nil {
		a.badRequest(w, "from/to must be formatted as 2006-01-02T15:04:05")
		return
	}
	events, err := a.store.ListCheckEvents(r.Context(), chi.URLParam(r, "uuid"), from, to)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, events)
}

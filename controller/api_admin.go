package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/itskum47/defcon/controller/store"
)

// --- Groups ---

type groupRequest struct {
	Name string `json:"name" validate:"required"`
}

func (a *App) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "name is required")
		return
	}
	group := &store.Group{Name: req.Name}
	if err := a.store.CreateGroup(r.Context(), group); err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, group)
}

func (a *App) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := a.store.ListGroups(r.Context())
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, groups)
}

func (a *App) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := a.store.GetGroup(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, group)
}

func (a *App) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "name is required")
		return
	}
	if err := a.store.UpdateGroup(r.Context(), chi.URLParam(r, "uuid"), req.Name); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *App) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteGroup(r.Context(), chi.URLParam(r, "uuid")); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

// --- Alerters ---

type alerterRequest struct {
	Name     string  `json:"name" validate:"required"`
	Kind     string  `json:"kind" validate:"required,oneof=webhook slack pagerduty noop"`
	URL      *string `json:"url"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (a *App) handleCreateAlerter(w http.ResponseWriter, r *http.Request) {
	var req alerterRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "invalid alerter payload")
		return
	}
	target := &store.Alerter{
		Name:     req.Name,
		Kind:     req.Kind,
		URL:      req.URL,
		Username: req.Username,
		Password: req.Password,
	}
	if err := a.store.CreateAlerter(r.Context(), target); err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, target)
}

func (a *App) handleListAlerters(w http.ResponseWriter, r *http.Request) {
	alerters, err := a.store.ListAlerters(r.Context())
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, alerters)
}

func (a *App) handleGetAlerter(w http.ResponseWriter, r *http.Request) {
	target, err := a.store.GetAlerter(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, target)
}

func (a *App) handleUpdateAlerter(w http.ResponseWriter, r *http.Request) {
	var req alerterRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "invalid alerter payload")
		return
	}
	target := &store.Alerter{
		Name:     req.Name,
		Kind:     req.Kind,
		URL:      req.URL,
		Username: req.Username,
		Password: req.Password,
	}
	if err := a.store.UpdateAlerter(r.Context(), chi.URLParam(r, "uuid"), target); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *App) handleDeleteAlerter(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteAlerter(r.Context(), chi.URLParam(r, "uuid")); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

// --- Users ---

type userRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" validate:"required,min=8"`
}

func (a *App) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "email and a password of at least 8 characters are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.serverError(w, err)
		return
	}
	user := &store.User{Email: req.Email, Name: req.Name, PasswordHash: string(hash)}
	if err := a.store.CreateUser(r.Context(), user); err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, user)
}

func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, users)
}

func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.store.GetUser(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, user)
}

func (a *App) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "invalid user payload")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.serverError(w, err)
		return
	}
	user := &store.User{Email: req.Email, Name: req.Name, PasswordHash: string(hash)}
	if err := a.store.UpdateUser(r.Context(), chi.URLParam(r, "uuid"), user); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteUser(r.Context(), chi.URLParam(r, "uuid")); err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

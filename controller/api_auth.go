package main

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/itskum47/defcon/controller/middleware"
	"github.com/itskum47/defcon/controller/store"
)

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (a *App) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "email and password are required")
		return
	}

	user, err := a.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		// Burn a comparison anyway so the miss costs as much as a mismatch.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(req.Password))
		a.unauthorized(w)
		return
	}
	if err != nil {
		a.serverError(w, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		a.unauthorized(w)
		return
	}

	pair, err := a.tokens.Issue(user.UUID)
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := a.decode(r, &req); err != nil {
		a.badRequest(w, "refresh_token is required")
		return
	}

	userUUID, err := a.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		a.unauthorized(w)
		return
	}
	// The user may have been deleted since the token was minted.
	if _, err := a.store.GetUser(r.Context(), userUUID); err != nil {
		a.unauthorized(w)
		return
	}

	pair, err := a.tokens.Issue(userUUID)
	if err != nil {
		a.serverError(w, err)
		return
	}
	a.respond(w, http.StatusOK, pair)
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	userUUID, ok := middleware.UserUUID(r.Context())
	if !ok {
		a.unauthorized(w)
		return
	}
	user, err := a.store.GetUser(r.Context(), userUUID)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.respond(w, http.StatusOK, user)
}

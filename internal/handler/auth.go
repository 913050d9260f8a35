package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/auth"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler serves sign-up, login, logout, the GitHub OAuth round trip
// and /api/me.
//
// github is nil when GitHub OAuth is not configured; the OAuth routes then
// answer 409 github_disabled.
type AuthHandler struct {
	auth    *service.AuthService
	billing *service.BillingService
	github  *auth.GitHubProvider
	secure  bool // mark cookies Secure (BASE_URL is https)
	logger  *slog.Logger
}

func NewAuthHandler(
	authSvc *service.AuthService,
	billing *service.BillingService,
	github *auth.GitHubProvider,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:    authSvc,
		billing: billing,
		github:  github,
		secure:  secure,
		logger:  logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// MeResponse is the body of /api/me and of successful register/login.
type MeResponse struct {
	User *model.User `json:"user"`
	Plan string      `json:"plan"`
	Pro  bool        `json:"pro"`
}

// HandleRegister creates a credentials account and logs it in.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in.Email, in.Password, in.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(res.Token, h.auth.SessionTTL(), h.secure))
	writeJSON(w, http.StatusCreated, MeResponse{User: res.User, Plan: model.PlanFree})
}

// HandleLogin checks credentials and sets the session cookie.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(res.Token, h.auth.SessionTTL(), h.secure))
	h.writeMe(w, r, res.User)
}

// HandleGitHubLogin redirects to GitHub's consent page. The random state
// goes into a short-lived cookie and is checked on the way back (CSRF).
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, errGitHubDisabled)
		return
	}
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

var errGitHubDisabled = apperror.ConflictCode("github_disabled", "GitHub sign-in is not configured on this server")

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// With a valid session the GitHub identity is linked to the logged-in user;
// otherwise it logs in or creates a user. Browser-facing failures redirect
// to /?auth=denied or /?auth=error instead of showing JSON.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, errGitHubDisabled)
		return
	}

	q := r.URL.Query()
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/auth/github", MaxAge: -1})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, tok, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/?auth=error", http.StatusSeeOther)
		return
	}
	scope, _ := tok.Extra("scope").(string)

	currentUserID, _ := auth.UserIDFromContext(r.Context())
	res, err := h.auth.CompleteGitHub(r.Context(), currentUserID, ghUser, service.GitHubGrant{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       scope,
	})
	if err != nil {
		target := "/?auth=error"
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code != "" {
			target = "/?auth=error&reason=" + appErr.Code
		}
		h.logger.Warn("auth callback: completing GitHub login failed",
			slog.String("login", ghUser.Login),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	http.SetCookie(w, auth.SessionCookie(res.Token, h.auth.SessionTTL(), h.secure))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogout clears the session cookie. Sessions are stateless JWTs, so
// the token itself stays valid until it expires.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearedSessionCookie(h.secure))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the logged-in user with their plan.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.User(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeMe(w, r, user)
}

func (h *AuthHandler) writeMe(w http.ResponseWriter, r *http.Request, user *model.User) {
	sub, err := h.billing.Subscription(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	pro, err := h.billing.IsPro(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{User: user, Plan: sub.Plan, Pro: pro})
}

// userID is set by auth.RequireAuth on every protected route.
func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/service"
)

const (
	sessionCookie = "token"
	stateCookie   = "oauth_state"
	stateLifetime = 10 * time.Minute
)

// AuthHandler runs the GitHub OAuth flow and the session endpoints.
type AuthHandler struct {
	provider *auth.GitHubProvider
	tokens   *auth.TokenService
	users    *service.UserService
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(provider *auth.GitHubProvider, tokens *auth.TokenService, users *service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{provider: provider, tokens: tokens, users: users, logger: logger}
}

// HandleLogin starts the OAuth flow: generate a state nonce, stash it in a
// short-lived cookie, and send the browser to GitHub.
//
// GET /auth/github/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback finishes the OAuth flow.
//
// GET /auth/github/callback?code=...&state=...
//
// The state from GitHub must match our cookie (CSRF protection). The code
// is exchanged for the profile and the delegated access token; the local
// user sync is BEST-EFFORT — a database outage must not block sign-in, so
// on sync failure the session simply carries an empty local user id.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || state == "" || cookie.Value != state {
		writeError(w, apperror.Unauthenticated("OAuth state mismatch"))
		return
	}
	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	profile, accessToken, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("OAuth exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthenticated("GitHub sign-in failed"))
		return
	}

	sess := auth.Session{Email: profile.Email, GitHubToken: accessToken}
	if user, err := h.users.SyncGitHubUser(r.Context(), profile); err != nil {
		h.logger.Warn("user sync failed during sign-in, continuing without local id",
			slog.String("login", profile.Login),
			slog.String("error", err.Error()),
		)
		if sess.Email == "" {
			sess.Email = profile.Login + "@github.local"
		}
	} else {
		sess.UserID = user.ID
		sess.Email = user.Email
	}

	token, err := h.tokens.Generate(sess)
	if err != nil {
		h.logger.Error("failed to generate session token", slog.String("error", err.Error()))
		writeError(w, errors.New("token generation failed"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.SessionLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleLogout clears the session cookie.
//
// POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "Logged out")
}

// HandleMe returns the signed-in user's profile.
//
// GET /api/me  [session]
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Not authenticated"))
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), sess.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

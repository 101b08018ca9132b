package handler

import (
	"log/slog"
	"net/http"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/service"
)

// BetaHandler serves the beta-tester program endpoints.
type BetaHandler struct {
	beta   *service.BetaService
	logger *slog.Logger
}

// NewBetaHandler creates a BetaHandler.
func NewBetaHandler(beta *service.BetaService, logger *slog.Logger) *BetaHandler {
	return &BetaHandler{beta: beta, logger: logger}
}

// HandleStatus reports the feature gate for the current visitor. Anonymous
// visitors get a valid "not a tester" answer, not a 401.
//
// GET /api/beta/status  [optional session]
func (h *BetaHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var email string
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		email = sess.Email
	}

	status, err := h.beta.Status(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

type betaSignupRequest struct {
	Notifications bool `json:"notifications"`
}

// HandleSignup enrolls the session user in the beta program.
//
// POST /api/beta/signup  [session]
func (h *BetaHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Not authenticated"))
		return
	}

	var req betaSignupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.beta.Signup(r.Context(), sess.Email, req.Notifications)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

type preSignupRequest struct {
	Email string `json:"email"`
}

// HandlePreSignup stores a visitor's email on the beta waitlist.
//
// POST /api/beta/presignup
func (h *BetaHandler) HandlePreSignup(w http.ResponseWriter, r *http.Request) {
	var req preSignupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.beta.PreSignup(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, entry)
}

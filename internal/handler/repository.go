package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/service"
)

// RepositoryHandler serves the persisted-repository CRUD endpoints.
type RepositoryHandler struct {
	repos  *service.RepoService
	logger *slog.Logger
}

// NewRepositoryHandler creates a RepositoryHandler.
func NewRepositoryHandler(repos *service.RepoService, logger *slog.Logger) *RepositoryHandler {
	return &RepositoryHandler{repos: repos, logger: logger}
}

// HandleList finds repositories by exactly one of three query filters.
//
// GET /api/repositories?userId=... | ?userEmail=... | ?githubId=...
//
// userId and userEmail return a list; githubId identifies at most one
// repository, so it returns a single object.
func (h *RepositoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Get("userId") != "":
		repos, err := h.repos.ListByUserID(r.Context(), q.Get("userId"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, repos)

	case q.Get("userEmail") != "":
		repos, err := h.repos.ListByUserEmail(r.Context(), q.Get("userEmail"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, repos)

	case q.Get("githubId") != "":
		githubID, err := strconv.ParseInt(q.Get("githubId"), 10, 64)
		if err != nil {
			writeError(w, apperror.ValidationFailed("githubId", "githubId must be an integer"))
			return
		}
		repo, err := h.repos.GetByGitHubID(r.Context(), githubID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, repo)

	default:
		writeError(w, apperror.ValidationFailed("query", "one of userId, userEmail, or githubId is required"))
	}
}

type createRepositoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
}

// HandleCreate creates a repository directly, without a GitHub origin.
//
// POST /api/repositories
func (h *RepositoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	repo, err := h.repos.CreateDirect(r.Context(), req.Name, req.Description, req.OwnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, repo)
}

// HandleGet reads one repository for the session user.
//
// GET /api/repositories/{id}  [session + access check]
func (h *RepositoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Not authenticated"))
		return
	}

	repo, err := h.repos.GetForUser(r.Context(), sess.Email, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, repo)
}

// HandleDelete deletes a repository (owner only; branches and languages
// cascade away with it).
//
// DELETE /api/repositories/{id}  [session + ownership]
func (h *RepositoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Not authenticated"))
		return
	}

	if err := h.repos.DeleteForUser(r.Context(), sess.Email, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Repository deleted")
}

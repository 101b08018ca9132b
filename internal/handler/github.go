package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/service"
)

// GitHubHandler serves the live GitHub listing and the import endpoint.
type GitHubHandler struct {
	repos  *service.RepoService
	logger *slog.Logger
}

// NewGitHubHandler creates a GitHubHandler.
func NewGitHubHandler(repos *service.RepoService, logger *slog.Logger) *GitHubHandler {
	return &GitHubHandler{repos: repos, logger: logger}
}

// HandleListRepos lists the session user's owned GitHub repositories, live
// from the API. Nothing here touches the database.
//
// GET /api/github/repos  [session]
func (h *GitHubHandler) HandleListRepos(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Not authenticated"))
		return
	}

	repos, err := h.repos.ListGitHubRepositories(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, repos)
}

// importRequest is the import endpoint's body: the repository the user
// picked from the live listing. Server-side the payload is only a hint —
// ownership and details are re-verified against GitHub.
type importRequest struct {
	Repository model.GitHubRepo `json:"repository"`
}

// importResponse extends the standard envelope with the warnings from the
// best-effort branch/language steps.
type importResponse struct {
	Success  bool              `json:"success"`
	Data     *model.Repository `json:"data,omitempty"`
	Error    string            `json:"error,omitempty"`
	Warnings []string          `json:"warnings"`
}

// HandleImport runs the import pipeline.
//
// POST /api/github/import  [session]
//
// 201 with the imported repository on success (partial branch/language
// failures are reported in "warnings", not as errors). A duplicate import
// is a 409 that carries the EXISTING record in "data" so the client can
// link to it.
func (h *GitHubHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Not authenticated"))
		return
	}

	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.repos.ImportFromGitHub(r.Context(), sess, req.Repository)
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) && result != nil && result.Repository != nil {
			writeJSON(w, http.StatusConflict, importResponse{
				Error:    "Repository already imported",
				Data:     result.Repository,
				Warnings: []string{},
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, importResponse{
		Success:  true,
		Data:     result.Repository,
		Warnings: result.Warnings,
	})
}

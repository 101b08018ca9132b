package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// Import caps. Branch and language import are metadata enrichment — the
// caps keep one import from hammering the GitHub API on huge repositories.
const (
	MaxImportBranches  = 10
	MaxImportLanguages = 5
)

// GitHubClient is the slice of the GitHub API the repository service needs.
// Declared here (at the consumer) so tests can swap in a fake.
type GitHubClient interface {
	ListOwnedRepositories(ctx context.Context, token string) ([]model.GitHubRepo, error)
	GetRepositoryDetails(ctx context.Context, token, fullName string) (*model.GitHubRepo, error)
	ListBranches(ctx context.Context, token, fullName string) ([]model.GitHubBranch, error)
	ListLanguages(ctx context.Context, token, fullName string) (map[string]int, error)
}

// ImportResult is what a finished import hands back: the persisted
// repository with all relations, plus any warnings from the best-effort
// branch/language steps. A failed best-effort step never fails the import —
// it leaves a warning instead, so partial failure is observable rather than
// silently swallowed.
type ImportResult struct {
	Repository *model.Repository `json:"repository"`
	Warnings   []string          `json:"warnings"`
}

// RepoService orchestrates the repository import pipeline and the
// repository CRUD endpoints.
type RepoService struct {
	repos     store.RepoStore
	branches  store.BranchStore
	languages store.LanguageStore
	users     store.UserStore
	github    GitHubClient
	catalog   *CatalogService
	logger    *slog.Logger
}

// NewRepoService creates a RepoService.
func NewRepoService(
	repos store.RepoStore,
	branches store.BranchStore,
	languages store.LanguageStore,
	users store.UserStore,
	github GitHubClient,
	catalog *CatalogService,
	logger *slog.Logger,
) *RepoService {
	return &RepoService{
		repos:     repos,
		branches:  branches,
		languages: languages,
		users:     users,
		github:    github,
		catalog:   catalog,
		logger:    logger,
	}
}

// ListGitHubRepositories lists the session user's owned repositories live
// from the GitHub API. Nothing is persisted here.
func (s *RepoService) ListGitHubRepositories(ctx context.Context, sess auth.Session) ([]model.GitHubRepo, error) {
	if sess.GitHubToken == "" {
		return nil, apperror.Unauthenticated("No GitHub access token in session")
	}
	return s.github.ListOwnedRepositories(ctx, sess.GitHubToken)
}

// ImportFromGitHub runs the import pipeline, sequential and without
// rollback:
//
//  1. require a delegated token in the session
//  2. validate the repository payload (id and name)
//  3. duplicate check by GitHub ID — on conflict the EXISTING record is
//     returned alongside the error so the client can show it
//  4. resolve the local user by session email
//  5. re-verify ownership against the GitHub API (the browser's payload is
//     not trusted)
//  6. persist the repository
//  7. best-effort: import up to MaxImportBranches branches
//  8. best-effort: import up to MaxImportLanguages languages onto the
//     default branch
//  9. re-fetch with relations and return
//
// There is no transaction spanning steps 6-8; a crash mid-import leaves a
// repository without branches, which is accepted. The record itself is the
// primary value — metadata enrichment must not roll it back.
func (s *RepoService) ImportFromGitHub(ctx context.Context, sess auth.Session, payload model.GitHubRepo) (*ImportResult, error) {
	// Step 1: session with a delegated token.
	if sess.GitHubToken == "" {
		return nil, apperror.Unauthenticated("Not authenticated")
	}

	// Step 2: payload sanity.
	if payload.ID == 0 || payload.Name == "" {
		return nil, apperror.ValidationFailed("repository", "repository id and name are required")
	}

	// Step 3: duplicate check.
	existing, err := s.repos.GetRepositoryByGitHubID(ctx, payload.ID)
	if err == nil {
		return &ImportResult{Repository: existing, Warnings: []string{}},
			apperror.Conflict("Repository already imported")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing repository: %w", err)
	}

	// Step 4: resolve the local user. The identity bridge should have
	// created it at sign-in, but that is not assumed.
	user, err := s.users.GetUserByEmail(ctx, sess.Email)
	if err != nil {
		return nil, err
	}

	// Step 5: ownership re-verification. Fetch the repository from GitHub
	// with the user's own token and compare owner logins. If GitHub can't
	// answer, ownership is unverifiable and the import is refused — an
	// unverifiable claim is treated the same as a failed one.
	details, err := s.github.GetRepositoryDetails(ctx, sess.GitHubToken, payload.FullName)
	if err != nil {
		if errors.Is(err, apperror.ErrUpstream) {
			s.logger.Warn("ownership verification failed",
				slog.String("repo", payload.FullName),
				slog.String("error", err.Error()),
			)
			return nil, apperror.Forbidden("Unable to verify repository ownership")
		}
		return nil, err
	}
	if err := authorizeGitHubOwner(user, details.Owner.Login); err != nil {
		return nil, err
	}

	// Step 6: persist the repository, using the server-verified details
	// rather than the client payload.
	repo := &model.Repository{
		Name:        details.Name,
		Description: details.Description,
		OwnerID:     user.ID,
		GitHubID:    &details.ID,
		HTMLURL:     details.HTMLURL,
		CloneURL:    details.CloneURL,
		IsPrivate:   details.Private,
	}
	if err := s.repos.CreateRepository(ctx, repo); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// Lost a race with a concurrent import of the same repository.
			if won, getErr := s.repos.GetRepositoryByGitHubID(ctx, details.ID); getErr == nil {
				return &ImportResult{Repository: won, Warnings: []string{}},
					apperror.Conflict("Repository already imported")
			}
		}
		return nil, fmt.Errorf("persisting repository: %w", err)
	}

	warnings := []string{}

	// Step 7: best-effort branch import.
	created := s.importBranches(ctx, sess.GitHubToken, repo, details.FullName, &warnings)

	// Step 8: best-effort language import onto the default branch.
	s.importLanguages(ctx, sess.GitHubToken, repo, details, created, &warnings)

	// Step 9: return the repository with everything that made it in.
	full, err := s.repos.GetRepositoryByID(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("re-fetching imported repository: %w", err)
	}

	s.logger.Info("repository imported",
		slog.String("id", full.ID),
		slog.String("name", full.Name),
		slog.Int("branches", len(full.Branches)),
		slog.Int("warnings", len(warnings)),
	)
	return &ImportResult{Repository: full, Warnings: warnings}, nil
}

// importBranches fetches the repository's branches and persists at most
// MaxImportBranches of them. Failures become warnings, never errors.
func (s *RepoService) importBranches(ctx context.Context, token string, repo *model.Repository, fullName string, warnings *[]string) []model.Branch {
	ghBranches, err := s.github.ListBranches(ctx, token, fullName)
	if err != nil {
		s.logger.Warn("branch import skipped",
			slog.String("repo", fullName),
			slog.String("error", err.Error()),
		)
		*warnings = append(*warnings, "branch import skipped: could not fetch branches from GitHub")
		return nil
	}

	if len(ghBranches) > MaxImportBranches {
		ghBranches = ghBranches[:MaxImportBranches]
	}

	// Each branch record is independent, so the inserts fan out and join
	// before the language step. Goroutines write to their own slot; only
	// the warnings list is shared.
	created := make([]model.Branch, len(ghBranches))
	ok := make([]bool, len(ghBranches))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, gb := range ghBranches {
		g.Go(func() error {
			branch := &model.Branch{
				Name:         gb.Name,
				RepositoryID: repo.ID,
				LastCommit:   gb.CommitSHA,
				IsProtected:  gb.Protected,
			}
			if err := s.branches.CreateBranch(gctx, branch); err != nil {
				s.logger.Warn("branch import failed",
					slog.String("repo", repo.ID),
					slog.String("branch", gb.Name),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				*warnings = append(*warnings, fmt.Sprintf("branch %q could not be imported", gb.Name))
				mu.Unlock()
				return nil // best-effort: never cancel the siblings
			}
			created[i] = *branch
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait() // goroutines always return nil

	out := created[:0:0]
	for i := range created {
		if ok[i] {
			out = append(out, created[i])
		}
	}
	return out
}

// importLanguages fetches the language breakdown and attaches at most
// MaxImportLanguages entries to the repository's default branch.
func (s *RepoService) importLanguages(ctx context.Context, token string, repo *model.Repository, details *model.GitHubRepo, branches []model.Branch, warnings *[]string) {
	if len(branches) == 0 {
		return
	}

	langBytes, err := s.github.ListLanguages(ctx, token, details.FullName)
	if err != nil {
		s.logger.Warn("language import skipped",
			slog.String("repo", details.FullName),
			slog.String("error", err.Error()),
		)
		*warnings = append(*warnings, "language import skipped: could not fetch languages from GitHub")
		return
	}
	if len(langBytes) == 0 {
		return
	}

	target := defaultBranch(branches, details.DefaultBranch)
	if target == nil {
		*warnings = append(*warnings, "language import skipped: no default branch among imported branches")
		return
	}

	// GitHub returns a map; byte count descending (name ascending on ties)
	// makes "the top 5 languages" deterministic.
	names := make([]string, 0, len(langBytes))
	for name := range langBytes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if langBytes[names[i]] != langBytes[names[j]] {
			return langBytes[names[i]] > langBytes[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > MaxImportLanguages {
		names = names[:MaxImportLanguages]
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			lang := &model.Language{
				Name:     name,
				Category: s.catalog.CategorizeFramework(name),
				BranchID: &target.ID,
			}
			if err := s.languages.CreateLanguage(gctx, lang); err != nil {
				s.logger.Warn("language import failed",
					slog.String("repo", repo.ID),
					slog.String("language", name),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				*warnings = append(*warnings, fmt.Sprintf("language %q could not be imported", name))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines always return nil
}

// defaultBranch picks the branch languages should attach to: the GitHub
// default branch if it made the cut, else "main", else "master".
func defaultBranch(branches []model.Branch, ghDefault string) *model.Branch {
	for _, candidate := range []string{ghDefault, "main", "master"} {
		if candidate == "" {
			continue
		}
		for i := range branches {
			if branches[i].Name == candidate {
				return &branches[i]
			}
		}
	}
	return nil
}

// authorizeGitHubOwner is the ownership predicate for the import path:
// only the GitHub account that owns the repository may import it, not
// collaborators. Every GitHub-facing mutation goes through here.
func authorizeGitHubOwner(user *model.User, ownerLogin string) error {
	if user.GitHubUsername == "" || !strings.EqualFold(user.GitHubUsername, ownerLogin) {
		return apperror.Forbidden(fmt.Sprintf(
			"Repository belongs to %s, not %s. Upgrade to premium to import repositories you don't own.",
			ownerLogin, user.GitHubUsername,
		))
	}
	return nil
}

// authorizeRepositoryAccess is the ownership predicate for persisted
// repositories: the owner and granted members may access, nobody else.
// Every repository read/delete endpoint goes through here.
func authorizeRepositoryAccess(user *model.User, repo *model.Repository) error {
	if repo.OwnerID == user.ID {
		return nil
	}
	for _, m := range repo.Members {
		if m.UserID == user.ID {
			return nil
		}
	}
	return apperror.Forbidden("You do not have access to this repository")
}

// CreateDirect creates a repository without a GitHub origin.
func (s *RepoService) CreateDirect(ctx context.Context, name, description, ownerID string) (*model.Repository, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "repository name is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperror.ValidationFailed("ownerId", "owner ID is required")
	}

	// Confirm the owner exists up front — a clean 404 beats a foreign key
	// violation surfacing as a 500.
	if _, err := s.users.GetUserByID(ctx, ownerID); err != nil {
		return nil, err
	}

	repo := &model.Repository{
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     ownerID,
	}
	if err := s.repos.CreateRepository(ctx, repo); err != nil {
		return nil, err
	}

	full, err := s.repos.GetRepositoryByID(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("re-fetching created repository: %w", err)
	}

	s.logger.Info("repository created", slog.String("id", full.ID), slog.String("name", full.Name))
	return full, nil
}

// ListByUserID returns the repositories a user owns or is a member of.
func (s *RepoService) ListByUserID(ctx context.Context, userID string) ([]model.Repository, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	return s.repos.ListRepositoriesForUser(ctx, userID)
}

// ListByUserEmail resolves the user by email and lists their repositories.
func (s *RepoService) ListByUserEmail(ctx context.Context, email string) ([]model.Repository, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperror.ValidationFailed("userEmail", "user email is required")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.repos.ListRepositoriesForUser(ctx, user.ID)
}

// GetByGitHubID finds the repository imported from a GitHub repository.
func (s *RepoService) GetByGitHubID(ctx context.Context, githubID int64) (*model.Repository, error) {
	if githubID == 0 {
		return nil, apperror.ValidationFailed("githubId", "GitHub ID is required")
	}
	return s.repos.GetRepositoryByGitHubID(ctx, githubID)
}

// GetForUser reads one repository on behalf of the session user, enforcing
// the access predicate.
func (s *RepoService) GetForUser(ctx context.Context, userEmail, repoID string) (*model.Repository, error) {
	user, err := s.users.GetUserByEmail(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	repo, err := s.repos.GetRepositoryByID(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRepositoryAccess(user, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// DeleteForUser deletes a repository on behalf of the session user.
// Branches and their languages cascade away with it.
func (s *RepoService) DeleteForUser(ctx context.Context, userEmail, repoID string) error {
	user, err := s.users.GetUserByEmail(ctx, userEmail)
	if err != nil {
		return err
	}
	repo, err := s.repos.GetRepositoryByID(ctx, repoID)
	if err != nil {
		return err
	}
	// Deletion is owner-only: membership grants read access, not teardown.
	if repo.OwnerID != user.ID {
		return apperror.Forbidden("Only the repository owner can delete it")
	}

	if err := s.repos.DeleteRepository(ctx, repoID); err != nil {
		return err
	}

	s.logger.Info("repository deleted", slog.String("id", repoID), slog.String("user", user.ID))
	return nil
}

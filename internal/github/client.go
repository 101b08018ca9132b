// Package github is a thin, read-only client for the GitHub REST API.
//
// Every call is made with the DELEGATED TOKEN from the caller's session —
// there is no app-level credential here. We build a go-github client per
// call; the construction is cheap (it's just an http.Client wrapper) and it
// keeps tokens from ever being shared between requests.
//
// Error policy: any transport failure or non-2xx status is surfaced as
// apperror.Upstream with a client-safe message; the underlying cause is
// only ever logged server-side. No retries, no backoff — the external API
// is consumed on its own terms.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v71/github"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
)

// ListReposPageSize matches the original product behaviour: at most the 100
// most-recently-updated repositories are considered.
const ListReposPageSize = 100

// Client issues authenticated read requests against the GitHub API.
type Client struct {
	logger  *slog.Logger
	baseURL *url.URL // non-nil only in tests
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root. Used in tests to
// target an httptest server. The URL must end with a trailing slash.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		u, err := url.Parse(raw)
		if err == nil {
			c.baseURL = u
		}
	}
}

// New creates a Client.
func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// api builds a go-github client authenticated with the delegated token.
func (c *Client) api(token string) *gogithub.Client {
	gh := gogithub.NewClient(nil).WithAuthToken(token)
	if c.baseURL != nil {
		gh.BaseURL = c.baseURL
	}
	return gh
}

// ListOwnedRepositories returns the authenticated user's repositories,
// filtered to only those the account actually OWNS.
//
// GitHub's /user/repos endpoint also returns repositories the user merely
// collaborates on. The owners-only policy of the free tier is enforced here
// at the client boundary: we fetch the account's own login first, then drop
// every repository whose owner login differs.
func (c *Client) ListOwnedRepositories(ctx context.Context, token string) ([]model.GitHubRepo, error) {
	gh := c.api(token)

	me, _, err := gh.Users.Get(ctx, "")
	if err != nil {
		c.logger.Error("github: fetching authenticated user failed", slog.String("error", err.Error()))
		return nil, apperror.Upstream("Failed to fetch repositories from GitHub", err)
	}

	repos, _, err := gh.Repositories.ListByAuthenticatedUser(ctx, &gogithub.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: ListReposPageSize},
	})
	if err != nil {
		c.logger.Error("github: listing repositories failed", slog.String("error", err.Error()))
		return nil, apperror.Upstream("Failed to fetch repositories from GitHub", err)
	}

	login := me.GetLogin()
	owned := make([]model.GitHubRepo, 0, len(repos))
	for _, r := range repos {
		if r.GetOwner().GetLogin() != login {
			continue
		}
		owned = append(owned, projectRepo(r))
	}

	return owned, nil
}

// GetRepositoryDetails fetches a single repository by its "owner/name" full
// name. The import pipeline uses this to re-verify ownership server-side —
// the repository payload sent by the browser is not trusted.
func (c *Client) GetRepositoryDetails(ctx context.Context, token, fullName string) (*model.GitHubRepo, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	repo, _, err := c.api(token).Repositories.Get(ctx, owner, name)
	if err != nil {
		c.logger.Error("github: fetching repository failed",
			slog.String("repo", fullName),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("Unable to verify repository ownership", err)
	}

	projected := projectRepo(repo)
	return &projected, nil
}

// ListBranches returns the branches of a repository.
func (c *Client) ListBranches(ctx context.Context, token, fullName string) ([]model.GitHubBranch, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	branches, _, err := c.api(token).Repositories.ListBranches(ctx, owner, name, &gogithub.BranchListOptions{
		ListOptions: gogithub.ListOptions{PerPage: ListReposPageSize},
	})
	if err != nil {
		c.logger.Error("github: listing branches failed",
			slog.String("repo", fullName),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("Failed to fetch branches from GitHub", err)
	}

	out := make([]model.GitHubBranch, 0, len(branches))
	for _, b := range branches {
		out = append(out, model.GitHubBranch{
			Name:      b.GetName(),
			CommitSHA: b.GetCommit().GetSHA(),
			Protected: b.GetProtected(),
		})
	}
	return out, nil
}

// ListLanguages returns the language breakdown of a repository as a map of
// language name to byte count.
func (c *Client) ListLanguages(ctx context.Context, token, fullName string) (map[string]int, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	langs, _, err := c.api(token).Repositories.ListLanguages(ctx, owner, name)
	if err != nil {
		c.logger.Error("github: listing languages failed",
			slog.String("repo", fullName),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("Failed to fetch languages from GitHub", err)
	}
	return langs, nil
}

// projectRepo maps go-github's repository object onto our projection.
func projectRepo(r *gogithub.Repository) model.GitHubRepo {
	return model.GitHubRepo{
		ID:              r.GetID(),
		Name:            r.GetName(),
		FullName:        r.GetFullName(),
		Description:     r.GetDescription(),
		HTMLURL:         r.GetHTMLURL(),
		CloneURL:        r.GetCloneURL(),
		Private:         r.GetPrivate(),
		Language:        r.GetLanguage(),
		StargazersCount: r.GetStargazersCount(),
		ForksCount:      r.GetForksCount(),
		CreatedAt:       r.GetCreatedAt().Format(time.RFC3339),
		UpdatedAt:       r.GetUpdatedAt().Format(time.RFC3339),
		DefaultBranch:   r.GetDefaultBranch(),
		Owner: model.GitHubOwner{
			Login:     r.GetOwner().GetLogin(),
			AvatarURL: r.GetOwner().GetAvatarURL(),
		},
	}
}

func splitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", apperror.ValidationFailed("fullName",
			fmt.Sprintf("invalid repository full name %q", fullName))
	}
	return owner, name, nil
}

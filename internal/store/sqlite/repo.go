package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// compile-time check that *DB implements store.RepoStore
var _ store.RepoStore = (*DB)(nil)

const repoColumns = `id, name, description, owner_id, github_id, html_url, clone_url,
	is_private, created_at, updated_at`

// CreateRepository inserts a new repository.
func (db *DB) CreateRepository(ctx context.Context, repo *model.Repository) error {
	repo.ID = xid.New().String()
	now := time.Now()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO repositories (id, name, description, owner_id, github_id, html_url,
			clone_url, is_private, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID,
		repo.Name,
		repo.Description,
		repo.OwnerID,
		nullInt64(repo.GitHubID),
		repo.HTMLURL,
		repo.CloneURL,
		repo.IsPrivate,
		repo.CreatedAt,
		repo.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Repository already exists")
		}
		return fmt.Errorf("sqlite: inserting repository %q: %w", repo.Name, err)
	}

	repo.Branches = []model.Branch{}
	repo.Members = []model.RepoUser{}
	return nil
}

// GetRepositoryByID retrieves a repository with owner, branches (and their
// languages), and members attached.
func (db *DB) GetRepositoryByID(ctx context.Context, id string) (*model.Repository, error) {
	return db.getRepositoryWhere(ctx, `id = ?`, id)
}

// GetRepositoryByGitHubID retrieves a repository by its external GitHub ID.
func (db *DB) GetRepositoryByGitHubID(ctx context.Context, githubID int64) (*model.Repository, error) {
	return db.getRepositoryWhere(ctx, `github_id = ?`, githubID)
}

func (db *DB) getRepositoryWhere(ctx context.Context, where string, arg any) (*model.Repository, error) {
	repos, err := db.listRepositoriesBase(ctx, where, arg)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, apperror.NotFound("repository", fmt.Sprintf("%v", arg))
	}

	repo := &repos[0]
	if err := db.attachRepositoryRelations(ctx, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// ListRepositoriesForUser returns repositories the user owns plus those
// they're a member of, each with full relations attached.
func (db *DB) ListRepositoriesForUser(ctx context.Context, userID string) ([]model.Repository, error) {
	repos, err := db.listRepositoriesBase(ctx,
		`owner_id = ? OR id IN (SELECT repository_id FROM repo_users WHERE user_id = ?)`,
		userID, userID,
	)
	if err != nil {
		return nil, err
	}

	for i := range repos {
		if err := db.attachRepositoryRelations(ctx, &repos[i]); err != nil {
			return nil, err
		}
	}
	return repos, nil
}

// listRepositoriesBase fetches repository rows without relations.
func (db *DB) listRepositoriesBase(ctx context.Context, where string, args ...any) ([]model.Repository, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE `+where+` ORDER BY created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing repositories: %w", err)
	}
	defer rows.Close()

	repos := []model.Repository{}
	for rows.Next() {
		var (
			r        model.Repository
			githubID sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Description, &r.OwnerID, &githubID,
			&r.HTMLURL, &r.CloneURL, &r.IsPrivate, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning repository row: %w", err)
		}
		if githubID.Valid {
			v := githubID.Int64
			r.GitHubID = &v
		}
		r.Branches = []model.Branch{}
		r.Members = []model.RepoUser{}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating repositories: %w", err)
	}
	return repos, nil
}

// attachRepositoryRelations loads the owner, the branches with their
// languages, and the memberships with their users.
func (db *DB) attachRepositoryRelations(ctx context.Context, repo *model.Repository) error {
	owner, err := db.getUserBase(ctx, `id = ?`, repo.OwnerID)
	if err != nil {
		return err
	}
	repo.Owner = owner

	branches, err := db.ListBranchesForRepository(ctx, repo.ID)
	if err != nil {
		return err
	}
	repo.Branches = branches

	members, err := db.ListMembersForRepository(ctx, repo.ID)
	if err != nil {
		return err
	}
	repo.Members = members
	return nil
}

// DeleteRepository removes a repository. Branches and their languages go
// with it via the cascade chain.
func (db *DB) DeleteRepository(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting repository %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("repository", id)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

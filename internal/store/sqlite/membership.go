package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// compile-time check that *DB implements store.MembershipStore
var _ store.MembershipStore = (*DB)(nil)

// GrantMembership links a user to a repository with a role. The
// (user, repository) pair is unique — granting twice is a conflict.
func (db *DB) GrantMembership(ctx context.Context, m *model.RepoUser) error {
	m.ID = xid.New().String()
	m.CreatedAt = time.Now()
	if m.Role == "" {
		m.Role = model.RoleContributor
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO repo_users (id, user_id, repository_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID,
		m.UserID,
		m.RepositoryID,
		string(m.Role),
		m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user is already a member of this repository")
		}
		return fmt.Errorf("sqlite: granting membership (user=%s repo=%s): %w", m.UserID, m.RepositoryID, err)
	}
	return nil
}

// RevokeMembership removes a user's membership in a repository.
func (db *DB) RevokeMembership(ctx context.Context, userID, repositoryID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM repo_users WHERE user_id = ? AND repository_id = ?`,
		userID, repositoryID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: revoking membership (user=%s repo=%s): %w", userID, repositoryID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("membership", userID)
	}
	return nil
}

// ListMembersForRepository returns a repository's memberships with each
// member's user profile attached (shallow, no nested relations).
func (db *DB) ListMembersForRepository(ctx context.Context, repositoryID string) ([]model.RepoUser, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, repository_id, role, created_at
		 FROM repo_users WHERE repository_id = ? ORDER BY created_at`,
		repositoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members for repository %s: %w", repositoryID, err)
	}
	defer rows.Close()

	members := []model.RepoUser{}
	for rows.Next() {
		var (
			m    model.RepoUser
			role string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.RepositoryID, &role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning membership row: %w", err)
		}
		m.Role = model.Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating memberships: %w", err)
	}

	for i := range members {
		user, err := db.getUserBase(ctx, `id = ?`, members[i].UserID)
		if err != nil {
			return nil, err
		}
		members[i].User = user
	}
	return members, nil
}

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

// compile-time check that *DB implements store.UserStore
var _ store.UserStore = (*DB)(nil)

const userColumns = `id, github_id, github_username, name, email, avatar_url, role,
	is_beta_tester, beta_signup_at, beta_notifications, created_at, updated_at`

// CreateUser inserts a new user.
//
// ID GENERATION WITH xid:
// xid generates globally unique IDs that are 20 chars, URL-safe, and
// sortable by creation time (they start with a timestamp).
// Example: "cv37rs3pp9olc6atsptg".
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleOwner
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, github_username, name, email, avatar_url, role,
			is_beta_tester, beta_signup_at, beta_notifications, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.GitHubUsername,
		user.Name,
		user.Email,
		user.AvatarURL,
		string(user.Role),
		user.IsBetaTester,
		nullTime(user.BetaSignupAt),
		user.BetaNotifications,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("user with email %s already exists", user.Email))
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	user.Repositories = []model.Repository{}
	user.Memberships = []model.RepoUser{}
	return nil
}

// UpsertUserFromGitHub inserts or updates a user keyed by their GitHub ID.
//
// We look the user up first so an existing account KEEPS its internal ID —
// signing in twice with the same GitHub account must yield exactly one
// record, with the profile fields refreshed to the most recent sign-in.
func (db *DB) UpsertUserFromGitHub(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		// User already exists — refresh their profile in case login/email/avatar changed
		user.ID = existingID
		user.UpdatedAt = time.Now()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET github_username = ?, name = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.GitHubUsername,
			user.Name,
			user.Email,
			user.AvatarURL,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	return db.CreateUser(ctx, user)
}

// GetUserByID retrieves a user with their repositories and memberships.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserWhere(ctx, `id = ?`, id)
}

// GetUserByEmail retrieves a user by their unique email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserWhere(ctx, `email = ?`, email)
}

// GetUserByGitHubUsername retrieves a user by their GitHub login.
func (db *DB) GetUserByGitHubUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUserWhere(ctx, `github_username = ?`, username)
}

func (db *DB) getUserWhere(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := db.getUserBase(ctx, where, arg)
	if err != nil {
		return nil, err
	}
	if err := db.attachUserRelations(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// getUserBase fetches a user row without relations.
func (db *DB) getUserBase(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u            model.User
		role         string
		betaSignupAt sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(
		&u.ID,
		&u.GitHubID,
		&u.GitHubUsername,
		&u.Name,
		&u.Email,
		&u.AvatarURL,
		&role,
		&u.IsBetaTester,
		&betaSignupAt,
		&u.BetaNotifications,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("%v", arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	u.Role = model.Role(role)
	if betaSignupAt.Valid {
		t := betaSignupAt.Time
		u.BetaSignupAt = &t
	}
	u.Repositories = []model.Repository{}
	u.Memberships = []model.RepoUser{}
	return &u, nil
}

// attachUserRelations loads the user's owned repositories (shallow) and
// their memberships. Repository relations here stay shallow to avoid
// recursing back into users.
func (db *DB) attachUserRelations(ctx context.Context, u *model.User) error {
	repos, err := db.listRepositoriesBase(ctx, `owner_id = ?`, u.ID)
	if err != nil {
		return err
	}
	u.Repositories = repos

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, repository_id, role, created_at
		 FROM repo_users WHERE user_id = ?`,
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: listing memberships for user %s: %w", u.ID, err)
	}
	defer rows.Close()

	memberships := []model.RepoUser{}
	for rows.Next() {
		var (
			m    model.RepoUser
			role string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.RepositoryID, &role, &m.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: scanning membership row: %w", err)
		}
		m.Role = model.Role(role)
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating memberships: %w", err)
	}
	u.Memberships = memberships
	return nil
}

// UpdateUser modifies a user's mutable profile fields.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET github_username = ?, name = ?, email = ?, avatar_url = ?, role = ?,
		     is_beta_tester = ?, beta_signup_at = ?, beta_notifications = ?, updated_at = ?
		 WHERE id = ?`,
		user.GitHubUsername,
		user.Name,
		user.Email,
		user.AvatarURL,
		string(user.Role),
		user.IsBetaTester,
		nullTime(user.BetaSignupAt),
		user.BetaNotifications,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// DeleteUser removes a user. Owned repositories (and their branches and
// languages) go with it via the cascade chain.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

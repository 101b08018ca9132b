// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Store   (Data layer)     → reads/writes to the database
//
// Services take store INTERFACES, not the concrete *sqlite.DB, so tests can
// pass hand-written mocks and the business rules stay testable with plain
// function calls. Services return domain errors (apperror); the handler
// layer translates those to HTTP status codes exactly once.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// emailPattern is deliberately loose: something@something.tld. Real email
// validation happens when mail actually gets sent; this only catches typos.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserService handles user accounts: the GitHub identity bridge plus plain
// CRUD for the user endpoints.
type UserService struct {
	users  store.UserStore
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users store.UserStore, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// SyncGitHubUser is the identity bridge: after a successful OAuth exchange
// it upserts the local user record keyed by the GitHub user ID.
//
// Signing in twice with the same GitHub account yields exactly one record,
// refreshed to the most recent profile. GitHub may hide the user's email;
// the "<login>@github.local" fallback keeps our unique-email invariant
// intact without inventing a deliverable address.
//
// CALLERS BEWARE: sign-in must not depend on this succeeding. The callback
// handler logs a failure and continues — a database outage should never
// lock users out of authentication.
func (s *UserService) SyncGitHubUser(ctx context.Context, profile *auth.Profile) (*model.User, error) {
	if profile == nil || profile.ID == 0 {
		return nil, apperror.ValidationFailed("profile", "GitHub profile is required")
	}

	email := profile.Email
	if email == "" {
		email = fmt.Sprintf("%s@github.local", profile.Login)
	}

	user := &model.User{
		GitHubID:       profile.ID,
		GitHubUsername: profile.Login,
		Name:           profile.Name,
		Email:          email,
		AvatarURL:      profile.AvatarURL,
	}

	if err := s.users.UpsertUserFromGitHub(ctx, user); err != nil {
		s.logger.Error("failed to sync GitHub user",
			slog.Int64("githubId", profile.ID),
			slog.String("login", profile.Login),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("syncing GitHub user: %w", err)
	}

	s.logger.Info("user synced from GitHub",
		slog.String("id", user.ID),
		slog.String("login", user.GitHubUsername),
	)
	return user, nil
}

// CreateUser creates a user directly (no GitHub origin).
func (s *UserService) CreateUser(ctx context.Context, name, email, githubUsername string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if !emailPattern.MatchString(email) {
		return nil, apperror.ValidationFailed("email", "email format is invalid")
	}

	user := &model.User{
		Name:           strings.TrimSpace(name),
		Email:          email,
		GitHubUsername: strings.TrimSpace(githubUsername),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", slog.String("id", user.ID), slog.String("email", user.Email))
	return user, nil
}

// GetUser retrieves a user by ID with repositories and memberships attached.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

// GetUserByEmail retrieves a user by their unique email.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	return s.users.GetUserByEmail(ctx, email)
}

// UpdateUser modifies a user's profile. Empty fields mean "don't change".
func (s *UserService) UpdateUser(ctx context.Context, id, name, email, avatarURL string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	// Fetch-then-update: the NotFound comes from the read, and we return
	// the full updated record to the caller.
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if email = strings.TrimSpace(email); email != "" {
		if !emailPattern.MatchString(email) {
			return nil, apperror.ValidationFailed("email", "email format is invalid")
		}
		user.Email = email
	}
	if avatarURL = strings.TrimSpace(avatarURL); avatarURL != "" {
		user.AvatarURL = avatarURL
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		s.logger.Error("failed to update user",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info("user updated", slog.String("id", user.ID))
	return user, nil
}

// DeleteUser removes a user. Owned repositories cascade away with them.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "user ID is required")
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.String("id", id))
	return nil
}

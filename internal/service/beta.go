package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// BetaStatus is the feature-gate payload the client polls.
type BetaStatus struct {
	IsBetaTester      bool       `json:"isBetaTester"`
	BetaSignupAt      *time.Time `json:"betaSignupDate,omitempty"`
	BetaNotifications bool       `json:"betaNotifications"`
}

// BetaService runs the beta-tester program: the feature-gate status check,
// the signup, and the pre-signup waitlist for visitors without an account.
type BetaService struct {
	users      store.UserStore
	presignups store.PreSignupStore
	logger     *slog.Logger
}

// NewBetaService creates a BetaService.
func NewBetaService(users store.UserStore, presignups store.PreSignupStore, logger *slog.Logger) *BetaService {
	return &BetaService{users: users, presignups: presignups, logger: logger}
}

// Status reports whether the current session's user is a beta tester.
// Anonymous visitors and unknown emails are simply not beta testers —
// neither is an error, the gate just stays closed.
func (s *BetaService) Status(ctx context.Context, userEmail string) (*BetaStatus, error) {
	if userEmail == "" {
		return &BetaStatus{}, nil
	}

	user, err := s.users.GetUserByEmail(ctx, userEmail)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &BetaStatus{}, nil
		}
		return nil, fmt.Errorf("checking beta status: %w", err)
	}

	return &BetaStatus{
		IsBetaTester:      user.IsBetaTester,
		BetaSignupAt:      user.BetaSignupAt,
		BetaNotifications: user.BetaNotifications,
	}, nil
}

// Signup enrolls the session user in the beta program. Idempotent: signing
// up twice keeps the original signup timestamp. A matching pre-signup
// waitlist entry is marked converted, best-effort.
func (s *BetaService) Signup(ctx context.Context, userEmail string, notifications bool) (*model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, userEmail)
	if err != nil {
		return nil, err
	}

	if !user.IsBetaTester {
		now := time.Now()
		user.IsBetaTester = true
		user.BetaSignupAt = &now
	}
	user.BetaNotifications = notifications

	if err := s.users.UpdateUser(ctx, user); err != nil {
		s.logger.Error("failed to enroll beta tester",
			slog.String("user", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("enrolling beta tester: %w", err)
	}

	if err := s.presignups.MarkPreSignupConverted(ctx, user.Email); err != nil {
		// The enrollment itself succeeded; a stale waitlist entry is not
		// worth failing over.
		s.logger.Warn("failed to mark pre-signup converted",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("beta tester enrolled", slog.String("user", user.ID))
	return user, nil
}

// PreSignup stores a visitor's email on the beta waitlist before they have
// an account. Re-submitting the same email is a no-op returning the
// original entry.
func (s *BetaService) PreSignup(ctx context.Context, email string) (*model.PreSignupEmail, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if !emailPattern.MatchString(email) {
		return nil, apperror.ValidationFailed("email", "email format is invalid")
	}

	entry, err := s.presignups.UpsertPreSignup(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("storing pre-signup: %w", err)
	}

	s.logger.Info("beta pre-signup stored", slog.String("email", email))
	return entry, nil
}

// Package auth provides the GitHub OAuth sign-in flow and JWT session
// management for the Agamify API.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. User visits /auth/github/login → redirected to GitHub
// 2. GitHub calls back /auth/github/callback with a code
// 3. Server exchanges the code for the user's GitHub profile AND an OAuth
//    access token delegated by the user
// 4. Server upserts the local user (best effort) and issues a JWT session
//    token in an HttpOnly cookie
// 5. On subsequent API calls, middleware reads the cookie, validates the
//    JWT, and puts the Session in the request context
//
// WHY JWT?
// JWT (JSON Web Token) is stateless — the server doesn't need to store
// session data. Everything needed (local user id, email, delegated GitHub
// token) is inside the signed token. The signature ensures nobody can
// tamper with it without the secret key.
//
// The delegated GitHub access token lives ONLY inside the session token.
// It is never written to the database — when the session ends, the
// credential is gone with it.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the identity carried by a signed-in request.
//
// UserID may be empty: local account sync is best-effort, so a user whose
// upsert failed during sign-in still gets a session (spelled out in the
// callback handler). Email and GitHubToken always come from GitHub itself.
type Session struct {
	UserID      string // local user id ("" if the sign-in upsert failed)
	Email       string // email from the GitHub profile
	GitHubToken string // delegated OAuth access token for the GitHub API
}

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations — keep it safe, rotate it
// periodically in production.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. It embeds jwt.RegisteredClaims which includes
// standard fields like Issuer, Subject, ExpiresAt, IssuedAt.
//
// "sub" (Subject) holds the local user ID. Email and the delegated GitHub
// token ride along as private claims — the same shape the session token of
// a NextAuth-style app would have.
type claims struct {
	Email       string `json:"email,omitempty"`
	GitHubToken string `json:"ght,omitempty"`
	jwt.RegisteredClaims
}

// SessionLifetime is how long a sign-in session stays valid. These are
// interactive browser sessions, not short-lived API tokens.
const SessionLifetime = 24 * time.Hour

// Generate creates and signs a new JWT session token.
//
// Signing algorithm: HS256 (HMAC-SHA256)
// - Symmetric: same key for signing and verifying
// - Fast and simple — good for single-server deployments
func (s *TokenService) Generate(sess Session) (string, error) {
	return s.GenerateWithDuration(sess, SessionLifetime)
}

// GenerateWithDuration creates a session token with a custom expiry.
// Used in tests.
func (s *TokenService) GenerateWithDuration(sess Session, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Email:       sess.Email,
		GitHubToken: sess.GitHubToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    "agamify",
		},
	}

	// jwt.NewWithClaims creates an unsigned token with the given algorithm.
	// SignedString(key) signs it and returns the complete JWT string.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the Session it
// carries.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future)
//   - Issuer matches "agamify" (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Validate(tokenStr string) (Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Reject tokens that aren't signed with HS256
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer("agamify"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// Translate jwt library errors into cleaner messages
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, fmt.Errorf("auth: token expired")
		}
		return Session{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Session{}, fmt.Errorf("auth: invalid token claims")
	}

	if c.Email == "" {
		return Session{}, fmt.Errorf("auth: token has no email")
	}

	return Session{
		UserID:      c.Subject,
		Email:       c.Email,
		GitHubToken: c.GitHubToken,
	}, nil
}

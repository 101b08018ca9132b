// Package model defines the data structures used throughout the application.
package model

import "time"

// Role describes a user's relationship to a repository.
type Role string

const (
	RoleOwner          Role = "OWNER"
	RoleContributor    Role = "CONTRIBUTOR"
	RoleNonContributor Role = "NON_CONTRIBUTOR"
)

// User represents a registered user account.
//
// We use GitHub OAuth as the identity provider, so the primary external
// identifier is the GitHub user ID (an integer). We still generate our own
// internal string ID (xid) for consistency with the other entities and to
// avoid tying our primary keys to a third-party's numbering scheme.
//
// Email is UNIQUE. GitHub may hide the user's email, in which case the
// identity bridge substitutes "<login>@github.local" so the uniqueness
// invariant still holds.
type User struct {
	ID                string     `json:"id"                db:"id"`
	GitHubID          int64      `json:"githubId"          db:"github_id"`       // GitHub's numeric user ID
	GitHubUsername    string     `json:"githubUsername"    db:"github_username"` // GitHub login, e.g. "alice"
	Name              string     `json:"name"              db:"name"`            // Display name (may be empty)
	Email             string     `json:"email"             db:"email"`           // Unique
	AvatarURL         string     `json:"avatarUrl"         db:"avatar_url"`      // Profile picture URL
	Role              Role       `json:"role"              db:"role"`            // Account-level role
	IsBetaTester      bool       `json:"isBetaTester"      db:"is_beta_tester"`
	BetaSignupAt      *time.Time `json:"betaSignupDate"    db:"beta_signup_at"`
	BetaNotifications bool       `json:"betaNotifications" db:"beta_notifications"`
	CreatedAt         time.Time  `json:"createdAt"         db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt"         db:"updated_at"`

	// Eagerly loaded relations. Always present (empty slices, never null)
	// on reads that return a full user.
	Repositories []Repository `json:"repositories"`
	Memberships  []RepoUser   `json:"repoUsers"`
}

// PreSignupEmail is an email address captured before the visitor had an
// account, used by the beta program to follow up. When the visitor later
// signs up for the beta, the record is marked converted.
type PreSignupEmail struct {
	ID          string     `json:"id"          db:"id"`
	Email       string     `json:"email"       db:"email"`
	SubmittedAt time.Time  `json:"submittedAt" db:"submitted_at"`
	Converted   bool       `json:"converted"   db:"converted"`
	ConvertedAt *time.Time `json:"convertedAt" db:"converted_at"`
}

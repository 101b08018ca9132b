// Package store defines the persistence interfaces for the Agamify entities.
//
// One interface per entity keeps service dependencies honest: the import
// pipeline asks for exactly the stores it touches, and tests mock only
// those. The sqlite subpackage implements all of them on a single *DB.
package store

import (
	"context"

	"github.com/agamify/agamify/internal/model"
)

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts a new user. ID and timestamps are assigned here.
	CreateUser(ctx context.Context, user *model.User) error
	// UpsertUserFromGitHub inserts or updates a user keyed by GitHub ID.
	// On update the existing internal ID is kept and the profile fields
	// (name, email, username, avatar) are refreshed.
	UpsertUserFromGitHub(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubUsername(ctx context.Context, username string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	// DeleteUser removes a user and, via cascade, their owned repositories.
	DeleteUser(ctx context.Context, id string) error
}

// RepoStore persists imported repositories.
//
// All single-entity reads eagerly attach the owner, the branches (with
// their languages), and the memberships. Empty relations come back as
// empty slices, never nil, so JSON encodes them as [].
type RepoStore interface {
	CreateRepository(ctx context.Context, repo *model.Repository) error
	GetRepositoryByID(ctx context.Context, id string) (*model.Repository, error)
	GetRepositoryByGitHubID(ctx context.Context, githubID int64) (*model.Repository, error)
	// ListRepositoriesForUser returns repositories the user owns plus those
	// they are a member of.
	ListRepositoriesForUser(ctx context.Context, userID string) ([]model.Repository, error)
	// DeleteRepository removes a repository and, via cascade, its branches
	// and their languages.
	DeleteRepository(ctx context.Context, id string) error
}

// BranchStore persists branches. (name, repositoryID) is unique.
type BranchStore interface {
	CreateBranch(ctx context.Context, branch *model.Branch) error
	GetBranchByID(ctx context.Context, id string) (*model.Branch, error)
	GetBranchByNameAndRepository(ctx context.Context, name, repositoryID string) (*model.Branch, error)
	ListBranchesForRepository(ctx context.Context, repositoryID string) ([]model.Branch, error)
	// AppendMigrationTarget adds a framework name to the branch's
	// migratesTo list.
	AppendMigrationTarget(ctx context.Context, branchID, framework string) error
	DeleteBranch(ctx context.Context, id string) error
}

// LanguageStore persists detected languages and the supported-framework
// catalog (catalog entries have no branch; their names are unique).
type LanguageStore interface {
	CreateLanguage(ctx context.Context, lang *model.Language) error
	GetLanguageByID(ctx context.Context, id string) (*model.Language, error)
	GetCatalogEntryByName(ctx context.Context, name string) (*model.Language, error)
	ListLanguagesForBranch(ctx context.Context, branchID string) ([]model.Language, error)
	ListCatalogByCategory(ctx context.Context, category model.Category) ([]model.Language, error)
	// UpsertCatalogEntry creates a catalog entry if no entry with that name
	// exists yet; existing entries are left untouched (seeding is
	// idempotent).
	UpsertCatalogEntry(ctx context.Context, name, version string, category model.Category) error
	UpdateLanguageVersion(ctx context.Context, id, version string) error
	DeleteLanguage(ctx context.Context, id string) error
}

// MembershipStore persists RepoUser grants.
type MembershipStore interface {
	GrantMembership(ctx context.Context, m *model.RepoUser) error
	RevokeMembership(ctx context.Context, userID, repositoryID string) error
	ListMembersForRepository(ctx context.Context, repositoryID string) ([]model.RepoUser, error)
}

// PreSignupStore persists beta pre-signup emails.
type PreSignupStore interface {
	UpsertPreSignup(ctx context.Context, email string) (*model.PreSignupEmail, error)
	MarkPreSignupConverted(ctx context.Context, email string) error
}

// Stats are the per-table row counts reported by the connectivity check.
type Stats struct {
	Users        int `json:"users"`
	Repositories int `json:"repositories"`
	Branches     int `json:"branches"`
	Languages    int `json:"languages"`
}

// HealthStore exposes connectivity checks.
type HealthStore interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)
}

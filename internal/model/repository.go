package model

import "time"

// Repository is an imported project.
//
// GitHubID is the external repository identifier. It is optional (a
// repository can be created directly, without a GitHub origin) but UNIQUE
// when present — at most one Repository per GitHub repository.
type Repository struct {
	ID          string    `json:"id"          db:"id"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     string    `json:"ownerId"     db:"owner_id"`
	GitHubID    *int64    `json:"githubId"    db:"github_id"`
	HTMLURL     string    `json:"htmlUrl"     db:"html_url"`
	CloneURL    string    `json:"cloneUrl"    db:"clone_url"`
	IsPrivate   bool      `json:"isPrivate"   db:"is_private"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`

	// Eagerly loaded relations (empty slices, never null, on full reads).
	Owner    *User      `json:"owner,omitempty"`
	Branches []Branch   `json:"branches"`
	Members  []RepoUser `json:"repoUsers"`
}

// RepoUser links a User to a Repository with a role, granting access beyond
// ownership. (user_id, repository_id) is unique.
type RepoUser struct {
	ID           string    `json:"id"           db:"id"`
	UserID       string    `json:"userId"       db:"user_id"`
	RepositoryID string    `json:"repositoryId" db:"repository_id"`
	Role         Role      `json:"role"         db:"role"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`

	User       *User       `json:"user,omitempty"`
	Repository *Repository `json:"repository,omitempty"`
}

package model

// GitHubOwner is the owner block of a GitHub repository projection.
type GitHubOwner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// GitHubRepo is our projection of a repository as returned by the GitHub
// API. GitHub returns a much larger object — we only carry the fields the
// UI and the import pipeline need.
type GitHubRepo struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	FullName        string      `json:"fullName"` // "owner/name"
	Description     string      `json:"description"`
	HTMLURL         string      `json:"htmlUrl"`
	CloneURL        string      `json:"cloneUrl"`
	Private         bool        `json:"private"`
	Language        string      `json:"language"`
	StargazersCount int         `json:"stargazersCount"`
	ForksCount      int         `json:"forksCount"`
	CreatedAt       string      `json:"createdAt"`
	UpdatedAt       string      `json:"updatedAt"`
	DefaultBranch   string      `json:"defaultBranch"`
	Owner           GitHubOwner `json:"owner"`
}

// GitHubBranch is our projection of a branch as returned by the GitHub API.
type GitHubBranch struct {
	Name      string `json:"name"`
	CommitSHA string `json:"commitSha"`
	Protected bool   `json:"protected"`
}

package model

import "time"

// Branch is a named ref within a Repository. (name, repository_id) is unique.
//
// MigratesTo holds the names of frameworks this branch has been queued to
// migrate to. It is stored as a JSON array in a single column — the list is
// small, append-only, and never queried by element.
type Branch struct {
	ID           string    `json:"id"           db:"id"`
	Name         string    `json:"name"         db:"name"`
	RepositoryID string    `json:"repositoryId" db:"repository_id"`
	LastCommit   string    `json:"lastCommit"   db:"last_commit"` // last known commit SHA
	IsProtected  bool      `json:"isProtected"  db:"is_protected"`
	MigratesTo   []string  `json:"migratesTo"   db:"migrates_to"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`

	Languages []Language `json:"languages"`
}

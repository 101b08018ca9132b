package model

import "time"

// Category classifies a language or framework.
//
// CategoryUnknown is deliberate: a detected language whose name matches none
// of the curated keyword lists is recorded as UNKNOWN rather than silently
// defaulting to FRONTEND.
type Category string

const (
	CategoryFrontend  Category = "FRONTEND"
	CategoryBackend   Category = "BACKEND"
	CategoryFullstack Category = "FULLSTACK"
	CategoryMobile    Category = "MOBILE"
	CategoryDesktop   Category = "DESKTOP"
	CategoryUnknown   Category = "UNKNOWN"
)

// Language is either a detected framework/language attached to a Branch
// (BranchID set) or a standalone supported-framework catalog entry
// (BranchID nil). Catalog entry names are unique.
type Language struct {
	ID        string    `json:"id"        db:"id"`
	Name      string    `json:"name"      db:"name"`
	Version   *string   `json:"version"   db:"version"`
	Category  Category  `json:"category"  db:"category"`
	BranchID  *string   `json:"branchId"  db:"branch_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

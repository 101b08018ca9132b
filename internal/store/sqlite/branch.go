package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// compile-time check that *DB implements store.BranchStore
var _ store.BranchStore = (*DB)(nil)

const branchColumns = `id, name, repository_id, last_commit, is_protected, migrates_to,
	created_at, updated_at`

// CreateBranch inserts a new branch. (name, repository_id) must be unique
// within the repository.
func (db *DB) CreateBranch(ctx context.Context, branch *model.Branch) error {
	branch.ID = xid.New().String()
	now := time.Now()
	branch.CreatedAt = now
	branch.UpdatedAt = now
	if branch.MigratesTo == nil {
		branch.MigratesTo = []string{}
	}

	migratesTo, err := json.Marshal(branch.MigratesTo)
	if err != nil {
		return fmt.Errorf("sqlite: encoding migratesTo: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO branches (id, name, repository_id, last_commit, is_protected,
			migrates_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		branch.ID,
		branch.Name,
		branch.RepositoryID,
		branch.LastCommit,
		branch.IsProtected,
		string(migratesTo),
		branch.CreatedAt,
		branch.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("branch %q already exists in repository", branch.Name))
		}
		return fmt.Errorf("sqlite: inserting branch %q: %w", branch.Name, err)
	}

	branch.Languages = []model.Language{}
	return nil
}

// GetBranchByID retrieves a branch with its languages attached.
func (db *DB) GetBranchByID(ctx context.Context, id string) (*model.Branch, error) {
	return db.getBranchWhere(ctx, `id = ?`, id)
}

// GetBranchByNameAndRepository retrieves a branch by its unique
// (name, repository) pair.
func (db *DB) GetBranchByNameAndRepository(ctx context.Context, name, repositoryID string) (*model.Branch, error) {
	return db.getBranchWhere(ctx, `name = ? AND repository_id = ?`, name, repositoryID)
}

func (db *DB) getBranchWhere(ctx context.Context, where string, args ...any) (*model.Branch, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE `+where, args...,
	)

	branch, err := scanBranch(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("branch", fmt.Sprintf("%v", args[0]))
		}
		return nil, err
	}

	langs, err := db.ListLanguagesForBranch(ctx, branch.ID)
	if err != nil {
		return nil, err
	}
	branch.Languages = langs
	return branch, nil
}

// ListBranchesForRepository returns a repository's branches, each with its
// languages attached.
func (db *DB) ListBranchesForRepository(ctx context.Context, repositoryID string) ([]model.Branch, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE repository_id = ? ORDER BY created_at`,
		repositoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing branches for repository %s: %w", repositoryID, err)
	}
	defer rows.Close()

	branches := []model.Branch{}
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		branches = append(branches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating branches: %w", err)
	}

	for i := range branches {
		langs, err := db.ListLanguagesForBranch(ctx, branches[i].ID)
		if err != nil {
			return nil, err
		}
		branches[i].Languages = langs
	}
	return branches, nil
}

// AppendMigrationTarget adds a framework name to the branch's migratesTo
// list. The list lives in a single JSON column, so this is read-modify-write.
func (db *DB) AppendMigrationTarget(ctx context.Context, branchID, framework string) error {
	branch, err := db.GetBranchByID(ctx, branchID)
	if err != nil {
		return err
	}

	updated := append(branch.MigratesTo, framework)
	encoded, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("sqlite: encoding migratesTo: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE branches SET migrates_to = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now(), branchID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating branch %s: %w", branchID, err)
	}
	return nil
}

// DeleteBranch removes a branch and, via cascade, its languages.
func (db *DB) DeleteBranch(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM branches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting branch %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("branch", id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBranch(s scanner) (*model.Branch, error) {
	var (
		b          model.Branch
		migratesTo string
	)
	if err := s.Scan(
		&b.ID, &b.Name, &b.RepositoryID, &b.LastCommit, &b.IsProtected,
		&migratesTo, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scanning branch row: %w", err)
	}

	if err := json.Unmarshal([]byte(migratesTo), &b.MigratesTo); err != nil {
		return nil, fmt.Errorf("sqlite: decoding migratesTo for branch %s: %w", b.ID, err)
	}
	if b.MigratesTo == nil {
		b.MigratesTo = []string{}
	}
	b.Languages = []model.Language{}
	return &b, nil
}

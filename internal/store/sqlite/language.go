package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// compile-time check that *DB implements store.LanguageStore
var _ store.LanguageStore = (*DB)(nil)

const languageColumns = `id, name, version, category, branch_id, created_at, updated_at`

// CreateLanguage inserts a language. With BranchID set it's a detected
// language on a branch; without, it's a supported-framework catalog entry
// (whose name must be unique).
func (db *DB) CreateLanguage(ctx context.Context, lang *model.Language) error {
	lang.ID = xid.New().String()
	now := time.Now()
	lang.CreatedAt = now
	lang.UpdatedAt = now
	if lang.Category == "" {
		lang.Category = model.CategoryUnknown
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO languages (id, name, version, category, branch_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lang.ID,
		lang.Name,
		nullString(lang.Version),
		string(lang.Category),
		nullString(lang.BranchID),
		lang.CreatedAt,
		lang.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("framework %q already in catalog", lang.Name))
		}
		return fmt.Errorf("sqlite: inserting language %q: %w", lang.Name, err)
	}
	return nil
}

// GetLanguageByID retrieves a language by its ID.
func (db *DB) GetLanguageByID(ctx context.Context, id string) (*model.Language, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+languageColumns+` FROM languages WHERE id = ?`, id,
	)
	lang, err := scanLanguage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("language", id)
		}
		return nil, err
	}
	return lang, nil
}

// GetCatalogEntryByName retrieves a catalog entry (branchless language) by
// its unique name.
func (db *DB) GetCatalogEntryByName(ctx context.Context, name string) (*model.Language, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+languageColumns+` FROM languages WHERE name = ? AND branch_id IS NULL`, name,
	)
	lang, err := scanLanguage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("framework", name)
		}
		return nil, err
	}
	return lang, nil
}

// ListLanguagesForBranch returns the languages detected on a branch.
func (db *DB) ListLanguagesForBranch(ctx context.Context, branchID string) ([]model.Language, error) {
	return db.listLanguagesWhere(ctx, `branch_id = ? ORDER BY created_at`, branchID)
}

// ListCatalogByCategory returns the catalog entries in a category, by name.
func (db *DB) ListCatalogByCategory(ctx context.Context, category model.Category) ([]model.Language, error) {
	return db.listLanguagesWhere(ctx, `category = ? AND branch_id IS NULL ORDER BY name`, string(category))
}

func (db *DB) listLanguagesWhere(ctx context.Context, where string, arg any) ([]model.Language, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+languageColumns+` FROM languages WHERE `+where, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing languages: %w", err)
	}
	defer rows.Close()

	langs := []model.Language{}
	for rows.Next() {
		l, err := scanLanguage(rows)
		if err != nil {
			return nil, err
		}
		langs = append(langs, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating languages: %w", err)
	}
	return langs, nil
}

// UpsertCatalogEntry seeds a catalog entry. Existing entries keep their
// stored version/category so re-seeding never clobbers manual edits.
func (db *DB) UpsertCatalogEntry(ctx context.Context, name, version string, category model.Category) error {
	var v *string
	if version != "" {
		v = &version
	}

	err := db.CreateLanguage(ctx, &model.Language{
		Name:     name,
		Version:  v,
		Category: category,
	})
	if err != nil && !isConflict(err) {
		return err
	}
	return nil
}

// UpdateLanguageVersion sets the version string of a language entry.
func (db *DB) UpdateLanguageVersion(ctx context.Context, id, version string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE languages SET version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating language %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("language", id)
	}
	return nil
}

// DeleteLanguage removes a language entry.
func (db *DB) DeleteLanguage(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM languages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting language %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("language", id)
	}
	return nil
}

func scanLanguage(s scanner) (*model.Language, error) {
	var (
		l        model.Language
		version  sql.NullString
		branchID sql.NullString
		category string
	)
	if err := s.Scan(
		&l.ID, &l.Name, &version, &category, &branchID, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scanning language row: %w", err)
	}

	l.Category = model.Category(category)
	if version.Valid {
		v := version.String
		l.Version = &v
	}
	if branchID.Valid {
		b := branchID.String
		l.BranchID = &b
	}
	return &l, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

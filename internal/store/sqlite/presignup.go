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

// compile-time check that *DB implements store.PreSignupStore
var _ store.PreSignupStore = (*DB)(nil)

// UpsertPreSignup records an email for the beta waitlist. Submitting the
// same email twice returns the existing record unchanged, so the endpoint
// is safe to retry.
func (db *DB) UpsertPreSignup(ctx context.Context, email string) (*model.PreSignupEmail, error) {
	entry := &model.PreSignupEmail{
		ID:          xid.New().String(),
		Email:       email,
		SubmittedAt: time.Now(),
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO pre_signup_emails (id, email, submitted_at) VALUES (?, ?, ?)`,
		entry.ID, entry.Email, entry.SubmittedAt,
	)
	if err == nil {
		return entry, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("sqlite: inserting pre-signup %q: %w", email, err)
	}

	return db.getPreSignupByEmail(ctx, email)
}

// MarkPreSignupConverted flags a waitlisted email as converted once the
// visitor completes the actual beta signup. No-op semantics on repeats:
// the original conversion timestamp is kept.
func (db *DB) MarkPreSignupConverted(ctx context.Context, email string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE pre_signup_emails SET converted = 1, converted_at = ?
		 WHERE email = ? AND converted = 0`,
		time.Now(), email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking pre-signup %q converted: %w", email, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the email never pre-signed up or it already converted;
		// both are fine for the caller.
		return nil
	}
	return nil
}

func (db *DB) getPreSignupByEmail(ctx context.Context, email string) (*model.PreSignupEmail, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, email, submitted_at, converted, converted_at
		 FROM pre_signup_emails WHERE email = ?`,
		email,
	)

	var (
		entry       model.PreSignupEmail
		convertedAt sql.NullTime
	)
	err := row.Scan(&entry.ID, &entry.Email, &entry.SubmittedAt, &entry.Converted, &convertedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("pre-signup", email)
		}
		return nil, fmt.Errorf("sqlite: scanning pre-signup row: %w", err)
	}
	if convertedAt.Valid {
		t := convertedAt.Time
		entry.ConvertedAt = &t
	}
	return &entry, nil
}

// Package sqlite implements the store interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a
// C compiler installed and cross-compilation becomes painful.
// modernc.org/sqlite is a pure Go translation of the SQLite C code — no C
// compiler needed, works everywhere Go works.
//
// The *DB here is the application's single database client: constructed
// once in the composition root, injected into the services that need it,
// and closed on shutdown. Nothing reads it from ambient global state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...)
	// knows how to talk to SQLite.
	_ "modernc.org/sqlite"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/store"
)

// DB wraps a sql.DB connection pool and provides the store methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/agamify.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// database/sql pools connections, but PRAGMAs are per-connection and an
	// in-memory database exists per-connection. A single connection keeps
	// both consistent; SQLite serializes writers anyway.
	conn.SetMaxOpenConns(1)

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query — which is much harder to debug.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads WHILE a write is happening.
	// This matters for a web server where multiple requests hit the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. The cascade chain
	// (user → repositories → branches → languages) depends on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Call it on shutdown so the WAL
// is flushed and the file lock released.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable. Backs GET /api/database/test.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: pinging database: %w", err)
	}
	return nil
}

// Stats returns per-table row counts.
func (db *DB) Stats(ctx context.Context) (*store.Stats, error) {
	var s store.Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{"users", &s.Users},
		{"repositories", &s.Repositories},
		{"branches", &s.Branches},
		{"languages", &s.Languages},
	}
	for _, c := range counts {
		err := db.conn.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table),
		).Scan(c.dest)
		if err != nil {
			return nil, fmt.Errorf("sqlite: counting %s: %w", c.table, err)
		}
	}
	return &s, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite doesn't export a typed error for this, so we match the
// SQLite error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isConflict(err error) bool {
	return errors.Is(err, apperror.ErrConflict)
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is safe — it won't error if the table exists.
// For a single-binary deployment this beats carrying a migration tool.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id                 TEXT PRIMARY KEY,
				github_id          INTEGER NOT NULL DEFAULT 0,
				github_username    TEXT NOT NULL DEFAULT '',
				name               TEXT NOT NULL DEFAULT '',
				email              TEXT NOT NULL UNIQUE,
				avatar_url         TEXT NOT NULL DEFAULT '',
				role               TEXT NOT NULL DEFAULT 'OWNER',
				is_beta_tester     INTEGER NOT NULL DEFAULT 0,
				beta_signup_at     DATETIME,
				beta_notifications INTEGER NOT NULL DEFAULT 0,
				created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			-- github_id is unique per account, but users created directly
			-- (without a GitHub origin) all carry 0.
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id
				ON users(github_id) WHERE github_id != 0;
		`},
		{"repositories", `
			CREATE TABLE IF NOT EXISTS repositories (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				github_id   INTEGER,
				html_url    TEXT NOT NULL DEFAULT '',
				clone_url   TEXT NOT NULL DEFAULT '',
				is_private  INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_repositories_owner_id ON repositories(owner_id);
			-- at most one local Repository per GitHub repository
			CREATE UNIQUE INDEX IF NOT EXISTS idx_repositories_github_id
				ON repositories(github_id) WHERE github_id IS NOT NULL;
		`},
		{"branches", `
			CREATE TABLE IF NOT EXISTS branches (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				last_commit   TEXT NOT NULL DEFAULT '',
				is_protected  INTEGER NOT NULL DEFAULT 0,
				migrates_to   TEXT NOT NULL DEFAULT '[]',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(name, repository_id)
			);
			CREATE INDEX IF NOT EXISTS idx_branches_repository_id ON branches(repository_id);
		`},
		{"languages", `
			CREATE TABLE IF NOT EXISTS languages (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				version    TEXT,
				category   TEXT NOT NULL DEFAULT 'UNKNOWN',
				branch_id  TEXT REFERENCES branches(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_languages_branch_id ON languages(branch_id);
			-- catalog entries (no branch) have globally unique names
			CREATE UNIQUE INDEX IF NOT EXISTS idx_languages_catalog_name
				ON languages(name) WHERE branch_id IS NULL;
		`},
		{"repo_users", `
			CREATE TABLE IF NOT EXISTS repo_users (
				id            TEXT PRIMARY KEY,
				user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				role          TEXT NOT NULL DEFAULT 'CONTRIBUTOR',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(user_id, repository_id)
			);
		`},
		{"pre_signup_emails", `
			CREATE TABLE IF NOT EXISTS pre_signup_emails (
				id           TEXT PRIMARY KEY,
				email        TEXT NOT NULL UNIQUE,
				submitted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				converted    INTEGER NOT NULL DEFAULT 0,
				converted_at DATETIME
			);
		`},
	}

	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", stmt.name, err)
		}
	}
	return nil
}

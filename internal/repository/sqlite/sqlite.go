// Package sqlite implements the repository interfaces on SQLite through
// database/sql and the pure-Go modernc.org/sqlite driver (no cgo).
//
// LAYOUT:
// DB owns the connection pool and the schema. Each table gets a small store
// type (UserDB, AccountDB, ...) handed out by an accessor on DB, so method
// names like GetByID don't collide across entities:
//
//	db, _ := sqlite.New("data/devstats.db")
//	users := db.Users()
//	tokens := db.GithubTokens(sealer)
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the database at dbPath and migrates it.
// ":memory:" gives a throwaway database for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite allows one writer at a time anyway. A single connection also
	// keeps per-connection PRAGMAs in force and makes ":memory:" one
	// database instead of one per pooled connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping backs the /healthz endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB                 { return &UserDB{conn: db.conn} }
func (db *DB) Accounts() *AccountDB           { return &AccountDB{conn: db.conn} }
func (db *DB) Subscriptions() *SubscriptionDB { return &SubscriptionDB{conn: db.conn} }
func (db *DB) Portfolios() *PortfolioDB       { return &PortfolioDB{conn: db.conn} }
func (db *DB) Contacts() *ContactDB           { return &ContactDB{conn: db.conn} }
func (db *DB) WebhookEvents() *WebhookEventDB { return &WebhookEventDB{conn: db.conn} }

// GithubTokens needs a Sealer: access tokens are never written in the clear.
func (db *DB) GithubTokens(sealer Sealer) *GithubTokenDB {
	return &GithubTokenDB{conn: db.conn, sealer: sealer}
}

// migrate is idempotent: CREATE ... IF NOT EXISTS for tables, and
// addColumnIfNotExists for columns added after a table first shipped.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL DEFAULT '',
				name          TEXT NOT NULL DEFAULT '',
				login         TEXT NOT NULL DEFAULT '',
				avatar_url    TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
		`},
		{"accounts", `
			CREATE TABLE IF NOT EXISTS accounts (
				id                  TEXT PRIMARY KEY,
				user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider            TEXT NOT NULL,
				provider_account_id TEXT NOT NULL,
				created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (provider, provider_account_id),
				UNIQUE (user_id, provider)
			);
		`},
		{"github_tokens", `
			CREATE TABLE IF NOT EXISTS github_tokens (
				user_id      TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				access_token TEXT NOT NULL,
				token_type   TEXT NOT NULL DEFAULT 'bearer',
				scope        TEXT NOT NULL DEFAULT '',
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"subscriptions", `
			CREATE TABLE IF NOT EXISTS subscriptions (
				id                       TEXT PRIMARY KEY,
				user_id                  TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
				customer_id              TEXT UNIQUE,
				provider_subscription_id TEXT NOT NULL DEFAULT '',
				plan                     TEXT NOT NULL DEFAULT 'free',
				status                   TEXT NOT NULL DEFAULT 'active',
				price_id                 TEXT NOT NULL DEFAULT '',
				current_period_end       DATETIME,
				created_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"portfolios", `
			CREATE TABLE IF NOT EXISTS portfolios (
				id             TEXT PRIMARY KEY,
				user_id        TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
				slug           TEXT NOT NULL UNIQUE,
				headline       TEXT NOT NULL DEFAULT '',
				bio            TEXT NOT NULL DEFAULT '',
				theme          TEXT NOT NULL DEFAULT 'minimal',
				featured_repos TEXT NOT NULL DEFAULT '[]',
				published      INTEGER NOT NULL DEFAULT 0,
				created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"contact_messages", `
			CREATE TABLE IF NOT EXISTS contact_messages (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				email      TEXT NOT NULL,
				subject    TEXT NOT NULL DEFAULT '',
				message    TEXT NOT NULL,
				remote_ip  TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_contact_messages_created_at ON contact_messages(created_at);
		`},
		{"webhook_events", `
			CREATE TABLE IF NOT EXISTS webhook_events (
				id           TEXT PRIMARY KEY,
				type         TEXT NOT NULL,
				processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
	}
	for _, s := range steps {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	// Subscriptions shipped before cancel-at-period-end was tracked.
	if err := db.addColumnIfNotExists("subscriptions", "cancel_at_period_end",
		"INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding cancel_at_period_end to subscriptions: %w", err)
	}
	return nil
}

// addColumnIfNotExists makes ALTER TABLE ADD COLUMN safe to re-run.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition))
	return err
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// nullString maps "" to NULL so UNIQUE columns can stay empty for many rows.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

/*
Package postgres is the production storage layer: it backs
credential.Repository, maintenance.Repository, autostart.Repository, and
dispatch.Repository with a single Postgres connection pool.
*/
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/maowbot/maowbot/internal/errs"
)

// DB wraps a *sql.DB with the schema this module owns.
type DB struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection. Callers own the
// returned DB's lifecycle and must call Close.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: open")
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, errs.Wrap(errs.Database, err, "postgres: ping")
	}
	return &DB{db: sqlDB}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates every table this module owns if it doesn't already
// exist. There is no migration library in play here (none of the example
// repos bundled one); schema evolution beyond additive CREATE TABLE IF NOT
// EXISTS statements would need a real migration tool introduced deliberately,
// not one invented for this snapshot.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.Database, err, "postgres: migrate")
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS platform_credentials (
		credential_id    TEXT PRIMARY KEY,
		platform         TEXT NOT NULL,
		platform_user_id TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		user_name        TEXT NOT NULL,
		primary_token    TEXT NOT NULL,
		refresh_token    TEXT NOT NULL DEFAULT '',
		expires_at       TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_bot           BOOLEAN NOT NULL DEFAULT false,
		additional_data  JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_platform_credentials_platform
		ON platform_credentials (platform)`,

	`CREATE TABLE IF NOT EXISTS platform_configs (
		config_id     TEXT PRIMARY KEY,
		platform      TEXT NOT NULL UNIQUE,
		client_id     TEXT NOT NULL,
		client_secret TEXT NOT NULL,
		scopes        TEXT[] NOT NULL DEFAULT '{}'
	)`,

	`CREATE TABLE IF NOT EXISTS autostart_entries (
		platform        TEXT NOT NULL,
		account         TEXT NOT NULL,
		credential_id   TEXT NOT NULL DEFAULT '',
		enabled         BOOLEAN NOT NULL DEFAULT false,
		auto_reconnect  BOOLEAN NOT NULL DEFAULT true,
		enable_incoming BOOLEAN NOT NULL DEFAULT true,
		PRIMARY KEY (platform, account)
	)`,

	`CREATE TABLE IF NOT EXISTS commands (
		id               TEXT PRIMARY KEY,
		platform         TEXT NOT NULL,
		name             TEXT NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT true,
		cooldown_seconds INTEGER NOT NULL DEFAULT 0,
		required_roles   TEXT[] NOT NULL DEFAULT '{}',
		metadata         JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commands_platform_active
		ON commands (platform) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS redeems (
		id               TEXT PRIMARY KEY,
		platform         TEXT NOT NULL,
		name             TEXT NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT true,
		cooldown_seconds INTEGER NOT NULL DEFAULT 0,
		required_roles   TEXT[] NOT NULL DEFAULT '{}',
		metadata         JSONB NOT NULL DEFAULT '{}',
		reward_id        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_redeems_platform_active
		ON redeems (platform) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS command_usage (
		command_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		used_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS redeem_usage (
		redeem_id TEXT NOT NULL,
		user_id   TEXT NOT NULL,
		used_at   TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		message_id  TEXT PRIMARY KEY,
		platform    TEXT NOT NULL,
		channel     TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		text        TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		metadata    JSONB NOT NULL DEFAULT '{}'
	) PARTITION BY RANGE (occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_user_time
		ON chat_messages (user_id, occurred_at)`,

	`CREATE TABLE IF NOT EXISTS chat_messages_archive (
		LIKE chat_messages INCLUDING DEFAULTS
	)`,

	`CREATE TABLE IF NOT EXISTS user_analysis (
		user_id                TEXT PRIMARY KEY,
		spam_score             REAL NOT NULL DEFAULT 0,
		intelligibility_score  REAL NOT NULL DEFAULT 0,
		quality_score          REAL NOT NULL DEFAULT 0,
		horni_score            REAL NOT NULL DEFAULT 0,
		ai_notes               TEXT NOT NULL DEFAULT '',
		moderator_notes        TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS user_analysis_history (
		user_id                TEXT NOT NULL,
		year_month             TEXT NOT NULL,
		spam_score             REAL NOT NULL,
		intelligibility_score  REAL NOT NULL,
		quality_score          REAL NOT NULL,
		horni_score            REAL NOT NULL,
		ai_notes               TEXT NOT NULL DEFAULT '',
		moderator_notes        TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, year_month)
	)`,

	`CREATE TABLE IF NOT EXISTS maintenance_state (
		id              BOOLEAN PRIMARY KEY DEFAULT true CHECK (id),
		archived_until  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS chat_partitions (
		year_month TEXT PRIMARY KEY
	)`,
}

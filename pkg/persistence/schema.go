package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database gets the full current schema.
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		return nil // base schema, handled by createSchema
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds application ticket tracking to the applicants table.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE applicants ADD COLUMN ticket_channel_id TEXT NOT NULL DEFAULT ''",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	return nil
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Applicants with embedded conversation state. State columns update
		// together with identity so a restart sees one consistent row.
		`CREATE TABLE IF NOT EXISTS applicants (
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL DEFAULT '',
			ticket_channel_id TEXT NOT NULL DEFAULT '',
			member_role TEXT NOT NULL DEFAULT '',
			application_status TEXT NOT NULL DEFAULT 'PENDING'
				CHECK (application_status IN ('PENDING','TICKET_OPENED','ACCEPTED','DENIED','LEFT_SERVER')),
			community_status TEXT NOT NULL DEFAULT 'PENDING'
				CHECK (community_status IN ('PENDING','VOUCH_ACCEPTED','VOUCH_DENIED','VOUCH_TIMEOUT','ACCEPTED','DENIED','LEFT_SERVER')),
			vouched_by TEXT NOT NULL DEFAULT '',
			joined_at DATETIME,
			last_activity_at DATETIME,
			current_step TEXT NOT NULL DEFAULT 'IDLE',
			active_waiter TEXT NOT NULL DEFAULT 'NONE',
			step_entry_time DATETIME,
			timeout_at DATETIME,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_intent TEXT NOT NULL DEFAULT '',
			last_processed_message_id TEXT NOT NULL DEFAULT '',
			vouch_initiator_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Append-only turn log. external_message_id uniqueness is what makes
		// turn recording idempotent across rehydration and live delivery.
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES applicants(user_id) ON DELETE CASCADE,
			channel_id TEXT NOT NULL,
			author TEXT NOT NULL CHECK (author IN ('user','agent')),
			content TEXT NOT NULL,
			external_message_id TEXT NOT NULL UNIQUE,
			classifier_output TEXT,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_applicants_channel ON applicants(channel_id)",
		"CREATE INDEX IF NOT EXISTS idx_applicants_ticket_channel ON applicants(ticket_channel_id)",
		"CREATE INDEX IF NOT EXISTS idx_applicants_activity ON applicants(last_activity_at)",
		"CREATE INDEX IF NOT EXISTS idx_applicants_timeout ON applicants(timeout_at)",
		"CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_turns_channel ON turns(channel_id, created_at)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}

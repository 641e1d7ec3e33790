package store

import (
	"database/sql"
	"fmt"
	"time"

	"chathud/internal/logging"
)

// Schema versions:
// v1: fragments(id, text, created_at) with a non-unique index on text
// v2: fragments.site records which site a fragment was scraped from
const CurrentSchemaVersion = 2

// MigrationResult holds the result of a migration operation.
type MigrationResult struct {
	FromVersion   int
	ToVersion     int
	MigrationsRun int
	Duration      time.Duration
}

type migration struct {
	version     int
	description string
	stmts       []string
}

var migrations = []migration{
	{
		version:     1,
		description: "create fragments",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS fragments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				text TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_fragments_text ON fragments(text)`,
		},
	},
	{
		version:     2,
		description: "add fragments.site",
		stmts: []string{
			`ALTER TABLE fragments ADD COLUMN site TEXT NOT NULL DEFAULT ''`,
		},
	},
}

// RunMigrations applies every migration newer than the database's recorded
// version. Each migration runs in its own transaction together with its
// version record.
func RunMigrations(db *sql.DB) (*MigrationResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	start := time.Now()
	if err := ensureVersionTable(db); err != nil {
		return nil, err
	}
	from := GetSchemaVersion(db)
	result := &MigrationResult{FromVersion: from, ToVersion: from}

	for _, m := range migrations {
		if m.version <= from {
			continue
		}
		logging.StoreDebug("Applying migration v%d: %s", m.version, m.description)
		if err := applyMigration(db, m); err != nil {
			logging.Get(logging.CategoryStore).Error("Migration v%d failed: %v", m.version, err)
			return nil, err
		}
		result.ToVersion = m.version
		result.MigrationsRun++
	}

	result.Duration = time.Since(start)
	if result.MigrationsRun > 0 {
		logging.Store("Schema migrated v%d -> v%d (%d migrations)", result.FromVersion, result.ToVersion, result.MigrationsRun)
	}
	return result, nil
}

func ensureVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			applied_at INTEGER NOT NULL,
			description TEXT
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_versions table: %w", err)
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_versions (version, applied_at, description) VALUES (?, ?, ?)",
		m.version, time.Now().UnixMilli(), m.description,
	); err != nil {
		return fmt.Errorf("record schema version %d: %w", m.version, err)
	}
	return tx.Commit()
}

// GetSchemaVersion returns the highest recorded schema version, or 0 for a
// fresh database.
func GetSchemaVersion(db *sql.DB) int {
	var version sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&version); err != nil {
		logging.StoreDebug("Schema version lookup failed: %v", err)
		return 0
	}
	return int(version.Int64)
}

package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents one schema migration.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// The roster schema is small and owned entirely by this binary, so
// migrations are compiled in rather than loaded from disk.
var rosterMigrations = []Migration{
	{
		Version:     "001",
		Description: "roster",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id   TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'student'
					CHECK (role IN ('student', 'teacher', 'admin'))
			);

			CREATE TABLE IF NOT EXISTS enrollments (
				user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				course_id TEXT NOT NULL,
				PRIMARY KEY (user_id, course_id)
			);

			CREATE INDEX IF NOT EXISTS idx_enrollments_user ON enrollments(user_id);
			CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id);
		`,
	},
}

// MigrationManager applies roster migrations and tracks applied versions.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for the given database.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order. Each
// migration runs in its own transaction; a failure leaves earlier
// migrations applied and recorded.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations := make([]Migration, len(rosterMigrations))
	copy(migrations, rosterMigrations)
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// ValidateSchema ensures the roster tables exist after migration.
func (m *MigrationManager) ValidateSchema() error {
	for _, table := range []string{"users", "enrollments", "schema_migrations"} {
		exists, err := m.tableExists(table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) getAppliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	versions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MigrationManager) tableExists(tableName string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

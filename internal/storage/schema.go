package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// migration brings the schema from version-1 to version. The applied
// version is kept in PRAGMA user_version.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{1, "project permissions", []string{
		`CREATE TABLE IF NOT EXISTS project_permissions (
			project_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'owner',
			created_at TEXT NOT NULL,
			PRIMARY KEY (project_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_project_permissions_user ON project_permissions(user_id)`,
	}},
	{2, "user configs", []string{
		`CREATE TABLE IF NOT EXISTS user_configs (
			user_id    TEXT PRIMARY KEY,
			config     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}},
}

func currentSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func (db *DB) getSchemaVersion() (int, error) {
	var v int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate applies every migration newer than the stored version, each in
// its own transaction.
func (db *DB) migrate(ctx context.Context) error {
	from, err := db.getSchemaVersion()
	if err != nil {
		return err
	}
	if from > currentSchemaVersion() {
		return fmt.Errorf("database %s has schema version %d, newer than this build supports (%d)",
			db.path, from, currentSchemaVersion())
	}

	for _, m := range migrations {
		if m.version <= from {
			continue
		}
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			// PRAGMA does not accept bound parameters.
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, m.version))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		db.logger.Info("Applied schema migration", "version", m.version, "name", m.name)
	}
	return nil
}

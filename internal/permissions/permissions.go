// Package permissions records which users may access which projects.
package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"genestore/internal/errors"
	"genestore/internal/storage"
)

// Role is a user's relationship to a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleViewer Role = "viewer"
)

// Store reads and writes the project_permissions table of the central database.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
}

// New creates a permissions store on an open central database.
func New(db *storage.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// CreateProjectPermissions grants userID ownership of projectID. Repeating
// the call for the same pair is a no-op.
func (s *Store) CreateProjectPermissions(ctx context.Context, projectID, userID string) error {
	return s.Grant(ctx, projectID, userID, RoleOwner)
}

// Grant records role for the pair, leaving an existing record untouched.
func (s *Store) Grant(ctx context.Context, projectID, userID string, role Role) error {
	if projectID == "" || userID == "" {
		return errors.ErrNoIdProvided
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO project_permissions (project_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
	`, projectID, userID, string(role), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.New(errors.IOError, "record project permissions", err)
	}
	s.logger.Debug("Project permission granted",
		"project_id", projectID,
		"user_id", userID,
		"role", role,
	)
	return nil
}

// HasAccess reports whether userID holds any role on projectID.
func (s *Store) HasAccess(ctx context.Context, projectID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM project_permissions WHERE project_id = ? AND user_id = ?
	`, projectID, userID).Scan(&n)
	if err != nil {
		return false, errors.New(errors.IOError, "query project permissions", err)
	}
	return n > 0, nil
}

// ProjectsForUser lists the ids of every project userID can access, sorted.
func (s *Store) ProjectsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id FROM project_permissions WHERE user_id = ? ORDER BY project_id
	`, userID)
	if err != nil {
		return nil, errors.New(errors.IOError, "list projects for user", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveProject deletes every permission row for projectID.
func (s *Store) RemoveProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM project_permissions WHERE project_id = ?`, projectID)
	if err != nil {
		return errors.New(errors.IOError, "remove project permissions", err)
	}
	return nil
}

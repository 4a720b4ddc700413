package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"genestore/internal/errors"
	"genestore/internal/fileio"
	"genestore/internal/history"
	"genestore/internal/paths"
)

// Project files are opaque blobs kept beside a project, grouped by the
// extension that produced them. They live outside the data directory and
// are never committed.

func (s *Store) projectFilePath(projectID, extension, name string) (string, error) {
	for _, id := range []string{projectID, extension, name} {
		if err := paths.ValidateID(id); err != nil {
			return "", err
		}
	}
	if !fileio.Exists(s.paths.ProjectManifestPath(projectID)) {
		return "", errors.NotFound("project", projectID)
	}
	return s.paths.ProjectFilePath(projectID, extension, name), nil
}

// ProjectFileRead returns a project file. A missing file is DOES_NOT_EXIST.
func (s *Store) ProjectFileRead(ctx context.Context, projectID, extension, name string) ([]byte, error) {
	path, err := s.projectFilePath(projectID, extension, name)
	if err != nil {
		return nil, err
	}
	return fileio.ReadFile(path)
}

// ProjectFileWrite stores a project file. A nil body deletes it.
func (s *Store) ProjectFileWrite(ctx context.Context, projectID, extension, name string, data []byte) error {
	if data == nil {
		return s.ProjectFileDelete(ctx, projectID, extension, name)
	}
	path, err := s.projectFilePath(projectID, extension, name)
	if err != nil {
		return err
	}

	unlock := s.lock(projectID)
	defer unlock()
	return fileio.WriteFile(path, data)
}

// ProjectFileDelete removes a project file. A missing file is DOES_NOT_EXIST.
func (s *Store) ProjectFileDelete(ctx context.Context, projectID, extension, name string) error {
	path, err := s.projectFilePath(projectID, extension, name)
	if err != nil {
		return err
	}

	unlock := s.lock(projectID)
	defer unlock()
	return fileio.DeleteFile(path)
}

// ProjectFileList names the files an extension has stored for a project.
func (s *Store) ProjectFileList(ctx context.Context, projectID, extension string) ([]string, error) {
	for _, id := range []string{projectID, extension} {
		if err := paths.ValidateID(id); err != nil {
			return nil, err
		}
	}
	if !fileio.Exists(s.paths.ProjectManifestPath(projectID)) {
		return nil, errors.NotFound("project", projectID)
	}

	entries, err := os.ReadDir(filepath.Join(s.paths.ProjectFilesPath(projectID), extension))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing files of "+projectID)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && !history.IsHidden(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

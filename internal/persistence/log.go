package persistence

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"genestore/internal/errors"
	"genestore/internal/fileio"
	"genestore/internal/history"
	"genestore/internal/paths"
)

// diffContext is the number of unchanged lines kept around each hunk.
const diffContext = 3

// ProjectLog lists a project's commits, newest first.
func (s *Store) ProjectLog(ctx context.Context, projectID string) ([]history.Commit, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}
	dataPath := s.paths.ProjectDataPath(projectID)
	if !fileio.Exists(dataPath) {
		return nil, errors.NotFound("project", projectID)
	}
	commits, err := s.vcs.Log(ctx, dataPath)
	if err != nil {
		return nil, err
	}
	if commits == nil {
		commits = []history.Commit{}
	}
	return commits, nil
}

// ProjectDiff renders a unified diff of the project and block manifests
// between two commits. An empty to compares against the working copy.
// Manifests that are identical produce no hunk, so an unchanged project
// yields "".
func (s *Store) ProjectDiff(ctx context.Context, projectID, from, to string) (string, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return "", err
	}
	if from == "" {
		return "", errors.New(errors.NoIdProvided, "a base commit sha is required", nil)
	}

	var out strings.Builder
	for _, path := range []string{
		s.paths.ProjectManifestPath(projectID),
		s.paths.BlockManifestPath(projectID),
	} {
		rel, err := s.paths.DataRelative(projectID, path)
		if err != nil {
			return "", err
		}

		before, err := s.manifestAt(ctx, projectID, path, from)
		if err != nil {
			return "", err
		}
		after, err := s.manifestAt(ctx, projectID, path, to)
		if err != nil {
			return "", err
		}

		toName := "b/" + rel
		if to == "" {
			toName = rel + " (working)"
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(before)),
			B:        difflib.SplitLines(string(after)),
			FromFile: "a/" + rel + "@" + from,
			ToFile:   toName,
			Context:  diffContext,
		})
		if err != nil {
			return "", errors.Wrap(err, "diffing "+rel)
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

// manifestAt reads a manifest at sha, or the working copy when sha is
// empty. A manifest missing from the working copy reads as empty.
func (s *Store) manifestAt(ctx context.Context, projectID, path, sha string) ([]byte, error) {
	if sha != "" {
		return s.checkout(ctx, projectID, path, sha)
	}
	data, err := fileio.ReadFile(path)
	if errors.IsCode(err, errors.DoesNotExist) {
		return nil, nil
	}
	return data, err
}

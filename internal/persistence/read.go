package persistence

import (
	"context"
	"encoding/json"

	"genestore/internal/errors"
	"genestore/internal/fileio"
	"genestore/internal/model"
	"genestore/internal/paths"
)

// ProjectExists reports whether the project manifest exists, or with a sha,
// whether that commit exists in the project's history.
func (s *Store) ProjectExists(ctx context.Context, projectID, sha string) (bool, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return false, err
	}
	if sha == "" {
		return fileio.Exists(s.paths.ProjectManifestPath(projectID)), nil
	}
	dataPath := s.paths.ProjectDataPath(projectID)
	if !fileio.Exists(dataPath) {
		return false, nil
	}
	return s.vcs.VersionExists(ctx, dataPath, sha)
}

// BlocksExist reports whether every block id is present in the project's
// block manifest (at sha, when given). With no ids it reports whether the
// manifest itself exists.
func (s *Store) BlocksExist(ctx context.Context, projectID, sha string, blockIDs ...string) (bool, error) {
	blocks, found, err := s.BlocksGet(ctx, projectID, sha)
	if errors.IsCode(err, errors.DoesNotExist) {
		return false, nil
	}
	if err != nil || !found {
		return false, err
	}
	for _, id := range blockIDs {
		if _, ok := blocks[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// ProjectGet reads a project. Without a sha a missing project is reported as
// found=false; with a sha, a missing project or commit is DOES_NOT_EXIST.
func (s *Store) ProjectGet(ctx context.Context, projectID, sha string) (*model.Project, bool, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, false, err
	}
	var p model.Project
	found, err := s.readManifest(ctx, projectID, s.paths.ProjectManifestPath(projectID), sha, &p)
	if err != nil || !found {
		return nil, found, err
	}
	return &p, true, nil
}

// BlocksGet reads a project's block manifest, restricted to blockIDs when
// any are given. Requested ids that are absent are left out of the result.
func (s *Store) BlocksGet(ctx context.Context, projectID, sha string, blockIDs ...string) (model.BlockMap, bool, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, false, err
	}
	blocks := model.BlockMap{}
	found, err := s.readManifest(ctx, projectID, s.paths.BlockManifestPath(projectID), sha, &blocks)
	if err != nil || !found {
		return nil, found, err
	}
	if blocks == nil {
		blocks = model.BlockMap{}
	}
	if len(blockIDs) == 0 {
		return blocks, true, nil
	}

	subset := make(model.BlockMap, len(blockIDs))
	for _, id := range blockIDs {
		if b, ok := blocks[id]; ok {
			subset[id] = b
		}
	}
	return subset, true, nil
}

// BlockGet reads one block. An absent block is found=false without a sha and
// DOES_NOT_EXIST with one.
func (s *Store) BlockGet(ctx context.Context, projectID, sha, blockID string) (*model.Block, bool, error) {
	if err := paths.ValidateID(blockID); err != nil {
		return nil, false, err
	}
	blocks, found, err := s.BlocksGet(ctx, projectID, sha, blockID)
	if err != nil || !found {
		return nil, found, err
	}
	b, ok := blocks[blockID]
	if !ok {
		if sha != "" {
			return nil, false, errors.NotFound("block", blockID)
		}
		return nil, false, nil
	}
	return b, true, nil
}

// readManifest decodes the working copy of path, or its content at sha.
func (s *Store) readManifest(ctx context.Context, projectID, path, sha string, v any) (bool, error) {
	if sha == "" {
		err := fileio.ReadJSON(path, v)
		if errors.IsCode(err, errors.DoesNotExist) {
			return false, nil
		}
		return err == nil, err
	}

	data, err := s.checkout(ctx, projectID, path, sha)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrap(err, "decoding "+sha)
	}
	return true, nil
}

// checkout returns the content of a data-directory file at sha.
func (s *Store) checkout(ctx context.Context, projectID, path, sha string) ([]byte, error) {
	dataPath := s.paths.ProjectDataPath(projectID)
	if !fileio.Exists(dataPath) {
		return nil, errors.NotFound("project", projectID)
	}
	exists, err := s.vcs.VersionExists(ctx, dataPath, sha)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFound("version", sha)
	}
	rel, err := s.paths.DataRelative(projectID, path)
	if err != nil {
		return nil, err
	}
	return s.vcs.Checkout(ctx, dataPath, rel, sha)
}

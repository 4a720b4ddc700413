package persistence

import (
	"context"
	"time"

	"genestore/internal/commitmsg"
	"genestore/internal/errors"
	"genestore/internal/events"
	"genestore/internal/fileio"
	"genestore/internal/history"
	"genestore/internal/model"
	"genestore/internal/paths"
)

// SaveResult is the outcome of RollupSave.
type SaveResult struct {
	// Skipped is true when the rollup matched the cached one and nothing was
	// written or committed.
	Skipped bool            `json:"skipped"`
	Commit  *history.Commit `json:"commit,omitempty"`
}

// ProjectSave commits the project's data directory with a save message and
// then writes the new sha and commit time back into the project manifest as
// version and lastSaved. The write-back is not committed.
//
// If the commit succeeds but the write-back fails, the commit is returned
// together with an IO_ERROR whose details carry the sha.
func (s *Store) ProjectSave(ctx context.Context, projectID, userID, notes string) (history.Commit, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return history.Commit{}, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	return s.saveLocked(ctx, projectID, userID, notes)
}

func (s *Store) saveLocked(ctx context.Context, projectID, userID, notes string) (history.Commit, error) {
	msg := commitmsg.SaveMessage(projectID, notes)
	commit, err := s.commitLocked(ctx, projectID, userID, msg)
	if err != nil {
		return history.Commit{}, err
	}

	_, err = fileio.MergeJSON(s.paths.ProjectManifestPath(projectID), map[string]any{
		"version":   commit.SHA,
		"lastSaved": commit.UnixMilli(),
	})
	if err != nil {
		s.logger.Error("Project committed but version write-back failed",
			"project_id", projectID,
			"sha", commit.SHA,
			"error", err.Error(),
		)
		return commit, errors.New(errors.IOError, "project "+projectID+" saved but its version was not updated", err).
			WithDetails(map[string]string{"sha": commit.SHA})
	}

	s.logger.Info("Project saved", "project_id", projectID, "sha", commit.SHA, "user_id", userID)
	s.publish(events.Saved, projectID, userID, commit.SHA, msg, nil)
	return commit, nil
}

// ProjectSnapshot commits the project's data directory with a snapshot
// message. The project's version pointer is left alone.
func (s *Store) ProjectSnapshot(ctx context.Context, projectID, userID, notes string) (history.Commit, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return history.Commit{}, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	msg := commitmsg.SnapshotMessage(projectID, notes)
	commit, err := s.commitLocked(ctx, projectID, userID, msg)
	if err != nil {
		return history.Commit{}, err
	}
	s.logger.Info("Project snapshot", "project_id", projectID, "sha", commit.SHA, "user_id", userID)
	s.publish(events.Snapshot, projectID, userID, commit.SHA, msg, nil)
	return commit, nil
}

// commitLocked commits the data directory of an existing project.
func (s *Store) commitLocked(ctx context.Context, projectID, userID string, msg commitmsg.Message) (history.Commit, error) {
	if !fileio.Exists(s.paths.ProjectManifestPath(projectID)) {
		return history.Commit{}, errors.NotFound("project", projectID)
	}
	dataPath := s.paths.ProjectDataPath(projectID)

	sha, err := s.vcs.Commit(ctx, dataPath, msg.Encode(), userID)
	if err != nil {
		return history.Commit{}, err
	}

	commit, err := s.vcs.GetCommit(ctx, dataPath, sha)
	if err != nil {
		s.logger.Warn("Could not read back new commit",
			"project_id", projectID,
			"sha", sha,
			"error", err.Error(),
		)
		commit = history.NewCommit(sha, time.Now(), msg.Encode(), userID)
	}
	return commit, nil
}

// normalizeRollup applies the same id, author and projectId forcing a write
// would, so cached fingerprints match what is stored.
func normalizeRollup(projectID string, r *model.Rollup, userID string) (*model.Rollup, error) {
	if r == nil || r.Project == nil {
		return nil, errors.Newf(errors.InvalidModel, "rollup for %s has no project", projectID)
	}
	blocks, err := prepareBlocks(projectID, r.Blocks)
	if err != nil {
		return nil, err
	}
	return &model.Rollup{
		Project: prepareProject(projectID, r.Project, userID),
		Blocks:  blocks,
	}, nil
}

// RollupSave is the autosave path. When the rollup's content matches the
// last one saved or loaded for the project it returns Skipped without any
// I/O. Every plain write to the project drops that cached rollup, so a
// match always means the working state already holds this content.
// Otherwise it overwrites the project and block manifests, saves, and
// caches the rollup.
func (s *Store) RollupSave(ctx context.Context, projectID, userID string, r *model.Rollup, notes string) (SaveResult, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return SaveResult{}, err
	}
	next, err := normalizeRollup(projectID, r, userID)
	if err != nil {
		return SaveResult{}, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	same, err := s.cache.Same(projectID, next)
	if err != nil {
		return SaveResult{}, errors.Wrap(err, "fingerprinting rollup")
	}
	if same {
		s.logger.Debug("Rollup unchanged, save skipped", "project_id", projectID)
		return SaveResult{Skipped: true}, nil
	}

	if err := s.validateProject(next.Project); err != nil {
		return SaveResult{}, err
	}
	if err := s.validateBlocks(next.Blocks); err != nil {
		return SaveResult{}, err
	}

	if err := s.writeProjectLocked(ctx, projectID, next.Project, userID); err != nil {
		return SaveResult{}, err
	}
	if _, err := s.writeBlocksLocked(ctx, projectID, next.Blocks, userID, true); err != nil {
		return SaveResult{}, err
	}
	commit, err := s.saveLocked(ctx, projectID, userID, notes)
	if err != nil {
		if commit.SHA != "" {
			return SaveResult{Commit: &commit}, err
		}
		return SaveResult{}, err
	}

	if err := s.cache.Put(projectID, next); err != nil {
		s.logger.Warn("Could not cache rollup", "project_id", projectID, "error", err.Error())
	}
	return SaveResult{Commit: &commit}, nil
}

// RollupGet loads a project with its blocks, at sha when given. Loading the
// working state also refreshes the rollup cache.
func (s *Store) RollupGet(ctx context.Context, projectID, sha string) (*model.Rollup, bool, error) {
	if sha == "" {
		if err := paths.ValidateID(projectID); err != nil {
			return nil, false, err
		}
		unlock := s.lock(projectID)
		defer unlock()
	}

	p, found, err := s.ProjectGet(ctx, projectID, sha)
	if err != nil || !found {
		return nil, found, err
	}
	blocks, _, err := s.BlocksGet(ctx, projectID, sha)
	if err != nil {
		return nil, false, err
	}
	if blocks == nil {
		blocks = model.BlockMap{}
	}

	r := &model.Rollup{Project: p, Blocks: blocks}
	if sha == "" {
		if err := s.cache.Put(projectID, r); err != nil {
			s.logger.Warn("Could not cache rollup", "project_id", projectID, "error", err.Error())
		}
	}
	return r, true, nil
}

// ProjectCheckout returns the rollup as it was committed at sha.
func (s *Store) ProjectCheckout(ctx context.Context, projectID, sha string) (*model.Rollup, error) {
	if sha == "" {
		return nil, errors.New(errors.NoIdProvided, "a commit sha is required", nil)
	}
	r, _, err := s.RollupGet(ctx, projectID, sha)
	return r, err
}

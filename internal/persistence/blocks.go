package persistence

import (
	"context"
	"strings"

	"genestore/internal/commitmsg"
	"genestore/internal/errors"
	"genestore/internal/events"
	"genestore/internal/fileio"
	"genestore/internal/model"
	"genestore/internal/paths"
)

// prepareBlocks copies blocks, fills empty block ids from their keys and
// forces every projectId to the owning project.
func prepareBlocks(projectID string, blocks model.BlockMap) (model.BlockMap, error) {
	out := blocks.Clone()
	if out == nil {
		out = model.BlockMap{}
	}
	for key, b := range out {
		if b == nil {
			return nil, errors.Newf(errors.InvalidModel, "block %s: no document supplied", key)
		}
		if err := normalizeBlock(projectID, key, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func normalizeBlock(projectID, key string, b *model.Block) error {
	if b.ID == "" {
		b.ID = key
	}
	if b.ID != key {
		return errors.Newf(errors.InvalidModel, "block keyed %s carries id %s", key, b.ID)
	}
	b.ProjectID = projectID
	if b.Components == nil {
		b.Components = []string{}
	}
	return nil
}

func (s *Store) validateBlocks(blocks model.BlockMap) error {
	for _, id := range blocks.IDs() {
		if err := s.validateBlock(blocks[id]); err != nil {
			return err
		}
	}
	return nil
}

// readBlocksLocked reads the working block manifest, treating a missing
// manifest as empty.
func (s *Store) readBlocksLocked(projectID string) (model.BlockMap, error) {
	blocks := model.BlockMap{}
	err := fileio.ReadJSON(s.paths.BlockManifestPath(projectID), &blocks)
	if err != nil && !errors.IsCode(err, errors.DoesNotExist) {
		return nil, err
	}
	if blocks == nil {
		blocks = model.BlockMap{}
	}
	return blocks, nil
}

// BlocksWrite stores blocks in the project's manifest and returns the full
// manifest afterwards. With opts.Overwrite the manifest becomes exactly the
// supplied set; otherwise each supplied block replaces its same-id entry and
// the others are kept. A missing project is provisioned with userID as its
// owner. It never commits.
func (s *Store) BlocksWrite(ctx context.Context, projectID string, blocks model.BlockMap, userID string, opts WriteOptions) (model.BlockMap, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}
	incoming, err := prepareBlocks(projectID, blocks)
	if err != nil {
		return nil, err
	}
	if !opts.BypassValidation {
		if err := s.validateBlocks(incoming); err != nil {
			return nil, err
		}
	}

	unlock := s.lock(projectID)
	defer unlock()

	stored, err := s.writeBlocksLocked(ctx, projectID, incoming, userID, opts.Overwrite)
	if err != nil {
		return nil, err
	}
	ids := incoming.IDs()
	s.publish(events.Written, projectID, userID, "", commitmsg.Block(strings.Join(ids, ","), ""), map[string]any{"manifest": "blocks", "blocks": ids})
	return stored, nil
}

// writeBlocksLocked writes the block manifest and drops the cached rollup,
// which no longer describes the working state.
func (s *Store) writeBlocksLocked(ctx context.Context, projectID string, incoming model.BlockMap, userID string, overwrite bool) (model.BlockMap, error) {
	if err := s.ensureProvisioned(ctx, projectID, userID); err != nil {
		return nil, err
	}

	next := incoming
	if !overwrite {
		current, err := s.readBlocksLocked(projectID)
		if err != nil {
			return nil, err
		}
		for id, b := range incoming {
			current[id] = b
		}
		next = current
	}

	s.cache.Forget(projectID)
	if err := fileio.WriteJSON(s.paths.BlockManifestPath(projectID), next); err != nil {
		return nil, err
	}
	return next, nil
}

// BlocksMerge deep-merges each partial block into its stored entry (an
// absent entry starts empty), validates the results and writes the manifest.
// The read, merge and write happen under the project lock.
func (s *Store) BlocksMerge(ctx context.Context, projectID string, patches map[string]map[string]any, userID string) (model.BlockMap, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	current, err := s.readBlocksLocked(projectID)
	if err != nil {
		return nil, err
	}

	merged := make(model.BlockMap, len(patches))
	for id, patch := range patches {
		base := map[string]any{}
		if existing, ok := current[id]; ok {
			if base, err = model.ToMap(existing); err != nil {
				return nil, errors.Wrap(err, "encoding block "+id)
			}
		}
		var b model.Block
		if err := model.FromMap(fileio.DeepMerge(base, patch), &b); err != nil {
			return nil, errors.New(errors.InvalidModel, "merged block "+id+" is not a valid document", err)
		}
		if err := normalizeBlock(projectID, id, &b); err != nil {
			return nil, err
		}
		if err := s.validateBlock(&b); err != nil {
			return nil, err
		}
		merged[id] = &b
	}

	stored, err := s.writeBlocksLocked(ctx, projectID, merged, userID, false)
	if err != nil {
		return nil, err
	}
	ids := merged.IDs()
	s.publish(events.Written, projectID, userID, "", commitmsg.Block(strings.Join(ids, ","), ""), map[string]any{"manifest": "blocks", "blocks": ids})
	return stored, nil
}

// BlocksDelete removes block ids from the manifest and returns what remains.
// Ids that are not present are ignored.
func (s *Store) BlocksDelete(ctx context.Context, projectID string, blockIDs ...string) (model.BlockMap, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	if !fileio.Exists(s.paths.BlockManifestPath(projectID)) {
		return nil, errors.NotFound("project", projectID)
	}
	current, err := s.readBlocksLocked(projectID)
	if err != nil {
		return nil, err
	}
	for _, id := range blockIDs {
		delete(current, id)
	}
	s.cache.Forget(projectID)
	if err := fileio.WriteJSON(s.paths.BlockManifestPath(projectID), current); err != nil {
		return nil, err
	}
	s.publish(events.Written, projectID, "", "", commitmsg.DeleteBlockMessage(strings.Join(blockIDs, ",")), map[string]any{"manifest": "blocks", "deleted": blockIDs})
	return current, nil
}

package api

import (
	"net/http"

	"genestore/internal/errors"
	"genestore/internal/model"
	"genestore/internal/persistence"
)

// handleGetBlocks returns the block map, restricted by ?ids=a,b.
func (s *Server) handleGetBlocks(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	blocks, found, err := s.deps.Store.BlocksGet(r.Context(), projectID, r.URL.Query().Get("sha"), QueryParamList(r, "ids")...)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if !found {
		WriteStoreError(w, errors.NotFound("project", projectID))
		return
	}
	WriteJSON(w, blocks, http.StatusOK)
}

// handleWriteBlocks stores a block map. ?overwrite=true replaces the whole
// manifest.
func (s *Server) handleWriteBlocks(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var blocks model.BlockMap
	if err := s.readJSON(r, &blocks); err != nil {
		WriteStoreError(w, err)
		return
	}
	stored, err := s.deps.Store.BlocksWrite(r.Context(), projectID, blocks, identity.UserID, persistence.WriteOptions{
		Overwrite: QueryParamBool(r, "overwrite", false),
	})
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, stored, http.StatusOK)
}

func (s *Server) handleMergeBlocks(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var patches map[string]map[string]any
	if err := s.readJSON(r, &patches); err != nil {
		WriteStoreError(w, err)
		return
	}
	stored, err := s.deps.Store.BlocksMerge(r.Context(), projectID, patches, identity.UserID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, stored, http.StatusOK)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	blockID := r.PathValue("blockId")
	b, found, err := s.deps.Store.BlockGet(r.Context(), projectID, r.URL.Query().Get("sha"), blockID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if !found {
		WriteStoreError(w, errors.NotFound("block", blockID))
		return
	}
	WriteJSON(w, b, http.StatusOK)
}

func (s *Server) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	remaining, err := s.deps.Store.BlocksDelete(r.Context(), projectID, r.PathValue("blockId"))
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, remaining, http.StatusOK)
}

package api

import (
	"net/http"

	"genestore/internal/errors"
	"genestore/internal/model"
)

// saveRequest is the optional body of save and snapshot requests.
type saveRequest struct {
	Notes string `json:"notes"`
}

// rollupSaveRequest is the body of POST /projects/{projectId}/rollup.
type rollupSaveRequest struct {
	model.Rollup
	Notes string `json:"notes,omitempty"`
}

func (s *Server) handleGetRollup(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	rollup, found, err := s.deps.Store.RollupGet(r.Context(), projectID, r.URL.Query().Get("sha"))
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if !found {
		WriteStoreError(w, errors.NotFound("project", projectID))
		return
	}
	WriteJSON(w, rollup, http.StatusOK)
}

// handleSaveRollup is the autosave endpoint. An unchanged rollup answers
// {"skipped": true} without touching history.
func (s *Server) handleSaveRollup(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var req rollupSaveRequest
	if err := s.readJSON(r, &req); err != nil {
		WriteStoreError(w, err)
		return
	}
	res, err := s.deps.Store.RollupSave(r.Context(), projectID, identity.UserID, &req.Rollup, req.Notes)
	if err != nil {
		s.recordSave("rollup", "failed")
		WriteStoreError(w, err)
		return
	}
	if res.Skipped {
		s.recordSave("rollup", "skipped")
	} else {
		s.recordSave("rollup", "committed")
	}
	WriteJSON(w, res, http.StatusOK)
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if err := s.readOptionalJSON(r, &req); err != nil {
		WriteStoreError(w, err)
		return
	}
	commit, err := s.deps.Store.ProjectSave(r.Context(), projectID, identity.UserID, req.Notes)
	if err != nil {
		s.recordSave("save", "failed")
		WriteStoreError(w, err)
		return
	}
	s.recordSave("save", "committed")
	WriteJSON(w, commit, http.StatusOK)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	commits, err := s.deps.Store.ProjectLog(r.Context(), projectID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, commits, http.StatusOK)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if err := s.readOptionalJSON(r, &req); err != nil {
		WriteStoreError(w, err)
		return
	}
	commit, err := s.deps.Store.ProjectSnapshot(r.Context(), projectID, identity.UserID, req.Notes)
	if err != nil {
		s.recordSave("snapshot", "failed")
		WriteStoreError(w, err)
		return
	}
	s.recordSave("snapshot", "committed")
	WriteJSON(w, commit, http.StatusCreated)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	rollup, err := s.deps.Store.ProjectCheckout(r.Context(), projectID, r.PathValue("sha"))
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, rollup, http.StatusOK)
}

// handleDiff renders a unified diff from {sha} to ?to=, or to the working
// copy when to is omitted.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	diff, err := s.deps.Store.ProjectDiff(r.Context(), projectID, r.PathValue("sha"), r.URL.Query().Get("to"))
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(diff))
}

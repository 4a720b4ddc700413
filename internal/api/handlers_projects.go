package api

import (
	"net/http"

	"github.com/google/uuid"

	"genestore/internal/auth"
	"genestore/internal/errors"
	"genestore/internal/model"
	"genestore/internal/persistence"
)

// identity returns the caller AuthMiddleware resolved.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteStoreError(w, errors.New(errors.InvalidSessionKey, "no identity on request", nil))
		return nil, false
	}
	return id, true
}

// authorizeProject checks the caller may touch {projectId}: the key's
// project patterns must match and, for a project that already exists, the
// user must hold a permission on it.
func (s *Server) authorizeProject(w http.ResponseWriter, r *http.Request) (string, *auth.Identity, bool) {
	identity, ok := s.identity(w, r)
	if !ok {
		return "", nil, false
	}
	projectID := r.PathValue("projectId")
	if !identity.CanAccessProject(projectID) {
		WriteStoreError(w, errors.Newf(errors.NotAllowed, "key may not access project %s", projectID))
		return "", nil, false
	}
	if s.deps.Access == nil {
		return projectID, identity, true
	}

	exists, err := s.deps.Store.ProjectExists(r.Context(), projectID, "")
	if err != nil {
		WriteStoreError(w, err)
		return "", nil, false
	}
	if exists {
		allowed, err := s.deps.Access.HasAccess(r.Context(), projectID, identity.UserID)
		if err != nil {
			WriteStoreError(w, err)
			return "", nil, false
		}
		if !allowed {
			WriteStoreError(w, errors.Newf(errors.NotAllowed, "user %s may not access project %s", identity.UserID, projectID))
			return "", nil, false
		}
	}
	return projectID, identity, true
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identity(w, r)
	if !ok {
		return
	}
	var p model.Project
	if err := s.readJSON(r, &p); err != nil {
		WriteStoreError(w, err)
		return
	}
	projectID := p.ID
	if projectID == "" {
		projectID = uuid.NewString()
	}
	if !identity.CanAccessProject(projectID) {
		WriteStoreError(w, errors.Newf(errors.NotAllowed, "key may not create project %s", projectID))
		return
	}

	created, err := s.deps.Store.ProjectCreate(r.Context(), projectID, &p, identity.UserID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, created, http.StatusCreated)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identity(w, r)
	if !ok {
		return
	}
	ids, err := s.deps.Store.ProjectList(r.Context(), identity.UserID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	visible := make([]string, 0, len(ids))
	for _, id := range ids {
		if identity.CanAccessProject(id) {
			visible = append(visible, id)
		}
	}
	WriteJSON(w, visible, http.StatusOK)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	p, found, err := s.deps.Store.ProjectGet(r.Context(), projectID, r.URL.Query().Get("sha"))
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if !found {
		WriteStoreError(w, errors.NotFound("project", projectID))
		return
	}
	WriteJSON(w, p, http.StatusOK)
}

func (s *Server) handleWriteProject(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var p model.Project
	if err := s.readJSON(r, &p); err != nil {
		WriteStoreError(w, err)
		return
	}
	written, err := s.deps.Store.ProjectWrite(r.Context(), projectID, &p, identity.UserID, persistence.WriteOptions{})
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, written, http.StatusOK)
}

func (s *Server) handleMergeProject(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var partial map[string]any
	if err := s.readJSON(r, &partial); err != nil {
		WriteStoreError(w, err)
		return
	}
	merged, err := s.deps.Store.ProjectMerge(r.Context(), projectID, partial, identity.UserID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, merged, http.StatusOK)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.ProjectDelete(r.Context(), projectID, QueryParamBool(r, "force", false)); err != nil {
		WriteStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

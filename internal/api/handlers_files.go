package api

import (
	"net/http"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	names, err := s.deps.Store.ProjectFileList(r.Context(), projectID, r.PathValue("extension"))
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, names, http.StatusOK)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	data, err := s.deps.Store.ProjectFileRead(r.Context(), projectID, r.PathValue("extension"), r.PathValue("name"))
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	data, err := s.readBody(r)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if data == nil {
		data = []byte{}
	}
	if err := s.deps.Store.ProjectFileWrite(r.Context(), projectID, r.PathValue("extension"), r.PathValue("name"), data); err != nil {
		WriteStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.ProjectFileDelete(r.Context(), projectID, r.PathValue("extension"), r.PathValue("name")); err != nil {
		WriteStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"

	"genestore/internal/userconfig"
)

func (s *Server) handleGetUserConfig(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identity(w, r)
	if !ok {
		return
	}
	cfg, err := s.deps.UserConfig.Get(r.Context(), identity.UserID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, cfg, http.StatusOK)
}

func (s *Server) handleSetUserConfig(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identity(w, r)
	if !ok {
		return
	}
	var cfg userconfig.Config
	if err := s.readJSON(r, &cfg); err != nil {
		WriteStoreError(w, err)
		return
	}
	stored, err := s.deps.UserConfig.Set(r.Context(), identity.UserID, cfg)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, stored, http.StatusOK)
}

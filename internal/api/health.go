package api

import (
	"net/http"
	"time"

	"genestore/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Version      string             `json:"version"`
	Uptime       string             `json:"uptime"`
	History      string             `json:"history"`
	AuthEnabled  bool               `json:"authEnabled"`
	LoadShedding *LoadSheddingStats `json:"loadShedding,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Version:     version.Info(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		History:     s.deps.Store.HistoryBackend(),
		AuthEnabled: s.deps.Auth.Enabled(),
	}
	if s.shedder != nil {
		stats := s.shedder.Stats()
		resp.LoadShedding = &stats
	}
	WriteJSON(w, resp, http.StatusOK)
}

package api

import (
	"net/http"

	"genestore/internal/events"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /openapi.json", s.handleOpenAPISpec)
	if s.metrics != nil {
		s.router.HandleFunc("GET "+s.config.Metrics.Endpoint, s.handleMetrics)
	}

	// Projects
	s.router.HandleFunc("POST /projects", s.handleCreateProject)
	s.router.HandleFunc("GET /projects", s.handleListProjects)
	s.router.HandleFunc("GET /projects/{projectId}", s.handleGetProject)
	s.router.HandleFunc("PUT /projects/{projectId}", s.handleWriteProject)
	s.router.HandleFunc("PATCH /projects/{projectId}", s.handleMergeProject)
	s.router.HandleFunc("DELETE /projects/{projectId}", s.handleDeleteProject)

	// Blocks
	s.router.HandleFunc("GET /projects/{projectId}/blocks", s.handleGetBlocks)
	s.router.HandleFunc("PUT /projects/{projectId}/blocks", s.handleWriteBlocks)
	s.router.HandleFunc("PATCH /projects/{projectId}/blocks", s.handleMergeBlocks)
	s.router.HandleFunc("GET /projects/{projectId}/blocks/{blockId}", s.handleGetBlock)
	s.router.HandleFunc("DELETE /projects/{projectId}/blocks/{blockId}", s.handleDeleteBlock)

	// History
	s.router.HandleFunc("GET /projects/{projectId}/rollup", s.handleGetRollup)
	s.router.HandleFunc("POST /projects/{projectId}/rollup", s.handleSaveRollup)
	s.router.HandleFunc("POST /projects/{projectId}/save", s.handleSaveProject)
	s.router.HandleFunc("GET /projects/{projectId}/commits", s.handleLog)
	s.router.HandleFunc("POST /projects/{projectId}/commits", s.handleSnapshot)
	s.router.HandleFunc("GET /projects/{projectId}/commits/{sha}", s.handleCheckout)
	s.router.HandleFunc("GET /projects/{projectId}/commits/{sha}/diff", s.handleDiff)

	// Orders
	s.router.HandleFunc("GET /projects/{projectId}/orders", s.handleListOrders)
	s.router.HandleFunc("GET /projects/{projectId}/orders/{orderId}", s.handleGetOrder)
	s.router.HandleFunc("POST /projects/{projectId}/orders/{orderId}", s.handleCreateOrder)

	// Project files
	s.router.HandleFunc("GET /projects/{projectId}/files/{extension}", s.handleListFiles)
	s.router.HandleFunc("GET /projects/{projectId}/files/{extension}/{name}", s.handleReadFile)
	s.router.HandleFunc("POST /projects/{projectId}/files/{extension}/{name}", s.handleWriteFile)
	s.router.HandleFunc("DELETE /projects/{projectId}/files/{extension}/{name}", s.handleDeleteFile)

	// Sequences
	s.router.HandleFunc("GET /sequences/{md5}", s.handleGetSequence)
	s.router.HandleFunc("POST /sequences/{md5}", s.handleWriteSequence)
	s.router.HandleFunc("DELETE /sequences/{md5}", s.handleDeleteSequence)

	// User configuration
	if s.deps.UserConfig != nil {
		s.router.HandleFunc("GET /users/me/config", s.handleGetUserConfig)
		s.router.HandleFunc("PUT /users/me/config", s.handleSetUserConfig)
	}

	// Change feed
	if s.deps.Events != nil {
		stream := events.Handler(s.deps.Events, s.logger)
		s.router.HandleFunc("GET /events/{projectId}", func(w http.ResponseWriter, r *http.Request) {
			if _, _, ok := s.authorizeProject(w, r); !ok {
				return
			}
			stream(w, r)
		})
	}

	s.router.HandleFunc("/", s.handleUnknownRoute)
}

func (s *Server) handleUnknownRoute(w http.ResponseWriter, r *http.Request) {
	NotFound(w, "no route for "+r.Method+" "+r.URL.Path)
}

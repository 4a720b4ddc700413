package api

import (
	"net/http"
	"strconv"
	"strings"

	"genestore/internal/version"
)

type routeDoc struct {
	Method   string
	Path     string
	Summary  string
	Statuses []int
}

var routeDocs = []routeDoc{
	{"GET", "/health", "Liveness and store summary", []int{200}},

	{"POST", "/projects", "Create a project", []int{201, 400, 409}},
	{"GET", "/projects", "List projects visible to the caller", []int{200}},
	{"GET", "/projects/{projectId}", "Read the project manifest (?sha for a version)", []int{200, 404}},
	{"PUT", "/projects/{projectId}", "Replace the project manifest", []int{200, 400, 404}},
	{"PATCH", "/projects/{projectId}", "Deep-merge a patch into the project manifest", []int{200, 400, 404}},
	{"DELETE", "/projects/{projectId}", "Move a project to the trash (?force=true purges)", []int{204, 403, 404}},

	{"GET", "/projects/{projectId}/blocks", "Read blocks (?sha, ?ids)", []int{200, 404}},
	{"PUT", "/projects/{projectId}/blocks", "Write blocks (?overwrite=true replaces the map)", []int{200, 400, 404}},
	{"PATCH", "/projects/{projectId}/blocks", "Deep-merge patches into blocks", []int{200, 400, 404}},
	{"GET", "/projects/{projectId}/blocks/{blockId}", "Read one block", []int{200, 404}},
	{"DELETE", "/projects/{projectId}/blocks/{blockId}", "Remove one block", []int{200, 404}},

	{"GET", "/projects/{projectId}/rollup", "Read project and blocks together (?sha)", []int{200, 404}},
	{"POST", "/projects/{projectId}/rollup", "Write and save a rollup, skipping unchanged content", []int{200, 400, 404}},
	{"POST", "/projects/{projectId}/save", "Commit the working state", []int{200, 404}},
	{"GET", "/projects/{projectId}/commits", "List saves, newest first", []int{200, 404}},
	{"POST", "/projects/{projectId}/commits", "Record a named snapshot", []int{201, 404}},
	{"GET", "/projects/{projectId}/commits/{sha}", "Restore the working state to a save", []int{200, 404}},
	{"GET", "/projects/{projectId}/commits/{sha}/diff", "Unified diff from a save to another (?to) or the working state", []int{200, 404}},

	{"GET", "/projects/{projectId}/orders", "List order ids", []int{200, 404}},
	{"GET", "/projects/{projectId}/orders/{orderId}", "Read an order (?rollup=true includes its rollup)", []int{200, 404}},
	{"POST", "/projects/{projectId}/orders/{orderId}", "Create an order once", []int{201, 400, 404, 409}},

	{"GET", "/projects/{projectId}/files/{extension}", "List extension files", []int{200, 404}},
	{"GET", "/projects/{projectId}/files/{extension}/{name}", "Read an extension file", []int{200, 404}},
	{"POST", "/projects/{projectId}/files/{extension}/{name}", "Write an extension file", []int{204, 404}},
	{"DELETE", "/projects/{projectId}/files/{extension}/{name}", "Delete an extension file", []int{204, 404}},

	{"GET", "/sequences/{md5}", "Read a sequence (md5 may carry a [start:end] range)", []int{200, 204, 404, 422}},
	{"POST", "/sequences/{md5}", "Store a sequence under its md5", []int{204, 422}},
	{"DELETE", "/sequences/{md5}", "Sequences are immutable", []int{403}},

	{"GET", "/users/me/config", "Read the caller's configuration", []int{200}},
	{"PUT", "/users/me/config", "Replace the caller's configuration", []int{200, 400}},
	{"GET", "/events/{projectId}", "Websocket change feed", []int{101, 404}},
	{"GET", "/metrics", "Prometheus metrics", []int{200}},
}

func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, GenerateOpenAPISpec(), http.StatusOK)
}

// GenerateOpenAPISpec describes every route the server can register.
func GenerateOpenAPISpec() map[string]interface{} {
	paths := make(map[string]interface{})
	for _, rd := range routeDocs {
		ops, ok := paths[rd.Path].(map[string]interface{})
		if !ok {
			ops = make(map[string]interface{})
			paths[rd.Path] = ops
		}

		responses := make(map[string]interface{}, len(rd.Statuses))
		for _, code := range rd.Statuses {
			responses[strconv.Itoa(code)] = map[string]interface{}{
				"description": http.StatusText(code),
			}
		}
		op := map[string]interface{}{
			"summary":   rd.Summary,
			"responses": responses,
		}
		if params := pathParams(rd.Path); len(params) > 0 {
			op["parameters"] = params
		}
		ops[strings.ToLower(rd.Method)] = op
	}

	return map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "genestore HTTP API",
			"version":     version.Version,
			"description": "Versioned storage for genetic design projects, blocks, orders and sequences",
		},
		"paths": paths,
	}
}

func pathParams(path string) []map[string]interface{} {
	var params []map[string]interface{}
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, map[string]interface{}{
				"name":     strings.Trim(seg, "{}"),
				"in":       "path",
				"required": true,
				"schema":   map[string]string{"type": "string"},
			})
		}
	}
	return params
}

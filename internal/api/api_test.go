package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"genestore/internal/auth"
	"genestore/internal/history/sqlvcs"
	"genestore/internal/model"
	"genestore/internal/paths"
	"genestore/internal/persistence"
	"genestore/internal/sequence"
	"genestore/internal/slogutil"
	"genestore/internal/storage"
	"genestore/internal/userconfig"
)

// newTestServer builds a server over a fresh storage root with the sqlite
// history backend. mutate may adjust deps and config before construction.
func newTestServer(t *testing.T, mutate ...func(*Deps, *ServerConfig)) *Server {
	t.Helper()
	logger := slogutil.NewDiscardLogger()

	vcs, err := sqlvcs.New(logger, 1)
	if err != nil {
		t.Fatalf("sqlvcs.New failed: %v", err)
	}
	t.Cleanup(func() { _ = vcs.Close() })

	resolver := paths.New(t.TempDir())
	store, err := persistence.New(persistence.Options{
		Paths:     resolver,
		Versioner: vcs,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("persistence.New failed: %v", err)
	}

	deps := Deps{
		Store:     store,
		Sequences: sequence.New(resolver, true, logger),
	}
	cfg := DefaultServerConfig()
	for _, m := range mutate {
		m(&deps, cfg)
	}

	server, err := NewServer(":0", deps, cfg, logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server
}

func do(t *testing.T, s *Server, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v; body: %s", err, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, w, &resp)
	return resp.Code
}

const (
	projectBody = `{"id":"p1","metadata":{"name":"design"},"components":["b1"]}`
	blocksBody  = `{"b1":{"id":"b1","metadata":{"name":"promoter"},"components":[],"sequence":{"length":4}}}`
)

func createProject(t *testing.T, s *Server) {
	t.Helper()
	expectStatus(t, do(t, s, "POST", "/projects", projectBody), http.StatusCreated)
	expectStatus(t, do(t, s, "PUT", "/projects/p1/blocks", blocksBody), http.StatusOK)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := do(t, server, "GET", "/health", "")
	expectStatus(t, w, http.StatusOK)

	var resp HealthResponse
	decode(t, w, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.History != sqlvcs.BackendID {
		t.Errorf("history = %q, want %q", resp.History, sqlvcs.BackendID)
	}
	if resp.AuthEnabled {
		t.Error("auth should be disabled by default")
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := do(t, server, "GET", "/openapi.json", "")
	expectStatus(t, w, http.StatusOK)

	var spec map[string]any
	decode(t, w, &spec)
	documented, ok := spec["paths"].(map[string]any)
	if !ok {
		t.Fatal("spec should have paths")
	}
	if _, ok := documented["/projects/{projectId}/rollup"]; !ok {
		t.Error("spec should document the rollup route")
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
	}{
		{"unknown path", "GET", "/nowhere"},
		{"unknown method", "PATCH", "/sequences/abc"},
		{"too deep", "GET", "/projects/p1/blocks/b1/extra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, tt.method, tt.target, "")
			expectStatus(t, w, http.StatusNotFound)
			if code := errorCode(t, w); code != "INVALID_ROUTE" {
				t.Errorf("code = %q, want INVALID_ROUTE", code)
			}
		})
	}
}

func TestProjectRoutes(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)

	w := do(t, server, "POST", "/projects", projectBody)
	expectStatus(t, w, http.StatusConflict)
	if code := errorCode(t, w); code != "ALREADY_EXISTS" {
		t.Errorf("code = %q, want ALREADY_EXISTS", code)
	}

	w = do(t, server, "GET", "/projects/p1", "")
	expectStatus(t, w, http.StatusOK)
	var p model.Project
	decode(t, w, &p)
	if p.Metadata.Name != "design" {
		t.Errorf("name = %q, want design", p.Metadata.Name)
	}
	if len(p.Metadata.Authors) != 1 || p.Metadata.Authors[0] != "local" {
		t.Errorf("authors = %v, want [local]", p.Metadata.Authors)
	}

	w = do(t, server, "GET", "/projects/missing", "")
	expectStatus(t, w, http.StatusNotFound)
	if code := errorCode(t, w); code != "DOES_NOT_EXIST" {
		t.Errorf("code = %q, want DOES_NOT_EXIST", code)
	}

	w = do(t, server, "PATCH", "/projects/p1", `{"metadata":{"description":"gfp"}}`)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &p)
	if p.Metadata.Name != "design" || p.Metadata.Description != "gfp" {
		t.Errorf("merge lost fields: %+v", p.Metadata)
	}

	w = do(t, server, "GET", "/projects", "")
	expectStatus(t, w, http.StatusOK)
	var ids []string
	decode(t, w, &ids)
	if len(ids) != 1 || ids[0] != "p1" {
		t.Errorf("projects = %v, want [p1]", ids)
	}

	expectStatus(t, do(t, server, "PUT", "/projects/p1", `{"metadata":{"authors":[""]}}`), http.StatusBadRequest)
	expectStatus(t, do(t, server, "PUT", "/projects/p1", `not json`), http.StatusBadRequest)

	expectStatus(t, do(t, server, "DELETE", "/projects/p1", ""), http.StatusNoContent)
	expectStatus(t, do(t, server, "GET", "/projects/p1", ""), http.StatusNotFound)
}

func TestCreateProject_GeneratesID(t *testing.T) {
	server := newTestServer(t)

	w := do(t, server, "POST", "/projects", `{"metadata":{"name":"anonymous"}}`)
	expectStatus(t, w, http.StatusCreated)
	var p model.Project
	decode(t, w, &p)
	if p.ID == "" {
		t.Fatal("created project should have an id")
	}
	expectStatus(t, do(t, server, "GET", "/projects/"+p.ID, ""), http.StatusOK)
}

func TestBlockRoutes(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)

	expectStatus(t, do(t, server, "PUT", "/projects/p1/blocks",
		`{"b2":{"id":"b2","metadata":{"name":"cds"},"components":[],"sequence":{"length":9}}}`), http.StatusOK)

	w := do(t, server, "GET", "/projects/p1/blocks?ids=b2", "")
	expectStatus(t, w, http.StatusOK)
	var blocks model.BlockMap
	decode(t, w, &blocks)
	if len(blocks) != 1 || blocks["b2"] == nil {
		t.Errorf("blocks = %v, want only b2", blocks.IDs())
	}

	w = do(t, server, "PATCH", "/projects/p1/blocks", `{"b1":{"metadata":{"color":"red"}}}`)
	expectStatus(t, w, http.StatusOK)

	w = do(t, server, "GET", "/projects/p1/blocks/b1", "")
	expectStatus(t, w, http.StatusOK)
	var b model.Block
	decode(t, w, &b)
	if b.Metadata.Color != "red" || b.Metadata.Name != "promoter" {
		t.Errorf("block after merge = %+v", b.Metadata)
	}

	expectStatus(t, do(t, server, "PUT", "/projects/p1/blocks", `{"bx":{"id":"other"}}`), http.StatusBadRequest)

	expectStatus(t, do(t, server, "DELETE", "/projects/p1/blocks/b2", ""), http.StatusOK)
	expectStatus(t, do(t, server, "GET", "/projects/p1/blocks/b2", ""), http.StatusNotFound)

	w = do(t, server, "PUT", "/projects/p1/blocks?overwrite=true", blocksBody)
	expectStatus(t, w, http.StatusOK)
	blocks = nil
	decode(t, w, &blocks)
	if len(blocks) != 1 {
		t.Errorf("overwrite should leave one block, got %v", blocks.IDs())
	}
}

func TestHistoryRoutes(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)

	w := do(t, server, "POST", "/projects/p1/save", `{"notes":"first"}`)
	expectStatus(t, w, http.StatusOK)
	var first struct {
		SHA string `json:"sha"`
	}
	decode(t, w, &first)
	if first.SHA == "" {
		t.Fatal("save should return a sha")
	}

	w = do(t, server, "GET", "/projects/p1", "")
	var p model.Project
	decode(t, w, &p)
	if p.Version != first.SHA {
		t.Errorf("version = %q, want %q", p.Version, first.SHA)
	}

	expectStatus(t, do(t, server, "PATCH", "/projects/p1", `{"metadata":{"name":"renamed"}}`), http.StatusOK)

	w = do(t, server, "GET", "/projects/p1/commits/"+first.SHA+"/diff", "")
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "+") || !strings.Contains(w.Body.String(), "renamed") {
		t.Errorf("diff should show the rename:\n%s", w.Body.String())
	}

	expectStatus(t, do(t, server, "POST", "/projects/p1/commits", ""), http.StatusCreated)

	w = do(t, server, "GET", "/projects/p1/commits", "")
	expectStatus(t, w, http.StatusOK)
	var commits []map[string]any
	decode(t, w, &commits)
	if len(commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(commits))
	}

	w = do(t, server, "GET", "/projects/p1?sha="+first.SHA, "")
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &p)
	if p.Metadata.Name != "design" {
		t.Errorf("versioned name = %q, want design", p.Metadata.Name)
	}

	expectStatus(t, do(t, server, "GET", "/projects/p1?sha=0000000", ""), http.StatusNotFound)
	expectStatus(t, do(t, server, "GET", "/projects/p1/commits/"+first.SHA, ""), http.StatusOK)
}

func TestRollupRoutes(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)

	w := do(t, server, "GET", "/projects/p1/rollup", "")
	expectStatus(t, w, http.StatusOK)
	var rollup model.Rollup
	decode(t, w, &rollup)
	if rollup.Project == nil || len(rollup.Blocks) != 1 {
		t.Fatalf("rollup = %+v", rollup)
	}

	edited := `{"id":"p1","metadata":{"name":"design","description":"v2"},"components":["b1"]}`
	body := `{"project":` + edited + `,"blocks":` + blocksBody + `,"notes":"sync"}`
	w = do(t, server, "POST", "/projects/p1/rollup", body)
	expectStatus(t, w, http.StatusOK)
	var res persistence.SaveResult
	decode(t, w, &res)
	if res.Skipped || res.Commit == nil {
		t.Fatalf("changed rollup should commit: %+v", res)
	}

	w = do(t, server, "POST", "/projects/p1/rollup", body)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &res)
	if !res.Skipped {
		t.Error("identical rollup should be skipped")
	}
}

func TestOrderRoutes(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)

	w := do(t, server, "POST", "/projects/p1/orders/o1", `{"order":{"constructs":["b1"]}}`)
	expectStatus(t, w, http.StatusBadRequest)

	expectStatus(t, do(t, server, "POST", "/projects/p1/save", ""), http.StatusOK)

	w = do(t, server, "POST", "/projects/p1/orders/o1", `{"order":{"constructs":["b1"]}}`)
	expectStatus(t, w, http.StatusCreated)
	var o model.Order
	decode(t, w, &o)
	if o.ProjectVersion == "" || o.User != "local" || o.ProjectID != "p1" {
		t.Errorf("order = %+v", o)
	}

	expectStatus(t, do(t, server, "POST", "/projects/p1/orders/o1", `{"order":{"constructs":["b1"]}}`), http.StatusConflict)

	w = do(t, server, "GET", "/projects/p1/orders", "")
	expectStatus(t, w, http.StatusOK)
	var ids []string
	decode(t, w, &ids)
	if len(ids) != 1 || ids[0] != "o1" {
		t.Errorf("orders = %v, want [o1]", ids)
	}

	w = do(t, server, "GET", "/projects/p1/orders/o1?rollup=true", "")
	expectStatus(t, w, http.StatusOK)
	var rollup model.Rollup
	decode(t, w, &rollup)
	if rollup.Blocks["b1"] == nil {
		t.Error("order rollup should include b1")
	}

	expectStatus(t, do(t, server, "GET", "/projects/p1/orders/o2", ""), http.StatusNotFound)
}

func TestSequenceRoutes(t *testing.T) {
	server := newTestServer(t)
	md5 := model.MD5Hex("ACGTACGT")

	expectStatus(t, do(t, server, "GET", "/sequences/"+md5, ""), http.StatusNoContent)
	expectStatus(t, do(t, server, "POST", "/sequences/"+md5, "ACGTACGT"), http.StatusNoContent)

	w := do(t, server, "GET", "/sequences/"+md5, "")
	expectStatus(t, w, http.StatusOK)
	if w.Body.String() != "ACGTACGT" {
		t.Errorf("sequence = %q", w.Body.String())
	}

	w = do(t, server, "GET", "/sequences/"+md5+"%5B2%3A5%5D", "")
	expectStatus(t, w, http.StatusOK)
	if w.Body.String() != "GTA" {
		t.Errorf("range = %q, want GTA", w.Body.String())
	}

	expectStatus(t, do(t, server, "POST", "/sequences/"+md5, "TTTT"), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, server, "POST", "/sequences/not-an-md5", "TTTT"), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, server, "GET", "/sequences/not-an-md5", ""), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, server, "DELETE", "/sequences/"+md5, ""), http.StatusForbidden)
}

func TestFileRoutes(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)

	expectStatus(t, do(t, server, "POST", "/projects/p1/files/notes/readme.txt", "hello"), http.StatusNoContent)

	w := do(t, server, "GET", "/projects/p1/files/notes/readme.txt", "")
	expectStatus(t, w, http.StatusOK)
	if w.Body.String() != "hello" {
		t.Errorf("file = %q", w.Body.String())
	}

	w = do(t, server, "GET", "/projects/p1/files/notes", "")
	expectStatus(t, w, http.StatusOK)
	var names []string
	decode(t, w, &names)
	if len(names) != 1 || names[0] != "readme.txt" {
		t.Errorf("files = %v", names)
	}

	expectStatus(t, do(t, server, "DELETE", "/projects/p1/files/notes/readme.txt", ""), http.StatusNoContent)
	expectStatus(t, do(t, server, "GET", "/projects/p1/files/notes/readme.txt", ""), http.StatusNotFound)
	expectStatus(t, do(t, server, "POST", "/projects/nope/files/notes/a.txt", "x"), http.StatusNotFound)
}

func TestUserConfigRoutes(t *testing.T) {
	server := newTestServer(t, func(d *Deps, _ *ServerConfig) {
		db, err := storage.Open(t.TempDir(), slogutil.NewDiscardLogger())
		if err != nil {
			t.Fatalf("storage.Open failed: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		defaults, err := userconfig.LoadDefaults("")
		if err != nil {
			t.Fatalf("LoadDefaults failed: %v", err)
		}
		d.UserConfig = userconfig.New(db, defaults, slogutil.NewDiscardLogger())
	})

	w := do(t, server, "GET", "/users/me/config", "")
	expectStatus(t, w, http.StatusOK)
	var cfg userconfig.Config
	decode(t, w, &cfg)
	if cfg.AccountType == "" {
		t.Error("defaults should carry an account type")
	}

	w = do(t, server, "PUT", "/users/me/config", `{"accountType":"paid","projects":{},"extensions":{}}`)
	expectStatus(t, w, http.StatusOK)

	w = do(t, server, "GET", "/users/me/config", "")
	decode(t, w, &cfg)
	if cfg.AccountType != "paid" {
		t.Errorf("accountType = %q, want paid", cfg.AccountType)
	}

	expectStatus(t, do(t, server, "PUT", "/users/me/config", `{"accountType":""}`), http.StatusBadRequest)
}

func TestUserConfigRoutes_NotRegisteredWithoutStore(t *testing.T) {
	server := newTestServer(t)
	expectStatus(t, do(t, server, "GET", "/users/me/config", ""), http.StatusNotFound)
}

func TestBodyLimit(t *testing.T) {
	server := newTestServer(t, func(_ *Deps, cfg *ServerConfig) {
		cfg.HTTP.MaxBodySize = "64B"
	})

	big := `{"metadata":{"name":"` + strings.Repeat("x", 128) + `"}}`
	w := do(t, server, "POST", "/projects", big)
	expectStatus(t, w, http.StatusBadRequest)
	if code := errorCode(t, w); code != "INVALID_MODEL" {
		t.Errorf("code = %q, want INVALID_MODEL", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)
	expectStatus(t, do(t, server, "POST", "/projects/p1/save", ""), http.StatusOK)

	w := do(t, server, "GET", "/metrics", "")
	expectStatus(t, w, http.StatusOK)
	body := w.Body.String()
	if !strings.Contains(body, `genestore_http_requests_total{method="POST",status="201"} 1`) {
		t.Errorf("metrics should count the create:\n%s", body)
	}
	if !strings.Contains(body, `genestore_saves_total{kind="save",outcome="committed"} 1`) {
		t.Error("metrics should count the save")
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	server := newTestServer(t, func(_ *Deps, cfg *ServerConfig) {
		cfg.Metrics.Enabled = false
	})
	expectStatus(t, do(t, server, "GET", "/metrics", ""), http.StatusNotFound)
}

// denyAll refuses every user on every existing project.
type denyAll struct{}

func (denyAll) HasAccess(context.Context, string, string) (bool, error) { return false, nil }

func TestAccessChecker(t *testing.T) {
	server := newTestServer(t)
	createProject(t, server)

	server.deps.Access = denyAll{}

	w := do(t, server, "GET", "/projects/p1", "")
	expectStatus(t, w, http.StatusForbidden)
	if code := errorCode(t, w); code != "NOT_ALLOWED" {
		t.Errorf("code = %q, want NOT_ALLOWED", code)
	}

	// a project that does not exist yet is not guarded
	expectStatus(t, do(t, server, "PUT", "/projects/p2", `{"metadata":{"name":"new"}}`), http.StatusOK)
}

func TestStaticKeyAuth(t *testing.T) {
	server := newTestServer(t, func(d *Deps, cfg *ServerConfig) {
		cfg.Auth = auth.ManagerConfig{
			Enabled: true,
			StaticKeys: []auth.StaticKeyConfig{
				{ID: "reader", Name: "Reader", UserID: "alice", Token: "read-token-1", Scopes: []string{"read"}},
				{ID: "writer", Name: "Writer", UserID: "bob", Token: "write-token-1", Scopes: []string{"write"}, ProjectPatterns: []string{"lab-*"}},
			},
		}
		manager, err := auth.NewManager(cfg.Auth, nil, slogutil.NewDiscardLogger())
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}
		d.Auth = manager
	})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		token  string
		want   int
	}{
		{"health is open", "GET", "/health", "", "", http.StatusOK},
		{"missing token", "GET", "/projects", "", "", http.StatusUnauthorized},
		{"wrong token", "GET", "/projects", "", "nope-token", http.StatusUnauthorized},
		{"reader lists", "GET", "/projects", "", "read-token-1", http.StatusOK},
		{"reader cannot write", "POST", "/projects", `{"id":"lab-1"}`, "read-token-1", http.StatusForbidden},
		{"writer creates in pattern", "POST", "/projects", `{"id":"lab-1"}`, "write-token-1", http.StatusCreated},
		{"writer outside pattern", "POST", "/projects", `{"id":"home-1"}`, "write-token-1", http.StatusForbidden},
		{"writer reads outside pattern", "GET", "/projects/home-1", "", "write-token-1", http.StatusForbidden},
		{"forced delete needs admin", "DELETE", "/projects/lab-1?force=true", "", "write-token-1", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.token == "" {
				w = do(t, server, tt.method, tt.target, tt.body)
			} else {
				w = do(t, server, tt.method, tt.target, tt.body, "Authorization", "Bearer "+tt.token)
			}
			expectStatus(t, w, tt.want)
		})
	}

	w := do(t, server, "GET", "/projects?token=read-token-1", "")
	expectStatus(t, w, http.StatusOK)
}

func TestRateLimitedKey(t *testing.T) {
	server := newTestServer(t, func(d *Deps, cfg *ServerConfig) {
		cfg.Auth = auth.ManagerConfig{
			Enabled: true,
			StaticKeys: []auth.StaticKeyConfig{
				{ID: "k", Name: "K", UserID: "carol", Token: "limited-token", Scopes: []string{"read"}},
			},
			RateLimiting: auth.RateLimitConfig{Enabled: true, DefaultLimit: 1, BurstSize: 1},
		}
		manager, err := auth.NewManager(cfg.Auth, nil, slogutil.NewDiscardLogger())
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}
		d.Auth = manager
	})

	expectStatus(t, do(t, server, "GET", "/projects", "", "Authorization", "Bearer limited-token"), http.StatusOK)

	w := do(t, server, "GET", "/projects", "", "Authorization", "Bearer limited-token")
	expectStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After should be set")
	}
}

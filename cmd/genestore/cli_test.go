package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"genestore/internal/errors"
	"genestore/internal/model"
)

// resetFlags puts every flag back to its default; cobra keeps parsed values
// between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--root", root, "--quiet"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, root string, args ...string) string {
	t.Helper()
	out, err := run(t, root, args...)
	if err != nil {
		t.Fatalf("genestore %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out := mustRun(t, t.TempDir(), "version")
	if !strings.HasPrefix(out, "genestore version ") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestProjectLifecycle(t *testing.T) {
	root := t.TempDir()
	inputs := t.TempDir()

	out := mustRun(t, root, "project", "create", "p1", "--name", "Promoters", "--user", "alice", "--format", "json")
	var created model.Project
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode create output: %v\n%s", err, out)
	}
	if created.ID != "p1" || created.Metadata.Name != "Promoters" {
		t.Errorf("created = %+v", created)
	}

	if _, err := run(t, root, "project", "create", "p1"); !errors.IsCode(err, errors.AlreadyExists) {
		t.Errorf("second create error = %v, want ALREADY_EXISTS", err)
	}

	blocks := writeFile(t, inputs, "blocks.json", `{
		"b1": {"id": "b1", "projectId": "p1", "metadata": {"name": "promoter", "authors": []}, "components": [], "sequence": {"length": 0}}
	}`)
	mustRun(t, root, "blocks", "write", "p1", "--file", blocks)

	mustRun(t, root, "project", "save", "p1", "-m", "first save", "--user", "alice")

	out = mustRun(t, root, "project", "log", "p1", "--format", "json")
	var commits []struct {
		SHA    string `json:"sha"`
		Author string `json:"author"`
	}
	if err := json.Unmarshal([]byte(out), &commits); err != nil {
		t.Fatalf("decode log output: %v\n%s", err, out)
	}
	if len(commits) != 1 || commits[0].Author != "alice" {
		t.Fatalf("log = %+v", commits)
	}

	out = mustRun(t, root, "project", "get", "p1", "--format", "json")
	var saved model.Project
	if err := json.Unmarshal([]byte(out), &saved); err != nil {
		t.Fatalf("decode get output: %v", err)
	}
	if saved.Version != commits[0].SHA {
		t.Errorf("version = %q, want the save sha %q", saved.Version, commits[0].SHA)
	}

	out = mustRun(t, root, "blocks", "get", "p1", "b1")
	if !strings.Contains(out, "Block b1") {
		t.Errorf("unexpected block output:\n%s", out)
	}

	if _, err := run(t, root, "project", "get", "missing"); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("get missing error = %v, want DOES_NOT_EXIST", err)
	}

	out = mustRun(t, root, "project", "list", "--user", "alice", "--format", "json")
	if !strings.Contains(out, `"p1"`) {
		t.Errorf("list output missing p1: %s", out)
	}

	mustRun(t, root, "project", "delete", "p1")
	if _, err := run(t, root, "project", "get", "p1"); err == nil {
		t.Error("expected the trashed project to be gone")
	}
}

func TestOrderCreate_RequiresSave(t *testing.T) {
	root := t.TempDir()
	order := writeFile(t, t.TempDir(), "order.json", `{"constructs": ["b1"], "metadata": {"name": "run 1", "authors": []}}`)

	mustRun(t, root, "project", "create", "p1", "--name", "Plasmids")
	if _, err := run(t, root, "order", "create", "p1", "o1", "--file", order); !errors.IsCode(err, errors.InvalidModel) {
		t.Fatalf("order on an unsaved project error = %v, want INVALID_MODEL", err)
	}

	mustRun(t, root, "project", "save", "p1")
	out := mustRun(t, root, "order", "create", "p1", "o1", "--file", order, "--format", "json")
	var created model.Order
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode order: %v\n%s", err, out)
	}
	if created.ProjectVersion == "" || created.User != "local" {
		t.Errorf("order = %+v", created)
	}

	if _, err := run(t, root, "order", "create", "p1", "o1", "--file", order); !errors.IsCode(err, errors.AlreadyExists) {
		t.Errorf("duplicate order error = %v, want ALREADY_EXISTS", err)
	}

	out = mustRun(t, root, "order", "list", "p1", "--format", "json")
	if !strings.Contains(out, `"o1"`) {
		t.Errorf("order list missing o1: %s", out)
	}
}

func TestSequencePutGet(t *testing.T) {
	root := t.TempDir()

	hash := strings.TrimSpace(mustRun(t, root, "sequence", "put", "ACGTACGT"))
	if hash != model.MD5Hex("ACGTACGT") {
		t.Fatalf("put printed %q, want the md5", hash)
	}

	if got := strings.TrimSpace(mustRun(t, root, "sequence", "get", hash)); got != "ACGTACGT" {
		t.Errorf("get = %q", got)
	}
	if got := strings.TrimSpace(mustRun(t, root, "sequence", "get", hash+"[2:5]")); got != "GTA" {
		t.Errorf("ranged get = %q, want GTA", got)
	}
	if _, err := run(t, root, "sequence", "get", model.MD5Hex("TTTT")); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("missing sequence error = %v, want DOES_NOT_EXIST", err)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	root := t.TempDir()

	mustRun(t, root, "config", "init")
	if _, err := os.Stat(filepath.Join(root, "config.json")); err != nil {
		t.Fatalf("config.json not written: %v", err)
	}
	if _, err := run(t, root, "config", "init"); err == nil {
		t.Error("expected init to refuse overwriting")
	}

	out := mustRun(t, root, "config", "show", "--format", "json", "--diff")
	if strings.TrimSpace(out) != "{}" {
		t.Errorf("fresh config should not differ from defaults, got %s", out)
	}

	out = mustRun(t, root, "config", "show")
	if !strings.Contains(out, "backend: sqlite") {
		t.Errorf("human output missing history backend:\n%s", out)
	}
}

func TestConfigDefaults(t *testing.T) {
	root := t.TempDir()

	out := mustRun(t, root, "config", "defaults")
	if !strings.Contains(out, "account_type") {
		t.Errorf("expected TOML defaults, got:\n%s", out)
	}

	override := writeFile(t, root, "defaults.toml", "account_type = \"lab\"\n")
	out = mustRun(t, root, "config", "defaults", "--file", override, "--format", "json")
	var cfg map[string]interface{}
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode defaults: %v\n%s", err, out)
	}
	if cfg["accountType"] != "lab" {
		t.Errorf("accountType = %v, want lab", cfg["accountType"])
	}
}

func TestTokenCommands(t *testing.T) {
	root := t.TempDir()

	out := mustRun(t, root, "token", "create", "--name", "bench", "--owner", "alice",
		"--scopes", "read,write", "--projects", "lab-*", "--format", "json")
	var created map[string]interface{}
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode token: %v\n%s", err, out)
	}
	keyID, _ := created["key_id"].(string)
	token, _ := created["token"].(string)
	if !strings.HasPrefix(keyID, "gs_key_") || !strings.HasPrefix(token, "gs_sk_") {
		t.Fatalf("created = %v", created)
	}

	out = mustRun(t, root, "token", "list")
	if !strings.Contains(out, keyID) || !strings.Contains(out, "read,write") {
		t.Errorf("list output missing the key:\n%s", out)
	}

	mustRun(t, root, "token", "revoke", keyID)
	out = mustRun(t, root, "token", "list")
	if strings.Contains(out, keyID) {
		t.Errorf("revoked key listed without --show-revoked:\n%s", out)
	}
	out = mustRun(t, root, "token", "list", "--show-revoked")
	if !strings.Contains(out, "[REVOKED]") {
		t.Errorf("expected the revoked marker:\n%s", out)
	}

	if _, err := run(t, root, "token", "create", "--name", "x", "--owner", "a", "--scopes", "root"); err == nil {
		t.Error("expected an invalid scope error")
	}
}

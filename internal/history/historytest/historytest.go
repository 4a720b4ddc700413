// Package historytest holds the behaviour every history backend must share.
package historytest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"genestore/internal/commitmsg"
	"genestore/internal/errors"
	"genestore/internal/history"
)

// Factory returns a fresh backend for one subtest.
type Factory func(t *testing.T) history.Versioner

// Run exercises a backend against the Versioner contract.
func Run(t *testing.T, newBackend Factory) {
	t.Run("InitializeTwice", func(t *testing.T) { testInitializeTwice(t, newBackend(t)) })
	t.Run("CommitAlwaysCreatesOne", func(t *testing.T) { testCommitAlwaysCreatesOne(t, newBackend(t)) })
	t.Run("CheckoutIsPointInTime", func(t *testing.T) { testCheckoutIsPointInTime(t, newBackend(t)) })
	t.Run("CheckoutMissing", func(t *testing.T) { testCheckoutMissing(t, newBackend(t)) })
	t.Run("HiddenFilesExcluded", func(t *testing.T) { testHiddenFilesExcluded(t, newBackend(t)) })
	t.Run("GetCommitParsesMessage", func(t *testing.T) { testGetCommitParsesMessage(t, newBackend(t)) })
	t.Run("Uninitialized", func(t *testing.T) { testUninitialized(t, newBackend(t)) })
}

func newDataDir(t *testing.T, v history.Versioner) string {
	t.Helper()
	dataPath := filepath.Join(t.TempDir(), "data")
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		t.Fatal(err)
	}
	if err := v.Initialize(context.Background(), dataPath, "u1"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return dataPath
}

func writeFile(t *testing.T, dataPath, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dataPath, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func commit(t *testing.T, v history.Versioner, dataPath string, msg commitmsg.Message) string {
	t.Helper()
	sha, err := v.Commit(context.Background(), dataPath, msg.Encode(), "u1")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if sha == "" {
		t.Fatal("Commit returned empty sha")
	}
	return sha
}

func testInitializeTwice(t *testing.T, v history.Versioner) {
	dataPath := newDataDir(t, v)
	err := v.Initialize(context.Background(), dataPath, "u1")
	if !errors.IsCode(err, errors.AlreadyExists) {
		t.Errorf("second Initialize = %v, want ALREADY_EXISTS", err)
	}
}

func testCommitAlwaysCreatesOne(t *testing.T, v history.Versioner) {
	ctx := context.Background()
	dataPath := newDataDir(t, v)

	log, err := v.Log(ctx, dataPath)
	if err != nil {
		t.Fatalf("Log on empty history failed: %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("empty history has %d commits", len(log))
	}

	writeFile(t, dataPath, "blocks.json", "{}")
	first := commit(t, v, dataPath, commitmsg.SaveMessage("p1", ""))
	second := commit(t, v, dataPath, commitmsg.SaveMessage("p1", "no changes"))

	if first == second {
		t.Error("an unchanged tree must still produce a distinct commit")
	}

	log, err = v.Log(ctx, dataPath)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("Log has %d commits, want 2", len(log))
	}
	if log[0].SHA != second || log[1].SHA != first {
		t.Errorf("Log order = [%s %s], want newest first [%s %s]", log[0].SHA, log[1].SHA, second, first)
	}

	for _, sha := range []string{first, second} {
		ok, err := v.VersionExists(ctx, dataPath, sha)
		if err != nil || !ok {
			t.Errorf("VersionExists(%s) = %v, %v; want true", sha, ok, err)
		}
	}
}

func testCheckoutIsPointInTime(t *testing.T, v history.Versioner) {
	ctx := context.Background()
	dataPath := newDataDir(t, v)

	writeFile(t, dataPath, "blocks.json", `{"b1":{"id":"b1"}}`)
	first := commit(t, v, dataPath, commitmsg.SaveMessage("p1", ""))

	writeFile(t, dataPath, "blocks.json", `{"b1":{"id":"b1","name":"changed"}}`)
	second := commit(t, v, dataPath, commitmsg.SaveMessage("p1", ""))

	got, err := v.Checkout(ctx, dataPath, "blocks.json", first)
	if err != nil {
		t.Fatalf("Checkout first failed: %v", err)
	}
	if string(got) != `{"b1":{"id":"b1"}}` {
		t.Errorf("Checkout first = %s", got)
	}

	got, err = v.Checkout(ctx, dataPath, "blocks.json", second)
	if err != nil {
		t.Fatalf("Checkout second failed: %v", err)
	}
	if string(got) != `{"b1":{"id":"b1","name":"changed"}}` {
		t.Errorf("Checkout second = %s", got)
	}

	working, err := os.ReadFile(filepath.Join(dataPath, "blocks.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(working) != `{"b1":{"id":"b1","name":"changed"}}` {
		t.Error("Checkout must not modify the working file")
	}
}

func testCheckoutMissing(t *testing.T, v history.Versioner) {
	ctx := context.Background()
	dataPath := newDataDir(t, v)
	writeFile(t, dataPath, "project.json", "{}")
	sha := commit(t, v, dataPath, commitmsg.SnapshotMessage("p1", ""))

	unknown := "0123456789abcdef0123456789abcdef01234567"
	if _, err := v.Checkout(ctx, dataPath, "project.json", unknown); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("Checkout(unknown sha) = %v, want DOES_NOT_EXIST", err)
	}
	if _, err := v.Checkout(ctx, dataPath, "missing.json", sha); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("Checkout(missing file) = %v, want DOES_NOT_EXIST", err)
	}
	if ok, err := v.VersionExists(ctx, dataPath, unknown); err != nil || ok {
		t.Errorf("VersionExists(unknown) = %v, %v; want false, nil", ok, err)
	}
	if _, err := v.GetCommit(ctx, dataPath, unknown); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("GetCommit(unknown) = %v, want DOES_NOT_EXIST", err)
	}
}

func testHiddenFilesExcluded(t *testing.T, v history.Versioner) {
	ctx := context.Background()
	dataPath := newDataDir(t, v)
	writeFile(t, dataPath, "project.json", "{}")
	writeFile(t, dataPath, ".project.json.tmp.1", "partial")
	sha := commit(t, v, dataPath, commitmsg.SaveMessage("p1", ""))

	if _, err := v.Checkout(ctx, dataPath, ".project.json.tmp.1", sha); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("hidden file was committed: %v", err)
	}
}

func testGetCommitParsesMessage(t *testing.T, v history.Versioner) {
	ctx := context.Background()
	dataPath := newDataDir(t, v)
	writeFile(t, dataPath, "project.json", "{}")

	msg := commitmsg.SnapshotMessage("p1", "before\n\nrefactor")
	sha := commit(t, v, dataPath, msg)

	c, err := v.GetCommit(ctx, dataPath, sha)
	if err != nil {
		t.Fatalf("GetCommit failed: %v", err)
	}
	if c.SHA != sha {
		t.Errorf("SHA = %s, want %s", c.SHA, sha)
	}
	if c.Author != "u1" {
		t.Errorf("Author = %q, want u1", c.Author)
	}
	if c.Time.IsZero() {
		t.Error("Time should be set")
	}
	if c.Meta == nil || *c.Meta != msg {
		t.Errorf("Meta = %+v, want %+v", c.Meta, msg)
	}
}

func testUninitialized(t *testing.T, v history.Versioner) {
	ctx := context.Background()
	dataPath := t.TempDir()

	if _, err := v.Log(ctx, dataPath); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("Log(uninitialized) = %v, want DOES_NOT_EXIST", err)
	}
	if ok, err := v.VersionExists(ctx, dataPath, "abc"); err != nil || ok {
		t.Errorf("VersionExists(uninitialized) = %v, %v; want false, nil", ok, err)
	}
}

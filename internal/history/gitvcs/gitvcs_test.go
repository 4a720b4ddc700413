package gitvcs

import (
	"context"
	"os/exec"
	"testing"

	"genestore/internal/history"
	"genestore/internal/history/historytest"
	"genestore/internal/slogutil"
)

func newBackend(t *testing.T) history.Versioner {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	b, err := New(slogutil.NewDiscardLogger(), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func TestBackend_Conformance(t *testing.T) {
	historytest.Run(t, newBackend)
}

func TestNew_MissingBinary(t *testing.T) {
	if _, err := New(nil, Options{Binary: "definitely-not-git-binary"}); err == nil {
		t.Error("New should fail when the binary is missing")
	}
}

func TestParseLog(t *testing.T) {
	out := []byte("abc\x00u1\x001700000000\x00save(p1)\n\nnotes\n\x1e\ndef\x00u2\x001700000001\x00snapshot(p1)\n\x1e\n")
	commits := parseLog(out)
	if len(commits) != 2 {
		t.Fatalf("parseLog returned %d commits, want 2", len(commits))
	}
	if commits[0].SHA != "abc" || commits[0].Author != "u1" || commits[0].Message != "save(p1)\n\nnotes" {
		t.Errorf("first commit = %+v", commits[0])
	}
	if commits[0].Meta == nil || commits[0].Meta.Notes != "notes" {
		t.Errorf("first commit meta = %+v", commits[0].Meta)
	}
	if commits[1].Time.Unix() != 1700000001 {
		t.Errorf("second commit time = %v", commits[1].Time)
	}
}

func TestVersionExists_RejectsOptionLikeSha(t *testing.T) {
	b := newBackend(t)
	ok, err := b.VersionExists(context.Background(), t.TempDir(), "--help")
	if err != nil || ok {
		t.Errorf("VersionExists(--help) = %v, %v", ok, err)
	}
}

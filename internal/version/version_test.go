package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func stubBuild(t *testing.T, commit, vcsRevision string) {
	t.Helper()
	origCommit, origRead := Commit, readBuildInfo
	t.Cleanup(func() {
		Commit, readBuildInfo = origCommit, origRead
	})

	Commit = commit
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		if vcsRevision == "" {
			return nil, false
		}
		return &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: vcsRevision}}}, true
	}
}

func TestRevision(t *testing.T) {
	tests := []struct {
		name   string
		commit string
		vcs    string
		want   string
	}{
		{"ldflags win", "abc1234567", "fff0000000", "abc1234567"},
		{"stamped by the go tool", "", "fff0000000", "fff0000000"},
		{"nothing known", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubBuild(t, tt.commit, tt.vcs)
			if got := Revision(); got != tt.want {
				t.Errorf("Revision() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	stubBuild(t, "abc1234567890", "")
	if got := Info(); got != Version+" (abc1234)" {
		t.Errorf("Info() = %q", got)
	}

	stubBuild(t, "", "")
	if got := Info(); got != Version {
		t.Errorf("Info() without a revision = %q, want %q", got, Version)
	}
}

func TestFull(t *testing.T) {
	stubBuild(t, "abcdef123456", "")
	origVersion, origDate := Version, BuildDate
	defer func() { Version, BuildDate = origVersion, origDate }()
	Version, BuildDate = "1.2.3", "2026-01-15"

	got := Full()
	for _, part := range []string{"genestore version 1.2.3", "Commit: abcdef123456", "Built: 2026-01-15", "Go: go"} {
		if !strings.Contains(got, part) {
			t.Errorf("Full() = %q, want to contain %q", got, part)
		}
	}
}
